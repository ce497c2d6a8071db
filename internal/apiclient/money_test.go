package apiclient

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMoney(t *testing.T) {
	tests := []struct {
		in   string
		want Money
	}{
		{"0", 0},
		{"", 0},
		{"100000", NewMoney(100000)},
		{"1500000.00", NewMoney(1500000)},
		{"1,500,000", NewMoney(1500000)},
		{"12.5", 1250},
		{"12.345", 1235},
		{"-3.10", -310},
		{"1e3", NewMoney(1000)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMoney(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseMoney("abc")
	assert.Error(t, err)
}

func TestParseMoneyRejectsOverflow(t *testing.T) {
	for _, in := range []string{
		"92233720368547759",
		"-92233720368547759",
		"92233720368547758.08",
		"1e30",
		"-1e30",
	} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseMoney(in)
			assert.ErrorIs(t, err, ErrMoneyRange)
		})
	}

	got, err := ParseMoney("92233720368547758.06")
	require.NoError(t, err)
	assert.Equal(t, Money(math.MaxInt64-1), got)

	var v struct {
		A Money `json:"a"`
	}
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"a":"99999999999999999999"}`), &v), ErrMoneyRange)
}

func TestMoneyJSON(t *testing.T) {
	var v struct {
		A Money `json:"a"`
		B Money `json:"b"`
		C Money `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"2000000.00","b":3000000,"c":null}`), &v))
	assert.Equal(t, NewMoney(2000000), v.A)
	assert.Equal(t, NewMoney(3000000), v.B)
	assert.Equal(t, Money(0), v.C)

	out, err := json.Marshal(Money(123456))
	require.NoError(t, err)
	assert.Equal(t, `"1234.56"`, string(out))
	assert.InDelta(t, 1234.56, Money(123456).Float(), 1e-9)
}
