package query

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyCanonicalString(t *testing.T) {
	a := NewKey("reports", "all").With(url.Values{
		"status": {"PENDING"},
		"page":   {"1"},
		"limit":  {"10"},
		"month":  {""},
	})
	b := NewKey("reports", "all").With(url.Values{"limit": {"10"}}).With(url.Values{"page": {"1"}, "status": {"PENDING"}})

	assert.Equal(t, "reports/all?limit=10&page=1&status=PENDING", a.String())
	assert.True(t, a.Equal(b))
	assert.Equal(t, "reports/all", a.Path())
	assert.Equal(t, "hosts", NewKey("hosts").With(url.Values{"is_active": {""}}).String())
}

func TestKeyWithDoesNotAlias(t *testing.T) {
	base := NewKey("hosts").With(url.Values{"status": {"approved"}})
	_ = base.With(url.Values{"status": {"pending"}})
	assert.Equal(t, "hosts?status=approved", base.String())
}

func TestKeyHasPrefix(t *testing.T) {
	all := NewKey("reports", "all").With(url.Values{"page": {"2"}, "status": {"PENDING"}})

	tests := []struct {
		name   string
		prefix Key
		want   bool
	}{
		{"resource", NewKey("reports"), true},
		{"exact path", NewKey("reports", "all"), true},
		{"matching param", NewKey("reports", "all").With(url.Values{"status": {"PENDING"}}), true},
		{"different param", NewKey("reports", "all").With(url.Values{"status": {"VERIFIED"}}), false},
		{"sibling", NewKey("reports", "mine"), false},
		{"partial segment", NewKey("rep"), false},
		{"longer", NewKey("reports", "all", "x"), false},
		{"other resource", NewKey("hosts"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, all.HasPrefix(tt.prefix))
		})
	}
}

func TestParseKey(t *testing.T) {
	k, err := ParseKey("reports/statistics?month=5&year=2024")
	require.NoError(t, err)
	assert.True(t, k.Equal(NewKey("reports", "statistics").With(url.Values{"year": {"2024"}, "month": {"5"}})))

	k, err = ParseKey("users/pending")
	require.NoError(t, err)
	assert.Equal(t, "users/pending", k.String())
}
