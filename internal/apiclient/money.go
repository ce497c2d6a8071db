package apiclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Money is a decimal amount in hundredths (sen). The API sends GMV either
// as a JSON number or as a decimal string such as "1500000.00".
type Money int64

// NewMoney converts a whole-rupiah amount.
func NewMoney(rupiah int64) Money {
	return Money(rupiah * 100)
}

// ErrMoneyRange reports an amount that does not fit in Money.
var ErrMoneyRange = errors.New("money amount out of range")

// ParseMoney parses a decimal string. Thousands separators (",") are
// ignored, matching what the dashboard accepted historically.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, nil
	}

	neg := strings.HasPrefix(s, "-")
	digits := strings.TrimPrefix(s, "-")
	whole, frac, hasFrac := strings.Cut(digits, ".")

	if !isDigits(whole) || (hasFrac && !isDigits(frac)) || (whole == "" && frac == "") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("parsing money %q: %w", s, err)
		}
		cents := math.Round(f * 100)
		if math.IsNaN(cents) || cents >= math.MaxInt64 || cents <= math.MinInt64 {
			return 0, fmt.Errorf("parsing money %q: %w", s, ErrMoneyRange)
		}
		return Money(cents), nil
	}

	var units int64
	if whole != "" {
		w, err := strconv.ParseInt(whole, 10, 64)
		if errors.Is(err, strconv.ErrRange) || w > math.MaxInt64/100 {
			return 0, fmt.Errorf("parsing money %q: %w", s, ErrMoneyRange)
		}
		if err != nil {
			return 0, fmt.Errorf("parsing money %q: %w", s, err)
		}
		units = w * 100
	}
	if hasFrac && frac != "" {
		// Round half up on the third decimal.
		padded := (frac + "000")[:3]
		f, _ := strconv.ParseInt(padded, 10, 64)
		add := (f + 5) / 10
		if units > math.MaxInt64-add {
			return 0, fmt.Errorf("parsing money %q: %w", s, ErrMoneyRange)
		}
		units += add
	}
	if neg {
		units = -units
	}
	return Money(units), nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Float returns the amount in rupiah.
func (m Money) Float() float64 {
	return float64(m) / 100
}

func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(m.String())), nil
}

func (m *Money) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*m = 0
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		var err error
		if s, err = strconv.Unquote(s); err != nil {
			return fmt.Errorf("decoding money: %w", err)
		}
	} else {
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("decoding money: %w", err)
		}
		s = n.String()
	}
	v, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}
