package views

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gmvreport/gmvdash/internal/apiclient"
)

// FormatCurrency renders an amount the way the dashboard cards do: millions
// as "Rp 3.1M", thousands as "Rp 500K", anything smaller in full rupiah.
func FormatCurrency(m apiclient.Money) string {
	v := m.Float()
	switch {
	case v >= 1_000_000:
		return "Rp " + strconv.FormatFloat(v/1_000_000, 'f', 1, 64) + "M"
	case v >= 1_000:
		return "Rp " + strconv.FormatFloat(v/1_000, 'f', 0, 64) + "K"
	}
	return FormatRupiah(m)
}

// FormatRupiah renders the exact amount in Indonesian notation:
// "Rp 1.250.000" or "Rp 12,5".
func FormatRupiah(m apiclient.Money) string {
	units := int64(m)
	sign := ""
	if units < 0 {
		sign = "-"
		units = -units
	}
	whole := groupThousands(strconv.FormatInt(units/100, 10))
	out := sign + "Rp " + whole
	if frac := units % 100; frac != 0 {
		out += "," + strings.TrimRight(strconv.FormatInt(100+frac, 10)[1:], "0")
	}
	return out
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

var shortMonths = [...]string{"Jan", "Feb", "Mar", "Apr", "Mei", "Jun", "Jul", "Agu", "Sep", "Okt", "Nov", "Des"}

// FormatDateTime renders t as "02 Okt 2026, 14.30" in t's location. The zero
// time renders as "-".
func FormatDateTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return fmt.Sprintf("%02d %s %d, %02d.%02d", t.Day(), shortMonths[t.Month()-1], t.Year(), t.Hour(), t.Minute())
}

// FormatDateTimePtr is FormatDateTime for optional timestamps.
func FormatDateTimePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return FormatDateTime(*t)
}

// FormatHours renders fractional hours as "2 jam 30 menit".
func FormatHours(hours float64) string {
	if math.IsNaN(hours) || hours <= 0 {
		return "0 jam"
	}
	h := math.Floor(hours)
	m := math.Round((hours - h) * 60)
	if m == 60 {
		h++
		m = 0
	}
	hi, mi := int(h), int(m)
	switch {
	case hi == 0:
		return strconv.Itoa(mi) + " menit"
	case mi == 0:
		return strconv.Itoa(hi) + " jam"
	}
	return strconv.Itoa(hi) + " jam " + strconv.Itoa(mi) + " menit"
}
