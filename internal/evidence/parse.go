// Package evidence converts loosely formatted deal evidence into comparable values.
//
// Raw evidence arrives as display strings: multiples ("4.3x"), percentages
// ("15.00%"), Korean currency notation ("1.2조", "4,200억"), credit grades
// ("BBB+") and yes/no flags. Everything here is a pure function; malformed
// input degrades to a documented fallback instead of panicking.
package evidence

import (
	"errors"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrNotNumeric is returned when a ratio string has no numeric prefix.
var ErrNotNumeric = errors.New("evidence: value is not numeric")

// Korean magnitude markers. 1조 = 10,000억.
const (
	markerJo  = "조"
	markerEok = "억"

	eokPerJo = 10000
)

var (
	leadingNumber = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)`)

	// A minus sign counts only when it does not follow a digit, so the
	// range "1200-1500억" still reads as 1500.
	beforeJo  = regexp.MustCompile(`(?:^|[^\d.])(-?\d+(?:\.\d+)?)조`)
	beforeEok = regexp.MustCompile(`(?:^|[^\d.])(-?\d+(?:\.\d+)?)억`)

	ratioUnits = []string{"x", "X", "%", "배"}

	thousandsAndSpace = strings.NewReplacer(",", "", " ", "", "\t", "", "\u00a0", "")
)

// ParseRatio strips one trailing unit (x, %, 배) and parses the decimal prefix.
// "4.3x" → 4.3, "15.00%" → 15, "1,250" → 1250.
func ParseRatio(s string) (float64, error) {
	v, err := parseRatioDecimal(s)
	if err != nil {
		return 0, err
	}
	return v.InexactFloat64(), nil
}

func parseRatioDecimal(s string) (decimal.Decimal, error) {
	s = thousandsAndSpace.Replace(strings.TrimSpace(s))
	for _, unit := range ratioUnits {
		if strings.HasSuffix(s, unit) {
			s = strings.TrimSuffix(s, unit)
			break
		}
	}
	m := leadingNumber.FindString(s)
	if m == "" {
		return decimal.Zero, ErrNotNumeric
	}
	m = strings.TrimSuffix(m, ".")
	d, err := decimal.NewFromString(m)
	if err != nil {
		return decimal.Zero, ErrNotNumeric
	}
	return d, nil
}

// ParseKoreanCurrencyToEok converts a Korean currency string to units of 억.
// "1.2조" → 12000, "4,200억" → 4200, "-1.2조" → -12000. A value carries at
// most one marker; 조 is checked first. Anything unparseable returns 0.
func ParseKoreanCurrencyToEok(s string) float64 {
	d, ok := ParseEok(s)
	if !ok {
		return 0
	}
	return d.InexactFloat64()
}

// ParseEok is ParseKoreanCurrencyToEok with an exact result and an explicit
// ok instead of the 0 fallback.
func ParseEok(s string) (decimal.Decimal, bool) {
	s = thousandsAndSpace.Replace(s)
	if m := beforeJo.FindStringSubmatch(s); m != nil {
		d, err := decimal.NewFromString(m[1])
		if err != nil {
			return decimal.Zero, false
		}
		return d.Mul(decimal.NewFromInt(eokPerJo)), true
	}
	if m := beforeEok.FindStringSubmatch(s); m != nil {
		d, err := decimal.NewFromString(m[1])
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	}
	return decimal.Zero, false
}

// FormatAumEok renders a portfolio total for display. The total is coarsened
// to the nearest 1,000억 before being expressed in 조 with one decimal:
// 17841 → "KRW 1.8조".
func FormatAumEok(totalEok float64) string {
	thousand := decimal.NewFromInt(1000)
	coarse := roundHalfUp(decimal.NewFromFloat(totalEok).Div(thousand)).Mul(thousand)
	jo := coarse.Div(decimal.NewFromInt(eokPerJo))
	return "KRW " + jo.StringFixed(1) + markerJo
}

// roundHalfUp rounds toward +inf on .5, matching the rounding used by the
// dashboard (Math.round), not banker's or away-from-zero rounding.
func roundHalfUp(d decimal.Decimal) decimal.Decimal {
	return d.Add(decimal.NewFromFloat(0.5)).Floor()
}
