package storefront

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Price is an amount in minor currency units. Valid is false when the remote
// payload carried no usable price.
type Price struct {
	Minor int64
	Valid bool
}

// NewPrice returns a valid Price of minor units.
func NewPrice(minor int64) Price {
	return Price{Minor: minor, Valid: true}
}

// UnmarshalJSON accepts quoted decimal strings ("4.99", major units) and bare
// numbers (499, minor units as served by the .js endpoints). Anything else
// leaves the price invalid rather than failing the enclosing document.
func (p *Price) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	*p = Price{}
	if raw == "" || raw == "null" {
		return nil
	}
	if raw[0] == '"' {
		unquoted, err := strconv.Unquote(raw)
		if err != nil {
			return nil
		}
		minor, err := ParseMinorUnits(unquoted)
		if err != nil {
			return nil
		}
		*p = NewPrice(minor)
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	*p = NewPrice(int64(math.Round(f)))
	return nil
}

// MarshalJSON renders the price as a major-unit decimal string.
func (p Price) MarshalJSON() ([]byte, error) {
	if !p.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(FormatMinorUnits(p.Minor))), nil
}

func (p Price) String() string {
	if !p.Valid {
		return "n/a"
	}
	return FormatMinorUnits(p.Minor)
}

var errEmptyAmount = errors.New("empty amount")

// ParseMinorUnits converts a decimal amount in major units ("4.99", "12",
// "0.009") into minor units. Digits past the second decimal are truncated
// toward zero, so for any cent-level threshold t, amount < t holds exactly
// when the result is below t in minor units.
func ParseMinorUnits(s string) (int64, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, errEmptyAmount
	}
	negative := false
	switch s[0] {
	case '-':
		negative = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if !allDigits(whole) || !allDigits(frac) {
		return 0, fmt.Errorf("parse amount %q: not a decimal", s)
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	cents := int64(0)
	for i := 0; i < 2; i++ {
		cents *= 10
		if i < len(frac) {
			cents += int64(frac[i] - '0')
		}
	}
	total := units*100 + cents
	if negative {
		total = -total
	}
	return total, nil
}

// FormatMinorUnits renders minor units as a two-decimal major-unit string.
func FormatMinorUnits(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

// MajorToMinor converts a configured major-unit threshold into minor units.
func MajorToMinor(major float64) int64 {
	return int64(math.Round(major * 100))
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
