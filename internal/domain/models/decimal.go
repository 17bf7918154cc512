package models

import "github.com/shopspring/decimal"

// Scale is the stored number of fractional digits for every decimal column.
const Scale = 2

// FixedString renders an optional decimal at the stored scale.
func FixedString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.StringFixed(Scale)
	return &s
}

// ParseFixed is the inverse of FixedString.
func ParseFixed(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
