// Package utils provides money rounding and formatting helpers.
package utils

import (
	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of decimal places capital is reported with.
const MoneyPlaces = 2

// RoundMoney rounds a capital amount to cents, half away from zero.
func RoundMoney(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(MoneyPlaces).Float64()
	return f
}

// RoundMoneyPtr rounds *v, keeping nil as nil.
func RoundMoneyPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := RoundMoney(*v)
	return &r
}

// FormatMoney formats a capital amount as dollars and cents.
func FormatMoney(v float64) string {
	return "$" + decimal.NewFromFloat(v).StringFixed(MoneyPlaces)
}

// FormatFixed formats v with a fixed number of decimal places.
func FormatFixed(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}

// FormatNumber formats v without trailing zeros.
func FormatNumber(v float64) string {
	return decimal.NewFromFloat(v).String()
}
