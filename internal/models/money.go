package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of fraction digits kept for prices and amounts.
const MoneyPlaces = 2

// MaxMoney caps any single price or amount so it fits numeric(12,2).
var MaxMoney = decimal.RequireFromString("9999999999.99")

func init() {
	// API clients expect JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// ValidateMoney checks that d is positive, within range and has at most two fraction digits.
func ValidateMoney(field string, d decimal.Decimal) error {
	if !d.IsPositive() {
		return NewValidationError(fmt.Sprintf("%s must be greater than zero", field))
	}
	if d.GreaterThan(MaxMoney) {
		return NewValidationError(fmt.Sprintf("%s is too large", field))
	}
	if !d.Equal(d.Round(MoneyPlaces)) {
		return NewValidationError(fmt.Sprintf("%s must have at most %d decimal places", field, MoneyPlaces))
	}
	return nil
}
