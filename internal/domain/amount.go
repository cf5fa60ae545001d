package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TokenDecimals is the fixed scale of USDC token quantities on the wire.
const TokenDecimals = 6

// ValueKind says whether a requested amount is denominated in tokens or fiat.
type ValueKind string

const (
	ValueToken ValueKind = "token"
	ValueFiat  ValueKind = "fiat"
)

// RecipientKind is the closed set of recipient addressing schemes.
type RecipientKind string

const (
	RecipientUsername RecipientKind = "username"
	RecipientAddress  RecipientKind = "address"
	RecipientENS      RecipientKind = "ens"
)

// USDValue normalizes a requested amount to a 6-decimal-place USDC quantity.
// Fiat amounts are converted through the USD rate of the reference currency
// (units of that currency per USD) before rounding. The same function backs
// both balance checks and submission payloads so the two can never diverge.
func USDValue(amount decimal.Decimal, kind ValueKind, fiatCurrency string, rates map[string]decimal.Decimal) (decimal.Decimal, error) {
	if kind == ValueFiat {
		if fiatCurrency == "" {
			return decimal.Zero, fmt.Errorf("fiat amounts require a reference currency")
		}
		rate, ok := rates[fiatCurrency]
		if !ok || rate.IsZero() {
			return decimal.Zero, fmt.Errorf("no USD exchange rate for %s", fiatCurrency)
		}
		return amount.Div(rate).Round(TokenDecimals), nil
	}
	return amount.Round(TokenDecimals), nil
}

// TokenUnits converts a 6-decimal USDC quantity to integer base units for
// contract call parameters.
func TokenUnits(amount decimal.Decimal) string {
	return amount.Shift(TokenDecimals).Truncate(0).String()
}

// FormatAmount renders an amount the way chat messages show it: no decimals
// for whole numbers, two otherwise.
func FormatAmount(amount decimal.Decimal) string {
	if amount.Equal(amount.Truncate(0)) {
		return amount.StringFixed(0)
	}
	return amount.StringFixed(2)
}
