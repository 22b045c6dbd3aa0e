// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from strings
// into decimals.
package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a decimal string to a decimal.Decimal.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and an
// optional sign. Empty input is a validation error.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,34") -> 12.34, nil
//	ParseAmount("-3")    -> -3, nil
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, NewError("empty amount").
			WithHint("amount required").
			Mark(ErrValidation)
	}
	// Normalize decimal comma to dot
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, NewError(fmt.Sprintf("invalid amount %q", s)).
			WithHint("amount must be numeric").
			Mark(ErrValidation)
	}
	return d, nil
}

// AmountScale is the number of decimal places an amount may carry.
const AmountScale = 2

// MaxAmount is the exclusive bound on the magnitude of a stored amount.
// Postgres columns are NUMERIC(14, 2).
var MaxAmount = decimal.New(1, 12)

// ValidateAmount rejects amounts that could not be stored unchanged:
// more than AmountScale decimals or a magnitude of MaxAmount or more.
// Amounts are never rounded to fit.
func ValidateAmount(field string, d decimal.Decimal) error {
	if d.Abs().GreaterThanOrEqual(MaxAmount) {
		return NewError(fmt.Sprintf("%s out of range", field)).
			WithHintf("%s must be less than %s", field, MaxAmount).
			Mark(ErrValidation)
	}
	if !d.Equal(d.Truncate(AmountScale)) {
		return NewError(fmt.Sprintf("%s has too many decimals", field)).
			WithHintf("%s must have at most %d decimal places", field, AmountScale).
			Mark(ErrValidation)
	}
	return nil
}

// Round2 rounds to cents for display and aggregation.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
