// Package money converts amounts between currencies and their minor units.
// All arithmetic is fixed-point; floats never touch an amount.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrUnknownCurrency = errors.New("unknown currency")

var minorUnitExceptions = map[string]int32{
	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "ISK": 0, "JPY": 0, "KMF": 0, "KRW": 0,
	"PYG": 0, "RWF": 0, "UGX": 0, "VND": 0, "VUV": 0, "XAF": 0, "XOF": 0, "XPF": 0,
	"BHD": 3, "JOD": 3, "KWD": 3, "OMR": 3, "TND": 3,
}

// NormalizeCurrency upper-cases and trims an ISO 4217 code.
func NormalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}

// MinorUnitDigits is the number of decimal places of the currency's minor unit.
func MinorUnitDigits(currency string) int32 {
	if digits, ok := minorUnitExceptions[NormalizeCurrency(currency)]; ok {
		return digits
	}
	return 2
}

// ToMinorUnits rounds half away from zero, so 10.005 EUR becomes 1001.
func ToMinorUnits(amount decimal.Decimal, currency string) int64 {
	digits := MinorUnitDigits(currency)
	return amount.Round(digits).Shift(digits).IntPart()
}

func FromMinorUnits(minor int64, currency string) decimal.Decimal {
	return decimal.New(minor, -MinorUnitDigits(currency))
}

// RateTable holds how many units of each currency one unit of Base buys.
type RateTable struct {
	Base  string
	Rates map[string]decimal.Decimal
}

func NewRateTable(base string, rates map[string]decimal.Decimal) RateTable {
	normalized := make(map[string]decimal.Decimal, len(rates)+1)
	for code, rate := range rates {
		normalized[NormalizeCurrency(code)] = rate
	}
	base = NormalizeCurrency(base)
	normalized[base] = decimal.NewFromInt(1)
	return RateTable{Base: base, Rates: normalized}
}

// ParseRates reads "USD:1.08,GBP:0.86" style maps as produced by env config.
func ParseRates(raw map[string]string) (map[string]decimal.Decimal, error) {
	rates := make(map[string]decimal.Decimal, len(raw))
	for code, value := range raw {
		rate, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("invalid rate for %s: %w", code, err)
		}
		if !rate.IsPositive() {
			return nil, fmt.Errorf("rate for %s must be positive", code)
		}
		rates[NormalizeCurrency(code)] = rate
	}
	return rates, nil
}

func (t RateTable) rate(currency string) (decimal.Decimal, error) {
	rate, ok := t.Rates[NormalizeCurrency(currency)]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrUnknownCurrency, currency)
	}
	return rate, nil
}

// Convert moves amount from one currency to another through the base currency
// and rounds to the target's minor unit.
func (t RateTable) Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	fromRate, err := t.rate(from)
	if err != nil {
		return decimal.Decimal{}, err
	}
	toRate, err := t.rate(to)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if NormalizeCurrency(from) == NormalizeCurrency(to) {
		return amount.Round(MinorUnitDigits(to)), nil
	}
	// keep precision until the final rounding
	inBase := amount.DivRound(fromRate, 16)
	return inBase.Mul(toRate).Round(MinorUnitDigits(to)), nil
}

// ConvertMinor is Convert for amounts already expressed in minor units.
func (t RateTable) ConvertMinor(minor int64, from, to string) (int64, error) {
	converted, err := t.Convert(FromMinorUnits(minor, from), from, to)
	if err != nil {
		return 0, err
	}
	return ToMinorUnits(converted, to), nil
}
