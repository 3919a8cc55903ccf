// Package money переводит суммы между минимальными единицами (int64)
// и десятичной записью, которую видят клиенты API и файлы каталога.
package money

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

const defaultExponent = 2

// Валюты, у которых число знаков после запятой отличается от двух.
var exponents = map[string]int32{
	"JPY": 0,
	"KRW": 0,
	"VND": 0,
	"BHD": 3,
	"KWD": 3,
	"OMR": 3,
}

var (
	ErrNegativeAmount = errors.New("amount must be >= 0")
	ErrTooPrecise     = errors.New("amount has more fraction digits than the currency allows")
	ErrAmountTooLarge = errors.New("amount does not fit into int64 minor units")
)

var maxMinor = decimal.NewFromInt(math.MaxInt64)

// Exponent возвращает число знаков после запятой для валюты.
func Exponent(currency string) int32 {
	if exp, ok := exponents[strings.ToUpper(currency)]; ok {
		return exp
	}
	return defaultExponent
}

// FormatMinor печатает сумму в минимальных единицах как десятичную строку: 500 USD -> "5.00".
func FormatMinor(minor int64, currency string) string {
	exp := Exponent(currency)
	return decimal.New(minor, -exp).StringFixed(exp)
}

// ParseMinor разбирает десятичную строку в минимальные единицы валюты.
func ParseMinor(amount, currency string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	return FromDecimal(d, currency)
}

// FromDecimal переводит десятичную сумму в минимальные единицы без округления.
func FromDecimal(d decimal.Decimal, currency string) (int64, error) {
	if d.IsNegative() {
		return 0, ErrNegativeAmount
	}
	shifted := d.Shift(Exponent(currency))
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("%s %s: %w", d.String(), currency, ErrTooPrecise)
	}
	if shifted.GreaterThan(maxMinor) {
		return 0, fmt.Errorf("%s %s: %w", d.String(), currency, ErrAmountTooLarge)
	}
	return shifted.IntPart(), nil
}
