package utils

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// MoneyTolerance is the rounding slack allowed between computed and supplied totals.
var MoneyTolerance = decimal.NewFromFloat(0.01)

var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount accepts user and bank formatted amounts:
// "1,234.56", "1.234,56", "1234,56", "(1,000.00)", "$ 50", "€12,50".
// The last separator decides which one is the decimal point; a lone comma
// followed by exactly two digits is a decimal comma.
func ParseAmount(s string) (decimal.Decimal, error) {
	v := strings.TrimSpace(s)
	for _, sym := range []string{"$", "€", "£", " ", " "} {
		v = strings.ReplaceAll(v, sym, "")
	}
	if v == "" {
		return decimal.Zero, ErrInvalidAmount
	}

	neg := false
	if strings.HasPrefix(v, "(") && strings.HasSuffix(v, ")") {
		neg = true
		v = strings.TrimSpace(v[1 : len(v)-1])
	}

	lastComma := strings.LastIndex(v, ",")
	lastDot := strings.LastIndex(v, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			v = strings.ReplaceAll(v, ".", "")
			v = strings.ReplaceAll(v, ",", ".")
		} else {
			v = strings.ReplaceAll(v, ",", "")
		}
	case lastComma >= 0:
		parts := strings.Split(v, ",")
		if len(parts) == 2 && len(parts[1]) == 2 {
			v = parts[0] + "." + parts[1]
		} else {
			v = strings.ReplaceAll(v, ",", "")
		}
	}

	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if neg {
		d = d.Neg()
	}
	return d, nil
}

// WithinTolerance reports |a-b| <= MoneyTolerance.
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(MoneyTolerance)
}

func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func MinDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

func SumDecimals(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
