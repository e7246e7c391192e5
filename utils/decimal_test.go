package utils

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount_AcceptsFormattedStrings(t *testing.T) {
	cases := []struct {
		in       string
		expected string
	}{
		{"20000", "20000"},
		{"20,000", "20000"},
		{"12,345,678", "12345678"},
		{"1,234.56", "1234.56"},
		{"1.234,56", "1234.56"},
		{"1234,56", "1234.56"},
		{"(1,000.00)", "-1000"},
		{"$ 50", "50"},
		{"€12,50", "12.5"},
		{"£-3.25", "-3.25"},
		{"  1 234,50  ", "1234.5"},
		{"\u00a01.000,00", "1000"},
		{"-12.5", "-12.5"},
	}
	for _, tc := range cases {
		d, err := ParseAmount(tc.in)
		if err != nil {
			t.Fatalf("ParseAmount(%q) error: %v", tc.in, err)
		}
		if d.String() != tc.expected {
			t.Fatalf("ParseAmount(%q) expected %s, got %s", tc.in, tc.expected, d.String())
		}
	}
}

func TestParseAmount_RejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "abc", "$", "()"} {
		if _, err := ParseAmount(in); err == nil {
			t.Fatalf("ParseAmount(%q) expected error", in)
		}
	}
}

func TestWithinTolerance(t *testing.T) {
	a := decimal.RequireFromString("100.00")
	if !WithinTolerance(a, decimal.RequireFromString("100.01")) {
		t.Fatalf("expected 100.00 and 100.01 to be within tolerance")
	}
	if WithinTolerance(a, decimal.RequireFromString("100.02")) {
		t.Fatalf("expected 100.00 and 100.02 to differ")
	}
}
