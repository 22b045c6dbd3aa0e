package core

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.0", "1", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{" 2.50 ", "2.5", true},
		{"-1", "-1", true},
		{"0", "0", true},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"1,2,3", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got.String() != tc.out {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
			if !IsValidation(err) {
				t.Fatalf("%q expected validation mark, got %v", tc.in, err)
			}
		}
	}
}

func TestRound2(t *testing.T) {
	got, _ := ParseAmount("0.1")
	sum := got.Add(got).Add(got)
	if Round2(sum).String() != "0.3" {
		t.Fatalf("got %s", Round2(sum))
	}
}

func TestValidateAmount(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"0", true},
		{"10.5", true},
		{"10.50", true},
		{"-12.34", true},
		{"999999999999.99", true},
		{"-999999999999.99", true},
		{"10.005", false},
		{"0.001", false},
		{"1000000000000", false},
		{"-1000000000000", false},
		{"1234567890123.4567", false},
	}
	for _, tc := range cases {
		err := ValidateAmount("total", decimal.RequireFromString(tc.in))
		if tc.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tc.in, err)
		}
		if !tc.ok && !IsValidation(err) {
			t.Errorf("%s: expected validation error, got %v", tc.in, err)
		}
	}
}

func TestValidateAmount_NamesField(t *testing.T) {
	err := ValidateAmount("unit_price", decimal.RequireFromString("1.234"))
	if !strings.Contains(DisplayMessage(err), "unit_price must have at most 2 decimal places") {
		t.Errorf("message = %q", DisplayMessage(err))
	}
}
