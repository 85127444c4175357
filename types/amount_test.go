package types

import (
	"encoding/json"
	"math/big"
	"testing"
)

func TestParseUnits(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		decimals uint8
		expected string
	}{
		{"Whole 18 decimals", "10", 18, "10000000000000000000"},
		{"Fraction 6 decimals", "10.5", 6, "10500000"},
		{"Leading dot", ".25", 2, "25"},
		{"Zero", "0", 18, "0"},
		{"No decimals", "42", 0, "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUnits(tt.input, tt.decimals)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.String() != tt.expected {
				t.Errorf("got %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestParseUnitsRejects(t *testing.T) {
	for _, input := range []string{"1.234", "-1", "abc", "1.2.3"} {
		if _, err := ParseUnits(input, 2); err == nil {
			t.Errorf("ParseUnits(%q): expected error", input)
		}
	}
}

func TestAmountArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		op       func() Amount
		expected Amount
	}{
		{"Add", func() Amount { return NewAmount(100).Add(NewAmount(200)) }, NewAmount(300)},
		{"Sub", func() Amount { return NewAmount(500).Sub(NewAmount(200)) }, NewAmount(300)},
		{"Mul", func() Amount { return NewAmount(100).Mul(3) }, NewAmount(300)},
		{"Bps half", func() Amount { return NewAmount(1000).Bps(5000) }, NewAmount(500)},
		{"Bps floors", func() Amount { return NewAmount(3).Bps(5000) }, NewAmount(1)},
		{"Bps full", func() Amount { return NewAmount(77).Bps(10000) }, NewAmount(77)},
		{"Zero value add", func() Amount { return Amount{}.Add(NewAmount(5)) }, NewAmount(5)},
		{"Sum", func() Amount { return Sum(NewAmount(1), NewAmount(2), NewAmount(3)) }, NewAmount(6)},
		{"Beyond uint64", func() Amount { return MustParseUnits("10", 18).Mul(2) }, MustParseAmount("20000000000000000000")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.op()
			if !result.Equal(tt.expected) {
				t.Errorf("Got %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestAmountSplitBpsSumsToWhole(t *testing.T) {
	for _, bps := range []uint16{0, 1, 250, 3333, 5000, 9999, 10000} {
		whole := NewAmount(1_000_003)
		share, rest := whole.SplitBps(bps)
		if !share.Add(rest).Equal(whole) {
			t.Errorf("bps %d: %s + %s != %s", bps, share, rest, whole)
		}
	}
}

func TestAmountSubUnderflow(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for underflow")
		}
	}()

	_ = NewAmount(1).Sub(NewAmount(2))
}

func TestAmountFromBigRejectsNegative(t *testing.T) {
	if _, err := AmountFromBig(big.NewInt(-1)); err == nil {
		t.Fatal("expected error for negative value")
	}
}

func TestAmountImmutable(t *testing.T) {
	a := NewAmount(10)
	b := a.Add(NewAmount(5))
	if a.String() != "10" || b.String() != "15" {
		t.Errorf("got a=%s b=%s", a, b)
	}
	raw := a.Big()
	raw.SetInt64(99)
	if a.String() != "10" {
		t.Errorf("Big() leaked internal state: %s", a)
	}
}

func TestAmountFormatUnits(t *testing.T) {
	tests := []struct {
		amount   Amount
		decimals uint8
		expected string
	}{
		{MustParseUnits("10", 18), 18, "10"},
		{MustParseUnits("10.5", 6), 6, "10.5"},
		{NewAmount(5), 3, "0.005"},
		{NewAmount(0), 2, "0"},
		{NewAmount(1234), 0, "1234"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.amount.FormatUnits(tt.decimals); got != tt.expected {
				t.Errorf("got %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestAmountJSON(t *testing.T) {
	a := MustParseUnits("10", 18)
	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if string(data) != `"10000000000000000000"` {
		t.Errorf("got %s", data)
	}

	var fromString, fromNumber Amount
	if err := json.Unmarshal(data, &fromString); err != nil {
		t.Fatalf("Unmarshal string: %v", err)
	}
	if err := json.Unmarshal([]byte(`42`), &fromNumber); err != nil {
		t.Fatalf("Unmarshal number: %v", err)
	}
	if !fromString.Equal(a) || fromNumber.String() != "42" {
		t.Errorf("got %s and %s", fromString, fromNumber)
	}
}
