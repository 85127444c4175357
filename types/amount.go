// Package types provides common types used across Cadence.
package types

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// BpsDenominator is the number of basis points in a whole.
const BpsDenominator = 10000

// Amount is a non-negative quantity of a token in its smallest unit.
// Token amounts routinely exceed 64 bits (18-decimal tokens), so Amount is
// backed by an arbitrary-precision integer. The zero value is zero.
//
// Amount is immutable: every arithmetic method returns a new value.
type Amount struct {
	v *big.Int
}

// NewAmount returns an Amount from a uint64 unit count.
func NewAmount(units uint64) Amount {
	return Amount{v: new(big.Int).SetUint64(units)}
}

// AmountFromBig copies b into an Amount. Negative values are rejected.
func AmountFromBig(b *big.Int) (Amount, error) {
	if b == nil {
		return Amount{}, nil
	}
	if b.Sign() < 0 {
		return Amount{}, fmt.Errorf("amount: negative value %s", b.String())
	}
	return Amount{v: new(big.Int).Set(b)}, nil
}

// ParseAmount parses a base-10 unit count such as "10000000000000000000".
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, nil
	}
	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, fmt.Errorf("amount: parse %q: not a base-10 integer", s)
	}
	return AmountFromBig(b)
}

// MustParseAmount is like ParseAmount but panics on error.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// ParseUnits parses a decimal string in major units ("10.5") scaled by
// decimals, e.g. ParseUnits("10", 18) == 10e18.
func ParseUnits(s string, decimals uint8) (Amount, error) {
	s = strings.TrimSpace(s)
	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > int(decimals) {
		return Amount{}, fmt.Errorf("amount: %q has more than %d decimals", s, decimals)
	}
	frac += strings.Repeat("0", int(decimals)-len(frac))
	if whole == "" {
		whole = "0"
	}
	return ParseAmount(whole + frac)
}

// MustParseUnits is like ParseUnits but panics on error.
func MustParseUnits(s string, decimals uint8) Amount {
	a, err := ParseUnits(s, decimals)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) big() *big.Int {
	if a.v == nil {
		return new(big.Int)
	}
	return a.v
}

// Big returns a copy of the underlying integer.
func (a Amount) Big() *big.Int { return new(big.Int).Set(a.big()) }

// Arithmetic operations

// Add returns a + other.
func (a Amount) Add(other Amount) Amount {
	return Amount{v: new(big.Int).Add(a.big(), other.big())}
}

// Sub returns a - other. Panics if the result would be negative.
func (a Amount) Sub(other Amount) Amount {
	r := new(big.Int).Sub(a.big(), other.big())
	if r.Sign() < 0 {
		panic(fmt.Sprintf("amount: underflow: %s - %s", a, other))
	}
	return Amount{v: r}
}

// Mul returns a * n.
func (a Amount) Mul(n uint64) Amount {
	return Amount{v: new(big.Int).Mul(a.big(), new(big.Int).SetUint64(n))}
}

// Bps returns floor(a * bps / 10000).
func (a Amount) Bps(bps uint16) Amount {
	r := new(big.Int).Mul(a.big(), big.NewInt(int64(bps)))
	return Amount{v: r.Quo(r, big.NewInt(BpsDenominator))}
}

// SplitBps splits a into (share, rest) where share = floor(a * bps / 10000)
// and rest = a - share. The two parts always sum to a.
func (a Amount) SplitBps(bps uint16) (share, rest Amount) {
	share = a.Bps(bps)
	return share, a.Sub(share)
}

// Comparison methods

// IsZero returns true if the amount is zero.
func (a Amount) IsZero() bool { return a.big().Sign() == 0 }

// IsPositive returns true if the amount is greater than zero.
func (a Amount) IsPositive() bool { return a.big().Sign() > 0 }

// Cmp compares a and other and returns -1, 0 or +1.
func (a Amount) Cmp(other Amount) int { return a.big().Cmp(other.big()) }

// Equal returns true if both amounts are equal.
func (a Amount) Equal(other Amount) bool { return a.Cmp(other) == 0 }

// LessThan returns true if a < other.
func (a Amount) LessThan(other Amount) bool { return a.Cmp(other) < 0 }

// Formatting methods

// String returns the base-10 unit count.
func (a Amount) String() string { return a.big().String() }

// FormatUnits renders the amount in major units with the given number of
// decimals, trimming trailing zeros: FormatUnits(10e18, 18) == "10".
func (a Amount) FormatUnits(decimals uint8) string {
	s := a.String()
	if decimals == 0 {
		return s
	}
	d := int(decimals)
	if len(s) <= d {
		s = strings.Repeat("0", d-len(s)+1) + s
	}
	whole, frac := s[:len(s)-d], strings.TrimRight(s[len(s)-d:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

// MarshalText implements encoding.TextMarshaler.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Amount) UnmarshalText(data []byte) error {
	parsed, err := ParseAmount(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MarshalJSON encodes the amount as a JSON string so that values above
// 2^53 survive JavaScript consumers.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts both JSON strings and bare numbers.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		s = string(data)
	}
	return a.UnmarshalText([]byte(s))
}

// Sum returns the total of the given amounts.
func Sum(values ...Amount) Amount {
	total := new(big.Int)
	for _, v := range values {
		total.Add(total, v.big())
	}
	return Amount{v: total}
}
