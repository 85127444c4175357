package types

// Account is an opaque identity (subscriber, provider, keeper, operator).
// The engine places no structure on it beyond equality; account addresses,
// user IDs or wallet keys all fit.
type Account string

// String implements fmt.Stringer.
func (a Account) String() string { return string(a) }

// IsZero reports whether the account is empty.
func (a Account) IsZero() bool { return a == "" }

// Token identifies the value medium a plan is priced in.
type Token string

// String implements fmt.Stringer.
func (t Token) String() string { return string(t) }

// IsZero reports whether the token is empty.
func (t Token) IsZero() bool { return t == "" }
