package crypto

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/stark-curve/fp"
)

// ErrInvalidFieldElement is returned when input cannot be represented as an
// element of the Stark field.
var ErrInvalidFieldElement = errors.New("invalid field element")

// FeltBytes is the size of the big-endian encoding of a Felt.
const FeltBytes = fp.Bytes

// Felt is an element of the Stark prime field p = 2^251 + 17*2^192 + 1. The
// zero value is the field zero.
type Felt struct {
	e fp.Element
}

// FeltFromUint64 returns v as a field element.
func FeltFromUint64(v uint64) Felt {
	var f Felt
	f.e.SetUint64(v)
	return f
}

// FeltFromBigInt reduces v modulo p.
func FeltFromBigInt(v *big.Int) Felt {
	var f Felt
	if v != nil {
		f.e.SetBigInt(v)
	}
	return f
}

// FeltFromDecimal parses a base-10 numeral. Signs, whitespace, prefixes and
// values outside [0, p) are rejected.
func FeltFromDecimal(s string) (Felt, error) {
	if s == "" {
		return Felt{}, fmt.Errorf("%w: empty input", ErrInvalidFieldElement)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return Felt{}, fmt.Errorf("%w: %q is not a decimal numeral", ErrInvalidFieldElement, s)
		}
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Felt{}, fmt.Errorf("%w: %q is not a decimal numeral", ErrInvalidFieldElement, s)
	}
	return feltFromCanonical(v)
}

// FeltFromCoupon converts a coupon code using the decimal rule of
// FeltFromDecimal. Codes that are not decimal numerals cannot be signed over.
func FeltFromCoupon(code string) (Felt, error) {
	f, err := FeltFromDecimal(code)
	if err != nil {
		return Felt{}, fmt.Errorf("coupon code: %w", err)
	}
	return f, nil
}

// ParseFelt accepts either a 0x-prefixed hex string or a decimal numeral.
func ParseFelt(s string) (Felt, error) {
	trimmed := strings.TrimSpace(s)
	lower := strings.ToLower(trimmed)
	if !strings.HasPrefix(lower, "0x") {
		return FeltFromDecimal(trimmed)
	}
	digits := lower[2:]
	if digits == "" {
		return Felt{}, fmt.Errorf("%w: empty hex value", ErrInvalidFieldElement)
	}
	v, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return Felt{}, fmt.Errorf("%w: %q is not a hex numeral", ErrInvalidFieldElement, s)
	}
	return feltFromCanonical(v)
}

// FeltFromBytes interprets b as a big-endian integer of at most FeltBytes bytes.
func FeltFromBytes(b []byte) (Felt, error) {
	if len(b) > FeltBytes {
		return Felt{}, fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidFieldElement, len(b), FeltBytes)
	}
	return feltFromCanonical(new(big.Int).SetBytes(b))
}

func feltFromCanonical(v *big.Int) (Felt, error) {
	if v.Sign() < 0 || v.Cmp(fp.Modulus()) >= 0 {
		return Felt{}, fmt.Errorf("%w: value out of range", ErrInvalidFieldElement)
	}
	var f Felt
	f.e.SetBigInt(v)
	return f, nil
}

// MustFelt parses s with ParseFelt and panics on failure. Intended for
// package-level constants.
func MustFelt(s string) Felt {
	f, err := ParseFelt(s)
	if err != nil {
		panic(err)
	}
	return f
}

// BigInt returns the canonical integer representative.
func (f Felt) BigInt() *big.Int {
	return f.e.BigInt(new(big.Int))
}

// Bytes returns the 32-byte big-endian encoding.
func (f Felt) Bytes() [FeltBytes]byte {
	return f.e.Bytes()
}

func (f Felt) String() string {
	return f.BigInt().Text(10)
}

// Hex returns the 0x-prefixed lowercase hex form without leading zeros.
func (f Felt) Hex() string {
	return "0x" + f.BigInt().Text(16)
}

func (f Felt) Equal(other Felt) bool {
	return f.e.Equal(&other.e)
}

func (f Felt) IsZero() bool {
	return f.e.IsZero()
}

// Cmp compares canonical representatives.
func (f Felt) Cmp(other Felt) int {
	return f.e.Cmp(&other.e)
}

// BitLen returns the bit length of the canonical representative.
func (f Felt) BitLen() int {
	return f.BigInt().BitLen()
}

func (f Felt) element() *fp.Element {
	e := f.e
	return &e
}

// MarshalText encodes the felt as 0x-prefixed hex.
func (f Felt) MarshalText() ([]byte, error) {
	return []byte(f.Hex()), nil
}

// UnmarshalText accepts hex or decimal.
func (f *Felt) UnmarshalText(text []byte) error {
	parsed, err := ParseFelt(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

func (f Felt) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Hex())
}

// UnmarshalJSON accepts a JSON string (hex or decimal) or a JSON number.
func (f *Felt) UnmarshalJSON(data []byte) error {
	var raw string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	} else {
		raw = string(data)
	}
	return f.UnmarshalText([]byte(raw))
}
