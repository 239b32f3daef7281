package types

import (
	"fmt"
	"math/big"
	"strings"
)

// FieldModulus is the BN254 scalar field modulus. All Field values are kept
// reduced into [0, FieldModulus).
var FieldModulus = mustParseModulus("21888242871839275222246405745257275088548364400416034343698204186575808495617")

func mustParseModulus(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("types: invalid field modulus literal")
	}
	return n
}

// Field is a BN254 scalar field element, always held reduced into
// [0, FieldModulus). The zero value is the field element zero.
//
// Field elements and on-chain amounts are kept as distinct types
// deliberately: amounts are uint64 base units with no modular reduction,
// so an amount above 2^64-1 cannot be represented, and mixing the two
// invites silent truncation.
type Field struct {
	v *big.Int
}

// FieldZero is the additive identity.
var FieldZero = Field{v: big.NewInt(0)}

// NewFieldFromBigInt reduces x modulo FieldModulus. x is never mutated.
func NewFieldFromBigInt(x *big.Int) Field {
	r := new(big.Int).Mod(x, FieldModulus)
	return Field{v: r}
}

// NewFieldFromUint64 reduces a small non-negative integer into the field.
func NewFieldFromUint64(x uint64) Field {
	return Field{v: new(big.Int).SetUint64(x)}
}

// ParseField parses a hex string ("0x...") or a decimal string and reduces
// the parsed integer with NewFieldFromBigInt, so hex, decimal, and
// NewFieldFromBigInt of the same integer all yield the same Field.
func ParseField(s string) (Field, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Field{}, fmt.Errorf("types: empty field literal")
	}

	var n *big.Int
	var ok bool
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		n, ok = new(big.Int).SetString(s[2:], 16)
	} else {
		n, ok = new(big.Int).SetString(s, 10)
	}
	if !ok {
		return Field{}, fmt.Errorf("types: %q is not a valid hex or decimal integer", s)
	}
	return NewFieldFromBigInt(n), nil
}

// BigInt returns a copy of the field element's canonical representative.
func (f Field) BigInt() *big.Int {
	if f.v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(f.v)
}

// Decimal renders the field element as a base-10 string: the wire format
// the Groth16 input record uses for every numeric signal.
func (f Field) Decimal() string {
	return f.BigInt().String()
}

// Hex renders the field element as a "0x"-prefixed hex string.
func (f Field) Hex() string {
	return "0x" + f.BigInt().Text(16)
}

// Bytes32 renders the field element as 32 big-endian bytes, zero-padded.
func (f Field) Bytes32() [32]byte {
	var out [32]byte
	b := f.BigInt().Bytes()
	copy(out[32-len(b):], b)
	return out
}

// IsZero reports whether the element is the additive identity.
func (f Field) IsZero() bool {
	return f.v == nil || f.v.Sign() == 0
}

// Equal reports field equality of two canonical representatives.
func (f Field) Equal(other Field) bool {
	return f.BigInt().Cmp(other.BigInt()) == 0
}

func (f Field) String() string {
	return f.Decimal()
}
