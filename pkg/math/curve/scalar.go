package curve

import (
	"errors"
	"fmt"
	"io"

	"github.com/cronokirby/saferith"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Scalar is an element of ℤ/nℤ, with n the order of secp256k1.
type Scalar struct {
	value secp256k1.ModNScalar
}

// NewScalar returns a new zero Scalar.
func NewScalar() *Scalar {
	return new(Scalar)
}

// NewScalarUInt32 returns a Scalar holding x.
func NewScalarUInt32(x uint32) *Scalar {
	var s Scalar
	s.value.SetInt(x)
	return &s
}

// Add sets s = s + t, and returns s.
func (s *Scalar) Add(t *Scalar) *Scalar {
	s.value.Add(&t.value)
	return s
}

// Sub sets s = s - t, and returns s.
func (s *Scalar) Sub(t *Scalar) *Scalar {
	var neg secp256k1.ModNScalar
	neg.NegateVal(&t.value)
	s.value.Add(&neg)
	return s
}

// Mul sets s = s * t, and returns s.
func (s *Scalar) Mul(t *Scalar) *Scalar {
	s.value.Mul(&t.value)
	return s
}

// Negate sets s = -s, and returns s.
func (s *Scalar) Negate() *Scalar {
	s.value.Negate()
	return s
}

// Invert sets s = 1/s, and returns s.
//
// The inverse of zero is zero.
func (s *Scalar) Invert() *Scalar {
	s.value.InverseNonConst()
	return s
}

// Set sets s = t, and returns s.
func (s *Scalar) Set(t *Scalar) *Scalar {
	s.value.Set(&t.value)
	return s
}

// SetNat sets s = x mod n, and returns s.
func (s *Scalar) SetNat(x *saferith.Nat) *Scalar {
	reduced := new(saferith.Nat).Mod(x, order)
	var buf [ScalarBytes]byte
	b := reduced.Bytes()
	copy(buf[ScalarBytes-len(b):], b)
	s.value.SetBytes(&buf)
	return s
}

// Equal returns true if s and t hold the same value.
func (s *Scalar) Equal(t *Scalar) bool {
	return s.value.Equals(&t.value)
}

// IsZero returns true if s = 0.
func (s *Scalar) IsZero() bool {
	return s.value.IsZero()
}

// Zeroize overwrites the value held by s.
func (s *Scalar) Zeroize() {
	s.value.Zero()
}

// Act returns s⋅P.
func (s *Scalar) Act(p *Point) *Point {
	out := new(Point)
	secp256k1.ScalarMultNonConst(&s.value, &p.value, &out.value)
	return out
}

// ActOnBase returns s⋅G, with G the generator of the group.
func (s *Scalar) ActOnBase() *Point {
	out := new(Point)
	secp256k1.ScalarBaseMultNonConst(&s.value, &out.value)
	return out
}

// Bytes returns the 32 byte big-endian encoding of s.
func (s *Scalar) Bytes() []byte {
	b := s.value.Bytes()
	return b[:]
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (s *Scalar) MarshalBinary() ([]byte, error) {
	return s.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
//
// Values outside of [0, n) are rejected.
func (s *Scalar) UnmarshalBinary(data []byte) error {
	if len(data) != ScalarBytes {
		return fmt.Errorf("curve.Scalar: invalid length: %d", len(data))
	}
	var exact [ScalarBytes]byte
	copy(exact[:], data)
	if s.value.SetBytes(&exact) != 0 {
		return errors.New("curve.Scalar: value overflows group order")
	}
	return nil
}

// WriteTo implements io.WriterTo and should be used within the hash.Hash function.
func (s *Scalar) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(s.Bytes())
	return int64(n), err
}

// Domain implements hash.WriterToWithDomain.
func (*Scalar) Domain() string {
	return "secp256k1 Scalar"
}
