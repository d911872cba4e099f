package curve

import (
	"errors"
	"fmt"
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Point is an element of the secp256k1 group.
//
// The zero value is the identity.
type Point struct {
	value secp256k1.JacobianPoint
}

// NewIdentityPoint returns the identity element.
func NewIdentityPoint() *Point {
	return new(Point)
}

// NewBasePoint returns the generator G.
func NewBasePoint() *Point {
	return NewScalarUInt32(1).ActOnBase()
}

func (p *Point) affine() *secp256k1.JacobianPoint {
	if p.IsIdentity() {
		return &p.value
	}
	out := new(secp256k1.JacobianPoint)
	out.Set(&p.value)
	out.ToAffine()
	return out
}

// Add returns p + q.
func (p *Point) Add(q *Point) *Point {
	out := new(Point)
	secp256k1.AddNonConst(&p.value, &q.value, &out.value)
	return out
}

// Sub returns p - q.
func (p *Point) Sub(q *Point) *Point {
	return p.Add(q.Negate())
}

// Negate returns -p.
func (p *Point) Negate() *Point {
	out := new(Point)
	if p.IsIdentity() {
		return out
	}
	out.value.Set(p.affine())
	out.value.Y.Negate(1)
	out.value.Y.Normalize()
	return out
}

// Set sets p = q, and returns p.
func (p *Point) Set(q *Point) *Point {
	p.value.Set(&q.value)
	return p
}

// Equal returns true if p and q are the same group element.
func (p *Point) Equal(q *Point) bool {
	if p.IsIdentity() || q.IsIdentity() {
		return p.IsIdentity() && q.IsIdentity()
	}
	a, b := p.affine(), q.affine()
	return a.X.Equals(&b.X) && a.Y.Equals(&b.Y)
}

// IsIdentity returns true if p is the point at infinity.
func (p *Point) IsIdentity() bool {
	x, y, z := p.value.X, p.value.Y, p.value.Z
	x.Normalize()
	y.Normalize()
	z.Normalize()
	return (x.IsZero() && y.IsZero()) || z.IsZero()
}

// HasEvenY returns true if the affine y coordinate of p is even.
//
// BIP-340 represents public keys and nonces by their x coordinate only,
// implicitly choosing the point with an even y coordinate.
func (p *Point) HasEvenY() bool {
	return !p.affine().Y.IsOdd()
}

// XBytes returns the 32 byte x coordinate of p.
func (p *Point) XBytes() []byte {
	x := p.affine().X
	x.Normalize()
	b := x.Bytes()
	return b[:]
}

// LiftX returns the point with x coordinate x and an even y coordinate.
//
// See: https://github.com/bitcoin/bips/blob/master/bip-0340.mediawiki#specification
func LiftX(x []byte) (*Point, error) {
	if len(x) != 32 {
		return nil, fmt.Errorf("curve.LiftX: invalid length: %d", len(x))
	}
	out := new(Point)
	if out.value.X.SetByteSlice(x) {
		return nil, errors.New("curve.LiftX: x coordinate out of range")
	}
	if !secp256k1.DecompressY(&out.value.X, false, &out.value.Y) {
		return nil, errors.New("curve.LiftX: x coordinate not on curve")
	}
	out.value.Z.SetInt(1)
	return out, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
//
// Points are encoded in the 33 byte compressed form used by Bitcoin.
// The identity is encoded as 33 zero bytes.
func (p *Point) MarshalBinary() ([]byte, error) {
	out := make([]byte, PointBytes)
	if p.IsIdentity() {
		return out, nil
	}
	a := p.affine()
	out[0] = byte(a.Y.IsOddBit()) + 2
	x := a.X.Bytes()
	copy(out[1:], x[:])
	return out, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (p *Point) UnmarshalBinary(data []byte) error {
	if len(data) != PointBytes {
		return fmt.Errorf("curve.Point: invalid length: %d", len(data))
	}
	if data[0] == 0 {
		for _, b := range data[1:] {
			if b != 0 {
				return errors.New("curve.Point: invalid identity encoding")
			}
		}
		p.value = secp256k1.JacobianPoint{}
		return nil
	}
	if data[0] != 2 && data[0] != 3 {
		return fmt.Errorf("curve.Point: invalid prefix: %d", data[0])
	}
	var value secp256k1.JacobianPoint
	if value.X.SetByteSlice(data[1:]) {
		return errors.New("curve.Point: x coordinate out of range")
	}
	if !secp256k1.DecompressY(&value.X, data[0] == 3, &value.Y) {
		return errors.New("curve.Point: x coordinate not on curve")
	}
	value.Z.SetInt(1)
	p.value = value
	return nil
}

// WriteTo implements io.WriterTo and should be used within the hash.Hash function.
func (p *Point) WriteTo(w io.Writer) (int64, error) {
	data, err := p.MarshalBinary()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

// Domain implements hash.WriterToWithDomain.
func (*Point) Domain() string {
	return "secp256k1 Point"
}
