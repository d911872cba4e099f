package polynomial

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/taurusgroup/frost-bridge/pkg/math/curve"
)

// Exponent represent a polynomial F(X) whose coefficients belong to a group 𝔾.
type Exponent struct {
	// IsConstant indicates that the constant coefficient is the identity.
	// We do this so that we never need to send an encoded Identity point, and thus consider it invalid
	IsConstant bool
	// coefficients is a list of curve.Point representing the coefficients of a polynomial over an elliptic curve.
	coefficients []*curve.Point
}

// NewPolynomialExponent generates an Exponent polynomial F(X) = [secret + a₁•X + … + aₜ•Xᵗ]•G,
// with coefficients in 𝔾, and degree t.
func NewPolynomialExponent(polynomial *Polynomial) *Exponent {
	p := &Exponent{
		IsConstant:   polynomial.coefficients[0].IsZero(),
		coefficients: make([]*curve.Point, 0, len(polynomial.coefficients)),
	}

	for i, c := range polynomial.coefficients {
		if p.IsConstant && i == 0 {
			continue
		}
		p.coefficients = append(p.coefficients, c.ActOnBase())
	}

	return p
}

// Evaluate returns F(x) = [f(x)]•G.
func (p *Exponent) Evaluate(x *curve.Scalar) *curve.Point {
	result := curve.NewIdentityPoint()

	for i := len(p.coefficients) - 1; i >= 0; i-- {
		// B_n-1 = [x]B_n  + A_n-1
		result = x.Act(result).Add(p.coefficients[i])
	}

	if p.IsConstant {
		// result is B₁
		// we want B₀ = [x]B₁ + A₀ = [x]B₁
		result = x.Act(result)
	}

	return result
}

// Degree returns the degree t of the polynomial.
func (p *Exponent) Degree() int {
	if p.IsConstant {
		return len(p.coefficients)
	}
	return len(p.coefficients) - 1
}

func (p *Exponent) add(q *Exponent) error {
	if len(p.coefficients) != len(q.coefficients) {
		return errors.New("q is not the same length as p")
	}

	if p.IsConstant != q.IsConstant {
		return errors.New("p and q differ in 'IsConstant'")
	}

	for i := 0; i < len(p.coefficients); i++ {
		p.coefficients[i] = p.coefficients[i].Add(q.coefficients[i])
	}

	return nil
}

// Sum creates a new Polynomial in the Exponent, by summing a slice of existing ones.
func Sum(polynomials []*Exponent) (*Exponent, error) {
	var err error

	// Create the new polynomial by copying the first one given
	summed := polynomials[0].Copy()

	// we assume all polynomials have the same degree as the first
	for j := 1; j < len(polynomials); j++ {
		err = summed.add(polynomials[j])
		if err != nil {
			return nil, err
		}
	}
	return summed, nil
}

// Copy returns a deep copy of p.
func (p *Exponent) Copy() *Exponent {
	q := &Exponent{
		IsConstant:   p.IsConstant,
		coefficients: make([]*curve.Point, len(p.coefficients)),
	}
	for i := 0; i < len(p.coefficients); i++ {
		q.coefficients[i] = curve.NewIdentityPoint().Set(p.coefficients[i])
	}
	return q
}

// Equal returns true if p and other represent the same polynomial.
func (p *Exponent) Equal(other *Exponent) bool {
	if p.IsConstant != other.IsConstant {
		return false
	}
	if len(p.coefficients) != len(other.coefficients) {
		return false
	}
	for i := 0; i < len(p.coefficients); i++ {
		if !p.coefficients[i].Equal(other.coefficients[i]) {
			return false
		}
	}
	return true
}

// Constant returns the constant coefficient of the polynomial 'in the exponent'.
func (p *Exponent) Constant() *curve.Point {
	if p.IsConstant {
		return curve.NewIdentityPoint()
	}
	return p.coefficients[0]
}

// Coefficients returns the coefficients in increasing degree, including an identity constant if needed.
func (p *Exponent) Coefficients() []*curve.Point {
	if !p.IsConstant {
		return p.coefficients
	}
	return append([]*curve.Point{curve.NewIdentityPoint()}, p.coefficients...)
}

// WriteTo implements io.WriterTo and should be used within the hash.Hash function.
func (p *Exponent) WriteTo(w io.Writer) (int64, error) {
	if p == nil {
		return 0, io.ErrUnexpectedEOF
	}
	total := int64(0)

	// write the number of coefficients
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(p.coefficients)))
	n, err := w.Write(lenBuf[:])
	total += int64(n)
	if err != nil {
		return total, err
	}
	// write the constant flag
	flag := []byte{0}
	if p.IsConstant {
		flag[0] = 1
	}
	n, err = w.Write(flag)
	total += int64(n)
	if err != nil {
		return total, err
	}

	// write all coefficients
	for _, c := range p.coefficients {
		n64, err := c.WriteTo(w)
		total += n64
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Domain implements hash.WriterToWithDomain.
func (*Exponent) Domain() string {
	return "Exponent"
}

// EmptyExponent returns a polynomial with no coefficients, ready to be unmarshalled into.
func EmptyExponent() *Exponent {
	return &Exponent{}
}

type exponentSerialized struct {
	IsConstant   bool
	Coefficients []*curve.Point
}

func (p *Exponent) MarshalBinary() ([]byte, error) {
	return cbor.Marshal(exponentSerialized{
		IsConstant:   p.IsConstant,
		Coefficients: p.coefficients,
	})
}

func (p *Exponent) UnmarshalBinary(data []byte) error {
	var serialized exponentSerialized
	if err := cbor.Unmarshal(data, &serialized); err != nil {
		return err
	}
	for _, c := range serialized.Coefficients {
		if c == nil || c.IsIdentity() {
			return errors.New("polynomial: identity coefficient")
		}
	}
	p.IsConstant = serialized.IsConstant
	p.coefficients = serialized.Coefficients
	return nil
}
