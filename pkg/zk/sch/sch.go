// Package zksch implements a non-interactive Schnorr proof of knowledge of a discrete logarithm.
package zksch

import (
	"io"

	"github.com/taurusgroup/frost-bridge/pkg/hash"
	"github.com/taurusgroup/frost-bridge/pkg/math/curve"
	"github.com/taurusgroup/frost-bridge/pkg/math/sample"
)

// Randomness = a ← ℤₙ.
type Randomness struct {
	a          *curve.Scalar
	commitment Commitment
}

// Commitment = randomness•G.
type Commitment struct {
	C *curve.Point
}

// Response = randomness + H(..., commitment, public)•secret (mod n).
type Response struct {
	Z *curve.Scalar
}

// Proof of knowledge of secret x such that public = x•G.
type Proof struct {
	C Commitment
	Z Response
}

// NewProof generates a Schnorr proof of knowledge of exponent for public, using the Fiat-Shamir transform.
func NewProof(rand io.Reader, hash *hash.Hash, public *curve.Point, private *curve.Scalar) *Proof {
	a := NewRandomness(rand)
	z := a.Prove(hash, public, private)
	return &Proof{
		C: *a.Commitment(),
		Z: *z,
	}
}

// NewRandomness creates a new a ∈ ℤₙ and the corresponding commitment C = a•G.
func NewRandomness(rand io.Reader) *Randomness {
	a := sample.Scalar(rand)
	return &Randomness{
		a:          a,
		commitment: Commitment{C: a.ActOnBase()},
	}
}

func challenge(hash *hash.Hash, commitment *Commitment, public *curve.Point) (*curve.Scalar, error) {
	if err := hash.WriteAny(commitment.C, public); err != nil {
		return nil, err
	}
	return curve.FromHash(hash.Sum()), nil
}

// Prove creates a Response = Randomness + H(..., Commitment, public)•secret (mod n).
func (r *Randomness) Prove(hash *hash.Hash, public *curve.Point, secret *curve.Scalar) *Response {
	if public.IsIdentity() || secret.IsZero() {
		return nil
	}
	e, err := challenge(hash, &r.commitment, public)
	if err != nil {
		return nil
	}
	z := e.Mul(secret).Add(r.a)
	return &Response{Z: z}
}

// Commitment returns the commitment C = a•G for the randomness a.
func (r *Randomness) Commitment() *Commitment {
	return &r.commitment
}

// Verify checks that Response•G = Commitment + H(..., Commitment, public)•public.
func (z *Response) Verify(hash *hash.Hash, public *curve.Point, commitment *Commitment) bool {
	if z == nil || z.Z == nil || !z.IsValid() || public.IsIdentity() {
		return false
	}
	if commitment == nil || !commitment.IsValid() {
		return false
	}

	e, err := challenge(hash, commitment, public)
	if err != nil {
		return false
	}

	lhs := z.Z.ActOnBase()
	rhs := e.Act(public).Add(commitment.C)

	return lhs.Equal(rhs)
}

// Verify checks a Schnorr proof of knowledge of the discrete logarithm of public.
func (p *Proof) Verify(hash *hash.Hash, public *curve.Point) bool {
	if p == nil {
		return false
	}
	return p.Z.Verify(hash, public, &p.C)
}

// IsValid returns true if the commitment is a non-identity point.
func (c *Commitment) IsValid() bool {
	return c.C != nil && !c.C.IsIdentity()
}

// IsValid returns true if the response is non-zero.
func (z *Response) IsValid() bool {
	return z.Z != nil && !z.Z.IsZero()
}
