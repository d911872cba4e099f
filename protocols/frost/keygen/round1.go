package keygen

import (
	"fmt"
	"io"

	"github.com/taurusgroup/frost-bridge/pkg/math/polynomial"
	"github.com/taurusgroup/frost-bridge/pkg/math/sample"
	"github.com/taurusgroup/frost-bridge/pkg/party"
	zksch "github.com/taurusgroup/frost-bridge/pkg/zk/sch"
)

// Round1Package is broadcast by every participant.
type Round1Package struct {
	// Commitment is Φᵢ(X) = fᵢ(X)•G
	Commitment *polynomial.Exponent
	// Proof is a proof of knowledge of fᵢ(0)
	Proof *zksch.Proof
}

// Round1Secret is the state a participant keeps between round 1 and finalization.
type Round1Secret struct {
	ID      party.ID
	Params  Params
	Context []byte
	// Polynomial is fᵢ(X); it must never leave the participant.
	Polynomial *polynomial.Polynomial
	Package    *Round1Package
}

// Round1 samples the participant's secret polynomial and commits to it.
//
// context must be unique to the ceremony and identical for all participants.
// All secret values are sampled from rand.
func Round1(rand io.Reader, id party.ID, params Params, context []byte) (*Round1Secret, *Round1Package, error) {
	const op = "keygen.Round1"
	if err := params.Validate(); err != nil {
		return nil, nil, configError(op, err)
	}
	if !params.Participants().Contains(id) {
		return nil, nil, configError(op, fmt.Errorf("identifier %d is not in 1..%d", id, params.N))
	}

	// Sample fᵢ(X) with deg(fᵢ) = t-1 and fᵢ(0) = aᵢ₀ ≠ 0
	a_i0 := sample.Scalar(rand)
	f_i := polynomial.NewPolynomial(rand, params.Degree(), a_i0)

	// σᵢ proves knowledge of aᵢ₀
	Sigma_i := zksch.NewProof(rand, transcript(context, params, id), a_i0.ActOnBase(), a_i0)
	a_i0.Zeroize()

	pkg := &Round1Package{
		Commitment: polynomial.NewPolynomialExponent(f_i),
		Proof:      Sigma_i,
	}
	secret := &Round1Secret{
		ID:         id,
		Params:     params,
		Context:    append([]byte(nil), context...),
		Polynomial: f_i,
		Package:    pkg,
	}
	return secret, pkg, nil
}

// verify checks the shape of the package sent by from and its proof of knowledge.
func (p *Round1Package) verify(context []byte, params Params, from party.ID) error {
	if p == nil || p.Commitment == nil || p.Proof == nil {
		return fmt.Errorf("nil fields")
	}
	if p.Commitment.IsConstant {
		return fmt.Errorf("zero constant")
	}
	if p.Commitment.Degree() != params.Degree() {
		return fmt.Errorf("commitment has degree %d, expected %d", p.Commitment.Degree(), params.Degree())
	}
	if !p.Proof.Verify(transcript(context, params, from), p.Commitment.Constant()) {
		return fmt.Errorf("failed to verify Schnorr proof")
	}
	return nil
}
