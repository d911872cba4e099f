// Package sign implements the per-participant steps of FROST signing, producing BIP-340 signatures.
//
// Signing follows Figure 3 of the FROST paper (https://eprint.iacr.org/2020/852.pdf),
// with the coordinator acting as the signing authority: it collects the
// commitments of a quorum into a SigningPackage, hands it to each member of the
// quorum, and aggregates the returned shares.
package sign

import (
	"fmt"

	"github.com/taurusgroup/frost-bridge/pkg/hash"
	"github.com/taurusgroup/frost-bridge/pkg/math/curve"
	"github.com/taurusgroup/frost-bridge/pkg/math/polynomial"
	"github.com/taurusgroup/frost-bridge/pkg/math/sample"
	"github.com/taurusgroup/frost-bridge/pkg/party"
	"github.com/taurusgroup/frost-bridge/pkg/protocol"
	"github.com/taurusgroup/frost-bridge/pkg/taproot"
	"github.com/taurusgroup/frost-bridge/protocols/frost/keygen"
)

const protocolID = "frost/sign-secp256k1-bip340"

// SigningCommitment is the public part of a participant's nonces.
type SigningCommitment struct {
	// D = d•G
	D *curve.Point
	// E = e•G
	E *curve.Point
}

// SigningPackage is the message together with the commitments of the quorum.
type SigningPackage struct {
	Message     []byte
	Commitments map[party.ID]*SigningCommitment
}

// SignatureShare is zᵢ = dᵢ + (eᵢ ρᵢ) + λᵢ sᵢ c.
type SignatureShare struct {
	Z *curve.Scalar
}

// Signers returns the sorted identifiers of the quorum.
func (p *SigningPackage) Signers() party.IDSlice {
	ids := make([]party.ID, 0, len(p.Commitments))
	for id := range p.Commitments {
		ids = append(ids, id)
	}
	return party.NewIDSlice(ids)
}

// Validate checks the package against the threshold parameters.
func (p *SigningPackage) Validate(params keygen.Params) error {
	const op = "sign.SigningPackage"
	if len(p.Commitments) < params.T {
		return protocol.NewError(protocol.KindMissingData, op,
			fmt.Errorf("%d commitments for threshold %d", len(p.Commitments), params.T))
	}
	participants := params.Participants()
	for id, c := range p.Commitments {
		if !participants.Contains(id) {
			return protocol.NewError(protocol.KindConfig, op, fmt.Errorf("unknown signer %d", id), id)
		}
		if c == nil || c.D == nil || c.E == nil || c.D.IsIdentity() || c.E.IsIdentity() {
			return protocol.NewError(protocol.KindCrypto, op, fmt.Errorf("invalid nonce commitment"), id)
		}
	}
	return nil
}

// signingContext holds the values every member of the quorum derives identically from a SigningPackage.
type signingContext struct {
	signers party.IDSlice
	// rho[l] = ρₗ = H(Y, m, B, l)
	rho map[party.ID]*curve.Scalar
	// RShares[l] = Dₗ + ρₗ•Eₗ, negated along with R
	RShares map[party.ID]*curve.Point
	// R has an even y coordinate
	R       *curve.Point
	negated bool
	c       *curve.Scalar
	lambda  map[party.ID]*curve.Scalar
}

func newContext(pkg *SigningPackage, publicKey *curve.Point) *signingContext {
	signers := pkg.Signers()

	// It's easier to calculate H(Y, m, B, l), that way we can simply clone the hash
	// state after H(Y, m, B), instead of rehashing them each time.
	rhoPreHash := hash.New(&hash.BytesWithDomain{TheDomain: "Protocol ID", Bytes: []byte(protocolID)})
	_ = rhoPreHash.WriteAny(publicKey, &hash.BytesWithDomain{TheDomain: "Message", Bytes: pkg.Message})
	for _, l := range signers {
		_ = rhoPreHash.WriteAny(l, pkg.Commitments[l].D, pkg.Commitments[l].E)
	}

	ctx := &signingContext{
		signers: signers,
		rho:     make(map[party.ID]*curve.Scalar, len(signers)),
		RShares: make(map[party.ID]*curve.Point, len(signers)),
		R:       curve.NewIdentityPoint(),
	}
	for _, l := range signers {
		rhoHash := rhoPreHash.Clone()
		_ = rhoHash.WriteAny(l)
		ctx.rho[l] = sample.Scalar(rhoHash.Digest())

		ctx.RShares[l] = ctx.rho[l].Act(pkg.Commitments[l].E).Add(pkg.Commitments[l].D)
		ctx.R = ctx.R.Add(ctx.RShares[l])
	}

	// BIP-340 adjustment: We need R to have an even y coordinate. This means
	// conditionally negating k = ∑ᵢ (dᵢ + (eᵢ ρᵢ)), which every signer
	// does by negating its dᵢ, eᵢ. This entails negating the RShares as well.
	if !ctx.R.HasEvenY() {
		ctx.negated = true
		ctx.R = ctx.R.Negate()
		for l, R_l := range ctx.RShares {
			ctx.RShares[l] = R_l.Negate()
		}
	}

	ctx.c = taproot.Challenge(ctx.R.XBytes(), publicKey.XBytes(), pkg.Message)
	ctx.lambda = polynomial.Lagrange(signers)
	return ctx
}

// Sign computes the participant's signature share, and erases the nonces.
//
// The nonces are zeroed whether or not signing succeeds, and zeroed nonces are
// rejected, so the same SigningNonces can never produce two shares.
func Sign(key *keygen.KeyPackage, nonces *SigningNonces, pkg *SigningPackage) (*SignatureShare, error) {
	const op = "sign.Sign"
	if nonces == nil || nonces.consumed() {
		return nil, protocol.NewError(protocol.KindProtocol, op, protocol.ErrNonceConsumed, key.ID)
	}
	defer nonces.Zeroize()

	if err := pkg.Validate(key.Params); err != nil {
		return nil, err
	}
	own, ok := pkg.Commitments[key.ID]
	if !ok {
		return nil, protocol.NewError(protocol.KindConfig, op, fmt.Errorf("signer %d is not in the quorum", key.ID), key.ID)
	}
	if !own.D.Equal(nonces.D.ActOnBase()) || !own.E.Equal(nonces.E.ActOnBase()) {
		return nil, protocol.NewError(protocol.KindCrypto, op, fmt.Errorf("commitment does not match nonces"), key.ID)
	}

	ctx := newContext(pkg, key.PublicKey)

	d := curve.NewScalar().Set(nonces.D)
	e := curve.NewScalar().Set(nonces.E)
	if ctx.negated {
		d.Negate()
		e.Negate()
	}

	// zᵢ = dᵢ + (eᵢ ρᵢ) + λᵢ sᵢ c
	z := curve.NewScalar().Set(ctx.lambda[key.ID]).Mul(key.SecretShare).Mul(ctx.c)
	z.Add(d).Add(e.Mul(ctx.rho[key.ID]))
	d.Zeroize()
	e.Zeroize()

	return &SignatureShare{Z: z}, nil
}

// VerifyShare checks zᵢ•G = Rᵢ + c•λᵢ•Yᵢ.
func VerifyShare(public *keygen.PublicKeyPackage, pkg *SigningPackage, id party.ID, share *SignatureShare) error {
	if err := pkg.Validate(public.Params); err != nil {
		return err
	}
	return newContext(pkg, public.PublicKey).verifyShare(public, id, share)
}

func (ctx *signingContext) verifyShare(public *keygen.PublicKeyPackage, id party.ID, share *SignatureShare) error {
	const op = "sign.VerifyShare"
	R_i, ok := ctx.RShares[id]
	Y_i, okY := public.VerificationShares[id]
	if !ok || !okY {
		return protocol.NewError(protocol.KindConfig, op, fmt.Errorf("signer %d is not in the quorum", id), id)
	}
	if share == nil || share.Z == nil {
		return protocol.NewError(protocol.KindCrypto, op, fmt.Errorf("%w: empty", protocol.ErrInvalidShare), id)
	}
	lhs := share.Z.ActOnBase()
	rhs := curve.NewScalar().Set(ctx.c).Mul(ctx.lambda[id]).Act(Y_i).Add(R_i)
	if !lhs.Equal(rhs) {
		return protocol.NewError(protocol.KindCrypto, op, protocol.ErrInvalidShare, id)
	}
	return nil
}

// Aggregate verifies every share, sums them, and verifies the resulting signature
// against the group public key.
//
// shares must contain one share for each signer of pkg.
func Aggregate(public *keygen.PublicKeyPackage, pkg *SigningPackage, shares map[party.ID]*SignatureShare) (taproot.Signature, error) {
	const op = "sign.Aggregate"
	if err := pkg.Validate(public.Params); err != nil {
		return nil, err
	}
	ctx := newContext(pkg, public.PublicKey)

	var missing []party.ID
	for _, l := range ctx.signers {
		if _, ok := shares[l]; !ok {
			missing = append(missing, l)
		}
	}
	if len(missing) > 0 {
		return nil, protocol.NewError(protocol.KindMissingData, op,
			fmt.Errorf("%w: signature shares from %v", protocol.ErrMissingPackage, party.IDSlice(missing)), missing...)
	}

	z := curve.NewScalar()
	for _, l := range ctx.signers {
		if err := ctx.verifyShare(public, l, shares[l]); err != nil {
			return nil, err
		}
		z.Add(shares[l].Z)
	}

	sig := taproot.NewSignature(ctx.R, z)
	if !public.XOnly().Verify(sig, pkg.Message) {
		return nil, protocol.NewError(protocol.KindCrypto, op, fmt.Errorf("aggregate signature failed to verify"))
	}
	return sig, nil
}
