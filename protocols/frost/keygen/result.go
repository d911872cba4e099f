package keygen

import (
	"bytes"
	"fmt"

	"github.com/taurusgroup/frost-bridge/pkg/math/curve"
	"github.com/taurusgroup/frost-bridge/pkg/math/polynomial"
	"github.com/taurusgroup/frost-bridge/pkg/party"
	"github.com/taurusgroup/frost-bridge/pkg/protocol"
	"github.com/taurusgroup/frost-bridge/pkg/taproot"
)

// KeyPackage is the long-term secret state of one participant.
//
// It is never transmitted.
type KeyPackage struct {
	ID     party.ID
	Params Params
	// SecretShare is sᵢ = f(i)
	SecretShare *curve.Scalar
	// PublicKey is Y = f(0)•G, with an even y coordinate
	PublicKey *curve.Point
	// VerificationShare is Yᵢ = sᵢ•G
	VerificationShare *curve.Point
}

// PublicKeyPackage is the public result of the key generation,
// identical for all participants.
type PublicKeyPackage struct {
	Params Params
	// PublicKey is Y, with an even y coordinate
	PublicKey *curve.Point
	// VerificationShares maps each participant j to Yⱼ = sⱼ•G
	VerificationShares map[party.ID]*curve.Point
}

// Finalize verifies the shares received in round 2, and derives the participant's
// key share and the group's public key package.
//
// round2 is keyed by sender, and must contain the package addressed to secret.ID by every other participant.
func Finalize(secret *Round1Secret, round1 map[party.ID]*Round1Package, round2 map[party.ID]*Round2Package) (*KeyPackage, *PublicKeyPackage, error) {
	const op = "keygen.Finalize"
	if err := checkRound1(op, secret, round1); err != nil {
		return nil, nil, err
	}

	var missing []party.ID
	for _, l := range secret.Params.Participants() {
		if l == secret.ID {
			continue
		}
		if msg, ok := round2[l]; !ok || msg == nil || msg.Share == nil {
			missing = append(missing, l)
		}
	}
	if len(missing) > 0 {
		return nil, nil, protocol.NewError(protocol.KindMissingData, op,
			fmt.Errorf("%w: round 2 from %v", protocol.ErrMissingPackage, party.IDSlice(missing)), missing...)
	}

	for l, msg := range round2 {
		if !secret.Params.Participants().Contains(l) || msg == nil {
			return nil, nil, protocol.NewError(protocol.KindConfig, op, fmt.Errorf("unexpected round 2 package from %d", l), l)
		}
	}

	// fₗ(i)•G = Φₗ(i)
	selfScalar := secret.ID.Scalar()
	var culprits []party.ID
	for l, msg := range round2 {
		if l == secret.ID {
			continue
		}
		expected := round1[l].Commitment.Evaluate(selfScalar)
		if !msg.Share.ActOnBase().Equal(expected) {
			culprits = append(culprits, l)
		}
	}
	if len(culprits) > 0 {
		culprits = party.NewIDSlice(culprits)
		return nil, nil, protocol.NewError(protocol.KindCrypto, op,
			fmt.Errorf("%w: round 2 share does not match commitment", protocol.ErrInvalidShare), culprits...)
	}

	// sᵢ = ∑ₗ fₗ(i)
	s_i := secret.Polynomial.Evaluate(selfScalar)
	for l, msg := range round2 {
		if l == secret.ID {
			continue
		}
		s_i.Add(msg.Share)
	}

	// Φ = ∑ₗ Φₗ
	participants := secret.Params.Participants()
	commitments := make([]*polynomial.Exponent, 0, len(participants))
	for _, l := range participants {
		commitments = append(commitments, round1[l].Commitment)
	}
	Phi, err := polynomial.Sum(commitments)
	if err != nil {
		return nil, nil, protocol.NewError(protocol.KindCrypto, op, err)
	}

	public := &PublicKeyPackage{
		Params:             secret.Params,
		PublicKey:          Phi.Constant(),
		VerificationShares: make(map[party.ID]*curve.Point, len(participants)),
	}
	for _, j := range participants {
		public.VerificationShares[j] = Phi.Evaluate(j.Scalar())
	}

	// BIP-340 adjustment: the secret key is negated so that Y has an even y coordinate.
	if !public.PublicKey.HasEvenY() {
		s_i.Negate()
		public.negate()
	}

	key := &KeyPackage{
		ID:                secret.ID,
		Params:            secret.Params,
		SecretShare:       s_i,
		PublicKey:         public.PublicKey,
		VerificationShare: public.VerificationShares[secret.ID],
	}
	if !s_i.ActOnBase().Equal(key.VerificationShare) {
		return nil, nil, protocol.NewError(protocol.KindCrypto, op, fmt.Errorf("derived share does not match verification share"))
	}
	return key, public, nil
}

func (p *PublicKeyPackage) negate() {
	p.PublicKey = p.PublicKey.Negate()
	for j, Y_j := range p.VerificationShares {
		p.VerificationShares[j] = Y_j.Negate()
	}
}

// XOnly returns the BIP-340 encoding of the group public key.
func (p *PublicKeyPackage) XOnly() taproot.PublicKey {
	return taproot.PublicKeyFromPoint(p.PublicKey)
}

// Bytes returns the deterministic encoding of p.
//
// Two packages are identical if and only if their encodings are equal.
func (p *PublicKeyPackage) Bytes() ([]byte, error) {
	return protocol.Marshal(p)
}

// Equal compares the deterministic encodings of p and q.
func (p *PublicKeyPackage) Equal(q *PublicKeyPackage) bool {
	a, errA := p.Bytes()
	b, errB := q.Bytes()
	return errA == nil && errB == nil && bytes.Equal(a, b)
}

// Validate checks that p is complete for its parameters and that Y has an even y coordinate.
func (p *PublicKeyPackage) Validate() error {
	if err := p.Params.Validate(); err != nil {
		return err
	}
	if p.PublicKey == nil || p.PublicKey.IsIdentity() || !p.PublicKey.HasEvenY() {
		return fmt.Errorf("keygen: invalid group public key")
	}
	for _, j := range p.Params.Participants() {
		if Y_j, ok := p.VerificationShares[j]; !ok || Y_j == nil || Y_j.IsIdentity() {
			return fmt.Errorf("keygen: missing verification share for %d", j)
		}
	}
	if len(p.VerificationShares) != p.Params.N {
		return fmt.Errorf("keygen: %d verification shares for %d participants", len(p.VerificationShares), p.Params.N)
	}
	return nil
}

// Derive returns the package for the key Y + adjust•G, with BIP-340 normalization.
func (p *PublicKeyPackage) Derive(adjust *curve.Scalar) (*PublicKeyPackage, error) {
	adjustG := adjust.ActOnBase()
	derived := &PublicKeyPackage{
		Params:             p.Params,
		PublicKey:          p.PublicKey.Add(adjustG),
		VerificationShares: make(map[party.ID]*curve.Point, len(p.VerificationShares)),
	}
	if derived.PublicKey.IsIdentity() {
		return nil, fmt.Errorf("keygen: derived key is the identity")
	}
	for j, Y_j := range p.VerificationShares {
		derived.VerificationShares[j] = Y_j.Add(adjustG)
	}
	if !derived.PublicKey.HasEvenY() {
		derived.negate()
	}
	return derived, nil
}

// Derive returns the key package for the key Y + adjust•G, with BIP-340 normalization.
//
// Since the Lagrange coefficients of any quorum sum to one, adding adjust to
// every share adds adjust to the shared secret.
func (k *KeyPackage) Derive(adjust *curve.Scalar) (*KeyPackage, error) {
	adjustG := adjust.ActOnBase()
	publicKey := k.PublicKey.Add(adjustG)
	if publicKey.IsIdentity() {
		return nil, fmt.Errorf("keygen: derived key is the identity")
	}
	share := curve.NewScalar().Set(k.SecretShare).Add(adjust)
	if !publicKey.HasEvenY() {
		share.Negate()
		publicKey = publicKey.Negate()
	}
	return &KeyPackage{
		ID:                k.ID,
		Params:            k.Params,
		SecretShare:       share,
		PublicKey:         publicKey,
		VerificationShare: share.ActOnBase(),
	}, nil
}

// Zeroize erases the secret share.
func (k *KeyPackage) Zeroize() {
	k.SecretShare.Zeroize()
}
