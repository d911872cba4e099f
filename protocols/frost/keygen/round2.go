package keygen

import (
	"fmt"

	"github.com/taurusgroup/frost-bridge/pkg/math/curve"
	"github.com/taurusgroup/frost-bridge/pkg/party"
	"github.com/taurusgroup/frost-bridge/pkg/protocol"
)

// Round2Package is sent privately by participant i to participant l.
type Round2Package struct {
	// Share is fᵢ(l)
	Share *curve.Scalar
}

// Round2 verifies the round 1 packages of all N participants, and evaluates
// the secret polynomial at every other participant's identifier.
//
// The returned map is keyed by recipient.
func Round2(secret *Round1Secret, round1 map[party.ID]*Round1Package) (map[party.ID]*Round2Package, error) {
	const op = "keygen.Round2"
	if err := checkRound1(op, secret, round1); err != nil {
		return nil, err
	}

	out := make(map[party.ID]*Round2Package, secret.Params.N-1)
	for _, l := range secret.Params.Participants() {
		if l == secret.ID {
			continue
		}
		out[l] = &Round2Package{Share: secret.Polynomial.Evaluate(l.Scalar())}
	}
	return out, nil
}

// checkRound1 requires a valid package from each of the N participants,
// where the entry for secret.ID is the one secret.ID produced.
func checkRound1(op string, secret *Round1Secret, round1 map[party.ID]*Round1Package) error {
	participants := secret.Params.Participants()

	var missing, culprits []party.ID
	for _, l := range participants {
		if _, ok := round1[l]; !ok {
			missing = append(missing, l)
		}
	}
	if len(missing) > 0 {
		return protocol.NewError(protocol.KindMissingData, op,
			fmt.Errorf("%w: round 1 from %v", protocol.ErrMissingPackage, party.IDSlice(missing)), missing...)
	}
	for l := range round1 {
		if !participants.Contains(l) {
			return protocol.NewError(protocol.KindConfig, op, fmt.Errorf("unknown identifier %d", l), l)
		}
	}

	own := round1[secret.ID]
	if own == nil || own.Commitment == nil || !own.Commitment.Equal(secret.Package.Commitment) {
		return protocol.NewError(protocol.KindCrypto, op,
			fmt.Errorf("round 1 package for %d is not the one it produced", secret.ID), secret.ID)
	}

	var errs []error
	for _, l := range participants {
		if l == secret.ID {
			continue
		}
		if err := round1[l].verify(secret.Context, secret.Params, l); err != nil {
			culprits = append(culprits, l)
			errs = append(errs, fmt.Errorf("party %d: %w", l, err))
		}
	}
	if len(culprits) > 0 {
		return protocol.NewError(protocol.KindCrypto, op, fmt.Errorf("invalid round 1 packages: %v", errs), culprits...)
	}
	return nil
}
