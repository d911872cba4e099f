// Package keygen implements the per-participant steps of the FROST distributed key generation.
//
// Each step is a function of its inputs and the state returned by the previous
// step, so that a participant can persist that state between steps and resume
// after a restart. The group key is normalized to have an even y coordinate,
// so that the result can be used directly for BIP-340 signatures.
package keygen

import (
	"fmt"

	"github.com/taurusgroup/frost-bridge/pkg/hash"
	"github.com/taurusgroup/frost-bridge/pkg/party"
	"github.com/taurusgroup/frost-bridge/pkg/protocol"
)

const protocolID = "frost/keygen-secp256k1-bip340"

// Params are the threshold parameters of one key: any T of the N participants can sign.
type Params struct {
	N int
	T int
}

// Validate checks 1 ≤ T ≤ N ≤ 2¹⁶-1.
func (p Params) Validate() error {
	if p.N < 1 || p.N > 0xFFFF {
		return fmt.Errorf("keygen: invalid number of participants %d", p.N)
	}
	if p.T < 1 || p.T > p.N {
		return fmt.Errorf("keygen: invalid threshold %d for %d participants", p.T, p.N)
	}
	return nil
}

// Participants returns the identifiers 1, …, N.
func (p Params) Participants() party.IDSlice {
	return party.Range(p.N)
}

// Degree returns the degree of the secret polynomials.
func (p Params) Degree() int {
	return p.T - 1
}

func (p Params) String() string {
	return fmt.Sprintf("%d-of-%d", p.T, p.N)
}

// transcript returns the hash used by id to prove knowledge of its secret constant.
//
// It binds the proof to the ceremony context and the prover.
func transcript(context []byte, params Params, id party.ID) *hash.Hash {
	h := hash.New(&hash.BytesWithDomain{TheDomain: "Protocol ID", Bytes: []byte(protocolID)})
	_ = h.WriteAny(
		&hash.BytesWithDomain{TheDomain: "Context", Bytes: context},
		uint16(params.N), uint16(params.T), id,
	)
	return h
}

func configError(op string, err error) error {
	return protocol.NewError(protocol.KindConfig, op, err)
}
