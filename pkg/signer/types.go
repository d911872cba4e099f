package signer

import (
	"github.com/taurusgroup/frost-bridge/pkg/math/curve"
	"github.com/taurusgroup/frost-bridge/pkg/musig"
	"github.com/taurusgroup/frost-bridge/pkg/party"
	"github.com/taurusgroup/frost-bridge/protocols/frost/keygen"
	"github.com/taurusgroup/frost-bridge/protocols/frost/sign"
)

// Every request names the identity and the ceremony it belongs to, so that
// no state is shared between ceremonies.

type DkgRound1Request struct {
	MusigID    musig.ID
	DkgShareID string
	Params     keygen.Params
}

type DkgRound2Request struct {
	MusigID    musig.ID
	DkgShareID string
	Params     keygen.Params
	// Round1 holds the round 1 package of all N participants.
	Round1 map[party.ID]*keygen.Round1Package
}

type FinalizeDkgRequest struct {
	MusigID    musig.ID
	DkgShareID string
	Params     keygen.Params
	Round1     map[party.ID]*keygen.Round1Package
	// Round2 holds the packages addressed to the receiving participant, keyed by sender.
	Round2 map[party.ID]*keygen.Round2Package
}

type SignRound1Request struct {
	MusigID   musig.ID
	SessionID string
}

type SignRound2Request struct {
	MusigID   musig.ID
	SessionID string
	Package   *sign.SigningPackage
	// Tweak, if set, signs for the key Y + Tweak•G.
	Tweak *curve.Scalar
}
