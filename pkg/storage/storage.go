// Package storage defines the durable state of signers and of the aggregator.
//
// Every Set is an upsert, and a Get observes the last Set for the same key.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/taurusgroup/frost-bridge/pkg/musig"
	"github.com/taurusgroup/frost-bridge/pkg/party"
	"github.com/taurusgroup/frost-bridge/protocols/frost/keygen"
	"github.com/taurusgroup/frost-bridge/protocols/frost/sign"
)

// ErrNotFound is returned by Get methods when no value is stored for the key.
var ErrNotFound = errors.New("storage: not found")

// DkgPhase is the last step a participant completed in one key generation ceremony.
type DkgPhase uint8

const (
	DkgRound1 DkgPhase = iota + 1
	DkgRound2
	DkgFinalized
)

func (p DkgPhase) String() string {
	switch p {
	case DkgRound1:
		return "round1"
	case DkgRound2:
		return "round2"
	case DkgFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// DkgState is a participant's state in one key generation ceremony.
//
// Each step stores its output so that a repeated request returns it unchanged.
type DkgState struct {
	MusigID musig.ID
	Phase   DkgPhase
	Params  keygen.Params

	// Secret holds the secret polynomial and this participant's round 1 package.
	Secret *keygen.Round1Secret
	// Round1 is the full set of round 1 packages, stored by round 2.
	Round1 map[party.ID]*keygen.Round1Package
	// Round2 is this participant's round 2 output, keyed by recipient.
	Round2    map[party.ID]*keygen.Round2Package
	Key       *keygen.KeyPackage
	Public    *keygen.PublicKeyPackage
	UpdatedAt time.Time
}

// SignSession is a participant's state in one signing ceremony.
type SignSession struct {
	MusigID    musig.ID
	Nonces     *sign.SigningNonces
	Commitment *sign.SigningCommitment
	// Consumed is set before a signature share is computed; the nonces are erased at the same time.
	Consumed  bool
	CreatedAt time.Time
}

// UserState is a participant's long-term state for one identity.
type UserState struct {
	MusigID    musig.ID
	DkgShareID string
	Params     keygen.Params
	Public     *keygen.PublicKeyPackage
}

// DkgShareStorage stores key generation state by ceremony id.
type DkgShareStorage interface {
	GetDkgState(ctx context.Context, dkgShareID string) (*DkgState, error)
	SetDkgState(ctx context.Context, dkgShareID string, state *DkgState) error
	// DeleteDkgStatesBefore removes unfinalized ceremonies last updated before t,
	// and returns how many were removed. Finalized ceremonies hold key shares and are kept.
	DeleteDkgStatesBefore(ctx context.Context, t time.Time) (int, error)
}

// SignSessionStorage stores signing state by session id.
type SignSessionStorage interface {
	GetSignSession(ctx context.Context, sessionID string) (*SignSession, error)
	SetSignSession(ctx context.Context, sessionID string, session *SignSession) error
	// DeleteSignSessionsBefore removes sessions created before t, and returns how many were removed.
	DeleteSignSessionsBefore(ctx context.Context, t time.Time) (int, error)
}

// UserStateStorage stores the finalized key of each identity.
type UserStateStorage interface {
	GetUserState(ctx context.Context, id musig.ID) (*UserState, error)
	SetUserState(ctx context.Context, id musig.ID, state *UserState) error
}

// SignerStorage is everything a signer persists.
type SignerStorage interface {
	DkgShareStorage
	SignSessionStorage
	UserStateStorage
}

// PendingDkg is a key generation ceremony the aggregator sent to finalization
// but has not registered yet. Finalizing it again with the same inputs lets
// participants that already finalized replay their output.
type PendingDkg struct {
	DkgShareID string
	Params     keygen.Params
	Round1     map[party.ID]*keygen.Round1Package
	// Round2 is keyed by recipient, then sender.
	Round2    map[party.ID]map[party.ID]*keygen.Round2Package
	CreatedAt time.Time
}

// KeyStorage is the aggregator's registry of finalized public key packages.
type KeyStorage interface {
	GetKey(ctx context.Context, id musig.ID) (*keygen.PublicKeyPackage, error)
	SetKey(ctx context.Context, id musig.ID, public *keygen.PublicKeyPackage) error

	GetPendingDkg(ctx context.Context, id musig.ID) (*PendingDkg, error)
	SetPendingDkg(ctx context.Context, id musig.ID, pending *PendingDkg) error
	// DeletePendingDkg succeeds when nothing is stored.
	DeletePendingDkg(ctx context.Context, id musig.ID) error
}
