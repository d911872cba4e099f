// Package signer implements one participant of the threshold group.
//
// A Signer executes exactly one step of key generation or signing per call,
// reading and writing its state through storage. It never talks to other
// participants; all cross-participant data is supplied by the caller.
package signer

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/taurusgroup/frost-bridge/pkg/math/curve"
	"github.com/taurusgroup/frost-bridge/pkg/musig"
	"github.com/taurusgroup/frost-bridge/pkg/party"
	"github.com/taurusgroup/frost-bridge/pkg/protocol"
	"github.com/taurusgroup/frost-bridge/pkg/storage"
	"github.com/taurusgroup/frost-bridge/protocols/frost/keygen"
)

type Signer struct {
	id    party.ID
	store storage.SignerStorage
	log   zerolog.Logger
	rand  io.Reader
	now   func() time.Time

	// locks serializes the steps for one identity.
	locks sync.Map
}

type Option func(*Signer)

func WithLogger(log zerolog.Logger) Option {
	return func(s *Signer) { s.log = log }
}

// WithRandom sets the randomness used for nonces.
func WithRandom(r io.Reader) Option {
	return func(s *Signer) { s.rand = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *Signer) { s.now = now }
}

func New(id party.ID, store storage.SignerStorage, opts ...Option) (*Signer, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	s := &Signer{
		id:    id,
		store: store,
		log:   zerolog.Nop(),
		rand:  rand.Reader,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.rand = &lockedReader{r: s.rand}
	s.log = s.log.With().Stringer("participant", id).Logger()
	return s, nil
}

// lockedReader allows steps for different identities to share one randomness source.
type lockedReader struct {
	mtx sync.Mutex
	r   io.Reader
}

func (l *lockedReader) Read(p []byte) (int, error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.r.Read(p)
}

// ID returns the participant identifier of the signer.
func (s *Signer) ID() party.ID {
	return s.id
}

// Health reports liveness, independently of any ceremony.
func (s *Signer) Health(ctx context.Context) (party.ID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.id, nil
}

func (s *Signer) lock(id musig.ID) func() {
	m, _ := s.locks.LoadOrStore(id, new(sync.Mutex))
	mtx := m.(*sync.Mutex)
	mtx.Lock()
	return mtx.Unlock
}

func (s *Signer) checkParams(op string, params keygen.Params) error {
	if err := params.Validate(); err != nil {
		return protocol.NewError(protocol.KindConfig, op, err)
	}
	if !params.Participants().Contains(s.id) {
		return protocol.NewError(protocol.KindConfig, op,
			fmt.Errorf("%w: participant %d is not in 1..%d", protocol.ErrParamsMismatch, s.id, params.N), s.id)
	}
	return nil
}

func resourceError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return protocol.NewError(protocol.KindResource, op, err)
}

// loadDkg returns the state of the ceremony, checked against the identity and parameters of the request.
func (s *Signer) loadDkg(ctx context.Context, op string, id musig.ID, dkgShareID string, params keygen.Params) (*storage.DkgState, error) {
	state, err := s.store.GetDkgState(ctx, dkgShareID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, protocol.NewError(protocol.KindProtocol, op, fmt.Errorf("%w: dkg %s", protocol.ErrUnknownCeremony, dkgShareID))
	}
	if err != nil {
		return nil, resourceError(op, err)
	}
	if state.MusigID != id {
		return nil, protocol.NewError(protocol.KindConfig, op, fmt.Errorf("dkg %s belongs to %s", dkgShareID, state.MusigID))
	}
	if state.Params != params {
		return nil, protocol.NewError(protocol.KindConfig, op,
			fmt.Errorf("%w: ceremony uses %s, request has %s", protocol.ErrParamsMismatch, state.Params, params))
	}
	return state, nil
}

// finalizedKey returns the identity's user state, or nil if no key was finalized yet.
func (s *Signer) finalizedKey(ctx context.Context, op string, id musig.ID) (*storage.UserState, error) {
	user, err := s.store.GetUserState(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, resourceError(op, err)
	}
	return user, nil
}

// keyPackage loads the finalized key of the identity.
func (s *Signer) keyPackage(ctx context.Context, op string, id musig.ID) (*keygen.KeyPackage, error) {
	user, err := s.finalizedKey(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, protocol.NewError(protocol.KindConfig, op, fmt.Errorf("no key for %s", id))
	}
	state, err := s.store.GetDkgState(ctx, user.DkgShareID)
	if err != nil {
		return nil, resourceError(op, fmt.Errorf("load key %s: %w", user.DkgShareID, err))
	}
	if state.Phase != storage.DkgFinalized || state.Key == nil {
		return nil, protocol.NewError(protocol.KindResource, op, fmt.Errorf("dkg %s is not finalized", user.DkgShareID))
	}
	return state.Key, nil
}

// PublicKeyShare returns the verification share Yᵢ of the signer for the identity.
func (s *Signer) PublicKeyShare(ctx context.Context, id musig.ID) (*curve.Point, error) {
	key, err := s.keyPackage(ctx, "signer.PublicKeyShare", id)
	if err != nil {
		return nil, err
	}
	return key.VerificationShare, nil
}

// PublicKeyPackage returns the finalized public key package of the identity.
func (s *Signer) PublicKeyPackage(ctx context.Context, id musig.ID) (*keygen.PublicKeyPackage, error) {
	const op = "signer.PublicKeyPackage"
	user, err := s.finalizedKey(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, protocol.NewError(protocol.KindConfig, op, fmt.Errorf("no key for %s", id))
	}
	return user.Public, nil
}

// CollectGarbage deletes signing sessions older than maxAge, and key
// generation ceremonies that did not finalize and were last updated before then.
//
// It returns the number of records removed.
func (s *Signer) CollectGarbage(ctx context.Context, maxAge time.Duration) (int, error) {
	const op = "signer.CollectGarbage"
	before := s.now().Add(-maxAge)
	sessions, err := s.store.DeleteSignSessionsBefore(ctx, before)
	if err != nil {
		return 0, resourceError(op, err)
	}
	ceremonies, err := s.store.DeleteDkgStatesBefore(ctx, before)
	if err != nil {
		return sessions, resourceError(op, err)
	}
	if sessions > 0 || ceremonies > 0 {
		s.log.Info().Int("sessions", sessions).Int("ceremonies", ceremonies).Msg("deleted expired state")
	}
	return sessions + ceremonies, nil
}
