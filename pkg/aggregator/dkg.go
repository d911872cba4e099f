package aggregator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/taurusgroup/frost-bridge/pkg/musig"
	"github.com/taurusgroup/frost-bridge/pkg/party"
	"github.com/taurusgroup/frost-bridge/pkg/protocol"
	"github.com/taurusgroup/frost-bridge/pkg/signer"
	"github.com/taurusgroup/frost-bridge/pkg/signerclient"
	"github.com/taurusgroup/frost-bridge/pkg/storage"
	"github.com/taurusgroup/frost-bridge/protocols/frost/keygen"
)

// State is the progress of a key generation ceremony.
type State uint8

const (
	StateIdle State = iota
	StateRound1Collected
	StateRound2Collected
	StateFinalized
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRound1Collected:
		return "round1_collected"
	case StateRound2Collected:
		return "round2_collected"
	case StateFinalized:
		return "finalized"
	case StateAborted:
		return "aborted"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

type dkgCeremony struct {
	a          *Aggregator
	musigID    musig.ID
	dkgShareID string
	params     keygen.Params
	state      State
	log        zerolog.Logger
}

func (c *dkgCeremony) advance(next State) {
	c.log.Debug().Stringer("from", c.state).Stringer("to", next).Msg("dkg state")
	c.state = next
}

func (c *dkgCeremony) abort(failures map[party.ID]error) error {
	err := &CeremonyError{
		MusigID:    c.musigID,
		DkgShareID: c.dkgShareID,
		Stage:      c.state,
		Failures:   failures,
	}
	c.state = StateAborted
	c.log.Error().Err(err).Msg("dkg aborted")
	return err
}

func (a *Aggregator) lockDkg(id musig.ID) func() {
	m, _ := a.dkgLocks.LoadOrStore(id, new(sync.Mutex))
	mtx := m.(*sync.Mutex)
	mtx.Lock()
	return mtx.Unlock
}

// checkParams requires params to describe exactly the configured participants.
func (a *Aggregator) checkParams(op string, params keygen.Params) error {
	if err := params.Validate(); err != nil {
		return protocol.NewError(protocol.KindConfig, op, err)
	}
	if params.N != len(a.ids) || !a.ids.Contains(params.Participants()...) {
		return protocol.NewError(protocol.KindConfig, op,
			fmt.Errorf("%w: %s for participants %s", protocol.ErrParamsMismatch, params, a.ids))
	}
	return nil
}

// RunDKG generates the threshold key of the identity with all participants.
//
// If the identity already has a key, it is returned without a new ceremony.
// Any participant failing after its retries aborts the ceremony with a
// *CeremonyError. A ceremony aborted before finalization is started again
// from round 1 by the next call. Once finalization was requested, some
// participants may hold a key share, so the next call resumes finalization
// of the same ceremony with the same inputs instead.
func (a *Aggregator) RunDKG(ctx context.Context, id musig.ID, params keygen.Params) (public *keygen.PublicKeyPackage, err error) {
	const op = "aggregator.RunDKG"
	if err = id.Validate(); err != nil {
		return nil, protocol.NewError(protocol.KindConfig, op, err)
	}
	if err = a.checkParams(op, params); err != nil {
		return nil, err
	}
	defer a.lockDkg(id)()

	existing, err := a.keys.GetKey(ctx, id)
	switch {
	case err == nil:
		if existing.Params != params {
			return nil, protocol.NewError(protocol.KindConfig, op,
				fmt.Errorf("%w: %s has a %s key", protocol.ErrParamsMismatch, id, existing.Params))
		}
		return existing, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, protocol.NewError(protocol.KindResource, op, err)
	}

	pending, err := a.keys.GetPendingDkg(ctx, id)
	switch {
	case err == nil:
		if pending.Params != params {
			return nil, protocol.NewError(protocol.KindConfig, op,
				fmt.Errorf("%w: %s has a %s ceremony being finalized", protocol.ErrParamsMismatch, id, pending.Params))
		}
	case errors.Is(err, storage.ErrNotFound):
		pending = nil
	default:
		return nil, protocol.NewError(protocol.KindResource, op, err)
	}

	c := &dkgCeremony{
		a:          a,
		musigID:    id,
		dkgShareID: a.newID(),
		params:     params,
	}
	if pending != nil {
		c.dkgShareID = pending.DkgShareID
	}
	c.log = a.log.With().Stringer("musig_id", id).Str("ceremony", c.dkgShareID).Logger()
	defer func() { a.metrics.ceremony("dkg", err) }()

	var (
		round1 map[party.ID]*keygen.Round1Package
		round2 map[party.ID]map[party.ID]*keygen.Round2Package
	)
	if pending != nil {
		c.log.Info().Stringer("params", params).Time("started", pending.CreatedAt).Msg("resuming dkg finalization")
		round1, round2 = pending.Round1, pending.Round2
		c.advance(StateRound2Collected)
	} else {
		c.log.Info().Stringer("params", params).Msg("starting dkg")
		if round1, err = c.round1(ctx); err != nil {
			return nil, err
		}
		if round2, err = c.round2(ctx, round1); err != nil {
			return nil, err
		}
		// participants may hold key shares from here on
		pending = &storage.PendingDkg{
			DkgShareID: c.dkgShareID,
			Params:     params,
			Round1:     round1,
			Round2:     round2,
			CreatedAt:  time.Now(),
		}
		if err = a.keys.SetPendingDkg(ctx, id, pending); err != nil {
			return nil, protocol.NewError(protocol.KindResource, op, err)
		}
	}
	if public, err = c.finalize(ctx, round1, round2); err != nil {
		return nil, err
	}

	if err = a.keys.SetKey(ctx, id, public); err != nil {
		return nil, protocol.NewError(protocol.KindResource, op, err)
	}
	if cleanupErr := a.keys.DeletePendingDkg(ctx, id); cleanupErr != nil {
		c.log.Warn().Err(cleanupErr).Msg("failed to delete finalization inputs")
	}
	c.advance(StateFinalized)
	c.log.Info().Str("public_key", fmt.Sprintf("%x", public.XOnly())).Msg("dkg finalized")
	return public, nil
}

func (c *dkgCeremony) round1(ctx context.Context) (map[party.ID]*keygen.Round1Package, error) {
	start := time.Now()
	log := c.log.With().Str("round", "dkg_round_1").Logger()
	req := &signer.DkgRound1Request{MusigID: c.musigID, DkgShareID: c.dkgShareID, Params: c.params}
	round1, failures := fanOut(ctx, c.a, "dkg_round_1", c.a.ids, func(ctx context.Context, cl signerclient.Client) (*keygen.Round1Package, error) {
		return call(ctx, c.a, log.With().Stringer("participant", cl.ID()).Logger(), func(ctx context.Context) (*keygen.Round1Package, error) {
			return cl.DkgRound1(ctx, req)
		})
	})
	c.a.metrics.observeRound("dkg", "round_1", start)
	if len(failures) > 0 {
		return nil, c.abort(failures)
	}
	c.advance(StateRound1Collected)
	return round1, nil
}

// round2 returns the round 2 packages, keyed by recipient then sender.
func (c *dkgCeremony) round2(ctx context.Context, round1 map[party.ID]*keygen.Round1Package) (map[party.ID]map[party.ID]*keygen.Round2Package, error) {
	start := time.Now()
	log := c.log.With().Str("round", "dkg_round_2").Logger()
	req := &signer.DkgRound2Request{MusigID: c.musigID, DkgShareID: c.dkgShareID, Params: c.params, Round1: round1}
	out, failures := fanOut(ctx, c.a, "dkg_round_2", c.a.ids, func(ctx context.Context, cl signerclient.Client) (map[party.ID]*keygen.Round2Package, error) {
		return call(ctx, c.a, log.With().Stringer("participant", cl.ID()).Logger(), func(ctx context.Context) (map[party.ID]*keygen.Round2Package, error) {
			return cl.DkgRound2(ctx, req)
		})
	})
	c.a.metrics.observeRound("dkg", "round_2", start)
	if len(failures) > 0 {
		return nil, c.abort(failures)
	}

	byRecipient := make(map[party.ID]map[party.ID]*keygen.Round2Package, len(c.a.ids))
	for _, to := range c.a.ids {
		byRecipient[to] = make(map[party.ID]*keygen.Round2Package, len(c.a.ids)-1)
	}
	for _, from := range c.a.ids {
		if len(out[from]) != len(c.a.ids)-1 {
			failures[from] = protocol.NewError(protocol.KindMissingData, "aggregator.RunDKG",
				fmt.Errorf("%w: %d round 2 packages for %d peers", protocol.ErrMissingPackage, len(out[from]), len(c.a.ids)-1), from)
			continue
		}
		for to, pkg := range out[from] {
			if to == from || !c.a.ids.Contains(to) {
				failures[from] = protocol.NewError(protocol.KindCrypto, "aggregator.RunDKG",
					fmt.Errorf("round 2 package addressed to %d", to), from)
				break
			}
			byRecipient[to][from] = pkg
		}
	}
	if len(failures) > 0 {
		return nil, c.abort(failures)
	}
	c.advance(StateRound2Collected)
	return byRecipient, nil
}

// finalize requires every participant to report the same public key package, byte for byte.
func (c *dkgCeremony) finalize(ctx context.Context, round1 map[party.ID]*keygen.Round1Package, round2 map[party.ID]map[party.ID]*keygen.Round2Package) (*keygen.PublicKeyPackage, error) {
	start := time.Now()
	log := c.log.With().Str("round", "finalize_dkg").Logger()
	publics, failures := fanOut(ctx, c.a, "finalize_dkg", c.a.ids, func(ctx context.Context, cl signerclient.Client) (*keygen.PublicKeyPackage, error) {
		req := &signer.FinalizeDkgRequest{
			MusigID:    c.musigID,
			DkgShareID: c.dkgShareID,
			Params:     c.params,
			Round1:     round1,
			Round2:     round2[cl.ID()],
		}
		return call(ctx, c.a, log.With().Stringer("participant", cl.ID()).Logger(), func(ctx context.Context) (*keygen.PublicKeyPackage, error) {
			return cl.FinalizeDkg(ctx, req)
		})
	})
	c.a.metrics.observeRound("dkg", "finalize", start)
	if len(failures) > 0 {
		return nil, c.abort(failures)
	}

	reference := publics[c.a.ids[0]]
	expected, err := reference.Bytes()
	if err != nil {
		failures[c.a.ids[0]] = protocol.NewError(protocol.KindCrypto, "aggregator.RunDKG", err, c.a.ids[0])
		return nil, c.abort(failures)
	}
	for _, id := range c.a.ids[1:] {
		got, err := publics[id].Bytes()
		if err != nil || !bytes.Equal(expected, got) {
			failures[id] = protocol.NewError(protocol.KindCrypto, "aggregator.RunDKG",
				fmt.Errorf("%w: participant %d disagrees with %d", protocol.ErrPublicKeyMismatch, id, c.a.ids[0]), id)
		}
	}
	if len(failures) > 0 {
		return nil, c.abort(failures)
	}
	if err = reference.Validate(); err != nil {
		for _, id := range c.a.ids {
			failures[id] = protocol.NewError(protocol.KindCrypto, "aggregator.RunDKG", err)
		}
		return nil, c.abort(failures)
	}
	return reference, nil
}
