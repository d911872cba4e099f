package signer

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/taurusgroup/frost-bridge/pkg/musig"
	"github.com/taurusgroup/frost-bridge/pkg/party"
	"github.com/taurusgroup/frost-bridge/pkg/protocol"
	"github.com/taurusgroup/frost-bridge/pkg/storage"
	"github.com/taurusgroup/frost-bridge/protocols/frost/keygen"
)

func (s *Signer) dkgLogger(round string, id musig.ID, dkgShareID string) zerolog.Logger {
	return s.log.With().
		Stringer("musig_id", id).
		Str("ceremony", dkgShareID).
		Str("round", round).
		Logger()
}

// dkgContext binds the proofs of a ceremony to its identity and id.
func dkgContext(id musig.ID, dkgShareID string) []byte {
	return []byte(id.String() + "|" + dkgShareID)
}

// DkgRound1 starts a key generation ceremony and returns this participant's commitment.
//
// Repeating the request for the same ceremony returns the stored package.
// An identity with a finalized key cannot run a new ceremony.
func (s *Signer) DkgRound1(ctx context.Context, req *DkgRound1Request) (*keygen.Round1Package, error) {
	const op = "signer.DkgRound1"
	if err := s.checkParams(op, req.Params); err != nil {
		return nil, err
	}
	defer s.lock(req.MusigID)()
	log := s.dkgLogger("dkg_round_1", req.MusigID, req.DkgShareID)

	user, err := s.finalizedKey(ctx, op, req.MusigID)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return nil, protocol.NewError(protocol.KindProtocol, op, fmt.Errorf("%w: %s", protocol.ErrAlreadyFinalized, req.MusigID))
	}

	state, err := s.loadDkg(ctx, op, req.MusigID, req.DkgShareID, req.Params)
	if err == nil {
		if state.Phase != storage.DkgRound1 {
			return nil, protocol.NewError(protocol.KindProtocol, op,
				fmt.Errorf("%w: dkg %s is at %s", protocol.ErrRoundOrder, req.DkgShareID, state.Phase))
		}
		log.Debug().Msg("replaying stored output")
		return state.Secret.Package, nil
	}
	if !errors.Is(err, protocol.ErrUnknownCeremony) {
		return nil, err
	}

	secret, pkg, err := keygen.Round1(s.rand, s.id, req.Params, dkgContext(req.MusigID, req.DkgShareID))
	if err != nil {
		return nil, err
	}
	state = &storage.DkgState{
		MusigID:   req.MusigID,
		Phase:     storage.DkgRound1,
		Params:    req.Params,
		Secret:    secret,
		UpdatedAt: s.now(),
	}
	if err = s.store.SetDkgState(ctx, req.DkgShareID, state); err != nil {
		return nil, resourceError(op, err)
	}
	log.Info().Stringer("params", req.Params).Msg("dkg round 1 done")
	return pkg, nil
}

// DkgRound2 verifies the round 1 packages of all participants, and returns the
// shares for every other participant, keyed by recipient.
func (s *Signer) DkgRound2(ctx context.Context, req *DkgRound2Request) (map[party.ID]*keygen.Round2Package, error) {
	const op = "signer.DkgRound2"
	if err := s.checkParams(op, req.Params); err != nil {
		return nil, err
	}
	defer s.lock(req.MusigID)()
	log := s.dkgLogger("dkg_round_2", req.MusigID, req.DkgShareID)

	state, err := s.loadDkg(ctx, op, req.MusigID, req.DkgShareID, req.Params)
	if err != nil {
		return nil, err
	}
	switch state.Phase {
	case storage.DkgRound1:
	case storage.DkgRound2:
		if err = sameRound1(op, state.Round1, req.Round1); err != nil {
			return nil, err
		}
		log.Debug().Msg("replaying stored output")
		return state.Round2, nil
	default:
		return nil, protocol.NewError(protocol.KindProtocol, op,
			fmt.Errorf("%w: dkg %s is at %s", protocol.ErrRoundOrder, req.DkgShareID, state.Phase))
	}

	out, err := keygen.Round2(state.Secret, req.Round1)
	if err != nil {
		log.Warn().Err(err).Msg("rejected round 1 packages")
		return nil, err
	}
	state.Phase = storage.DkgRound2
	state.Round1 = req.Round1
	state.Round2 = out
	state.UpdatedAt = s.now()
	if err = s.store.SetDkgState(ctx, req.DkgShareID, state); err != nil {
		return nil, resourceError(op, err)
	}
	log.Info().Msg("dkg round 2 done")
	return out, nil
}

// FinalizeDkg derives and stores this participant's key share and returns the
// group's public key package.
//
// Repeating the request returns the stored package; a key share is never regenerated.
func (s *Signer) FinalizeDkg(ctx context.Context, req *FinalizeDkgRequest) (*keygen.PublicKeyPackage, error) {
	const op = "signer.FinalizeDkg"
	if err := s.checkParams(op, req.Params); err != nil {
		return nil, err
	}
	defer s.lock(req.MusigID)()
	log := s.dkgLogger("finalize_dkg", req.MusigID, req.DkgShareID)

	state, err := s.loadDkg(ctx, op, req.MusigID, req.DkgShareID, req.Params)
	if err != nil {
		return nil, err
	}
	switch state.Phase {
	case storage.DkgRound2:
	case storage.DkgFinalized:
		log.Debug().Msg("replaying stored output")
		if err = s.storeUserState(ctx, op, req, state); err != nil {
			return nil, err
		}
		return state.Public, nil
	default:
		return nil, protocol.NewError(protocol.KindProtocol, op,
			fmt.Errorf("%w: dkg %s is at %s", protocol.ErrRoundOrder, req.DkgShareID, state.Phase))
	}
	if err = sameRound1(op, state.Round1, req.Round1); err != nil {
		return nil, err
	}

	user, err := s.finalizedKey(ctx, op, req.MusigID)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return nil, protocol.NewError(protocol.KindProtocol, op, fmt.Errorf("%w: %s", protocol.ErrAlreadyFinalized, req.MusigID))
	}

	key, public, err := keygen.Finalize(state.Secret, state.Round1, req.Round2)
	if err != nil {
		log.Warn().Err(err).Msg("rejected round 2 packages")
		return nil, err
	}

	state.Phase = storage.DkgFinalized
	state.Key = key
	state.Public = public
	state.Secret.Polynomial.Zeroize()
	state.Secret.Polynomial = nil
	// The outgoing shares are evaluations of the erased polynomial.
	for _, pkg := range state.Round2 {
		pkg.Share.Zeroize()
	}
	state.Round2 = nil
	state.Round1 = nil
	state.UpdatedAt = s.now()
	if err = s.store.SetDkgState(ctx, req.DkgShareID, state); err != nil {
		return nil, resourceError(op, err)
	}
	if err = s.storeUserState(ctx, op, req, state); err != nil {
		return nil, err
	}
	log.Info().Str("public_key", fmt.Sprintf("%x", public.XOnly())).Msg("dkg finalized")
	return public, nil
}

func (s *Signer) storeUserState(ctx context.Context, op string, req *FinalizeDkgRequest, state *storage.DkgState) error {
	user := &storage.UserState{
		MusigID:    req.MusigID,
		DkgShareID: req.DkgShareID,
		Params:     state.Params,
		Public:     state.Public,
	}
	if err := s.store.SetUserState(ctx, req.MusigID, user); err != nil {
		return resourceError(op, err)
	}
	return nil
}

// sameRound1 checks that a repeated request carries the round 1 packages stored earlier.
func sameRound1(op string, stored, got map[party.ID]*keygen.Round1Package) error {
	a, errA := protocol.Marshal(stored)
	b, errB := protocol.Marshal(got)
	if errA != nil || errB != nil || !bytes.Equal(a, b) {
		return protocol.NewError(protocol.KindCrypto, op, fmt.Errorf("round 1 packages differ from the ones used in round 2"))
	}
	return nil
}
