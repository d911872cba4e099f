package signer

import (
	"context"
	"errors"
	"fmt"

	"github.com/taurusgroup/frost-bridge/pkg/protocol"
	"github.com/taurusgroup/frost-bridge/pkg/storage"
	"github.com/taurusgroup/frost-bridge/protocols/frost/sign"
)

// SignRound1 generates the nonces of a signing session and returns their commitment.
//
// The nonces are stored under the session id and never returned. Repeating the
// request before round 2 returns the same commitment.
func (s *Signer) SignRound1(ctx context.Context, req *SignRound1Request) (*sign.SigningCommitment, error) {
	const op = "signer.SignRound1"
	defer s.lock(req.MusigID)()
	log := s.log.With().Stringer("musig_id", req.MusigID).Str("ceremony", req.SessionID).Str("round", "sign_round_1").Logger()

	key, err := s.keyPackage(ctx, op, req.MusigID)
	if err != nil {
		return nil, err
	}

	session, err := s.store.GetSignSession(ctx, req.SessionID)
	switch {
	case err == nil:
		if session.MusigID != req.MusigID {
			return nil, protocol.NewError(protocol.KindConfig, op, fmt.Errorf("session %s belongs to %s", req.SessionID, session.MusigID))
		}
		if session.Consumed {
			return nil, protocol.NewError(protocol.KindProtocol, op, protocol.ErrNonceConsumed, s.id)
		}
		log.Debug().Msg("replaying stored commitment")
		return session.Commitment, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, resourceError(op, err)
	}

	nonces, commitment, err := sign.Commit(s.rand, key)
	if err != nil {
		return nil, protocol.NewError(protocol.KindResource, op, fmt.Errorf("sample nonces: %w", err))
	}
	session = &storage.SignSession{
		MusigID:    req.MusigID,
		Nonces:     nonces,
		Commitment: commitment,
		CreatedAt:  s.now(),
	}
	if err = s.store.SetSignSession(ctx, req.SessionID, session); err != nil {
		nonces.Zeroize()
		return nil, resourceError(op, err)
	}
	log.Debug().Msg("sign round 1 done")
	return commitment, nil
}

// SignRound2 computes this participant's signature share for the signing package.
//
// The nonces of the session are marked consumed and erased in storage before
// the share is computed, so a second request for the session fails even if
// this one does.
func (s *Signer) SignRound2(ctx context.Context, req *SignRound2Request) (*sign.SignatureShare, error) {
	const op = "signer.SignRound2"
	defer s.lock(req.MusigID)()
	log := s.log.With().Stringer("musig_id", req.MusigID).Str("ceremony", req.SessionID).Str("round", "sign_round_2").Logger()

	if req.Package == nil {
		return nil, protocol.NewError(protocol.KindMissingData, op, fmt.Errorf("%w: signing package", protocol.ErrMissingPackage))
	}
	key, err := s.keyPackage(ctx, op, req.MusigID)
	if err != nil {
		return nil, err
	}

	session, err := s.store.GetSignSession(ctx, req.SessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, protocol.NewError(protocol.KindProtocol, op, fmt.Errorf("%w: session %s", protocol.ErrUnknownCeremony, req.SessionID))
	}
	if err != nil {
		return nil, resourceError(op, err)
	}
	if session.MusigID != req.MusigID {
		return nil, protocol.NewError(protocol.KindConfig, op, fmt.Errorf("session %s belongs to %s", req.SessionID, session.MusigID))
	}
	if session.Consumed || session.Nonces == nil {
		return nil, protocol.NewError(protocol.KindProtocol, op, protocol.ErrNonceConsumed, s.id)
	}
	own, ok := req.Package.Commitments[s.id]
	if !ok || own == nil || own.D == nil || own.E == nil ||
		!own.D.Equal(session.Commitment.D) || !own.E.Equal(session.Commitment.E) {
		return nil, protocol.NewError(protocol.KindCrypto, op, fmt.Errorf("signing package does not carry this session's commitment"), s.id)
	}

	nonces := session.Nonces
	session.Nonces = nil
	session.Consumed = true
	if err = s.store.SetSignSession(ctx, req.SessionID, session); err != nil {
		return nil, resourceError(op, err)
	}

	if req.Tweak != nil {
		if key, err = key.Derive(req.Tweak); err != nil {
			nonces.Zeroize()
			return nil, protocol.NewError(protocol.KindCrypto, op, err)
		}
	}
	share, err := sign.Sign(key, nonces, req.Package)
	if err != nil {
		log.Warn().Err(err).Msg("failed to sign")
		return nil, err
	}
	log.Debug().Int("signers", len(req.Package.Commitments)).Msg("sign round 2 done")
	return share, nil
}
