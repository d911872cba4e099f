package aggregator

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/taurusgroup/frost-bridge/pkg/math/curve"
	"github.com/taurusgroup/frost-bridge/pkg/musig"
	"github.com/taurusgroup/frost-bridge/pkg/party"
	"github.com/taurusgroup/frost-bridge/pkg/protocol"
	"github.com/taurusgroup/frost-bridge/pkg/signer"
	"github.com/taurusgroup/frost-bridge/pkg/signerclient"
	"github.com/taurusgroup/frost-bridge/pkg/taproot"
	"github.com/taurusgroup/frost-bridge/protocols/frost/sign"
)

type signOptions struct {
	quorum party.IDSlice
	tweak  *curve.Scalar
}

type SignOption func(*signOptions)

// WithQuorum signs with exactly the given participants. Failures are not
// replaced by other participants.
func WithQuorum(ids ...party.ID) SignOption {
	return func(o *signOptions) { o.quorum = party.NewIDSlice(ids) }
}

// WithTweak signs for the key Y + tweak•G instead of Y.
func WithTweak(tweak *curve.Scalar) SignOption {
	return func(o *signOptions) { o.tweak = tweak }
}

// RunSigning produces a BIP-340 signature of message under the identity's key.
//
// By default the quorum is made of the T participants with the lowest
// identifiers; a participant failing round 1 is replaced by the next lowest
// identifier not yet tried. The signature is verified before it is returned.
func (a *Aggregator) RunSigning(ctx context.Context, id musig.ID, message []byte, opts ...SignOption) (sig taproot.Signature, err error) {
	const op = "aggregator.RunSigning"
	var o signOptions
	for _, opt := range opts {
		opt(&o)
	}

	public, err := a.GetPublicKey(ctx, id)
	if err != nil {
		return nil, err
	}
	if public == nil {
		return nil, protocol.NewError(protocol.KindConfig, op, fmt.Errorf("no key for %s", id))
	}
	threshold := public.Params.T

	candidates, target := a.ids, threshold
	if o.quorum != nil {
		for _, pid := range o.quorum {
			if !a.ids.Contains(pid) {
				return nil, protocol.NewError(protocol.KindConfig, op, fmt.Errorf("unknown participant %d", pid), pid)
			}
		}
		if len(o.quorum) < threshold {
			return nil, &InsufficientParticipantsError{Required: threshold, Got: len(o.quorum), Failures: map[party.ID]error{}}
		}
		candidates, target = o.quorum, len(o.quorum)
	}

	verifier := public
	if o.tweak != nil {
		if verifier, err = public.Derive(o.tweak); err != nil {
			return nil, protocol.NewError(protocol.KindConfig, op, err)
		}
	}

	sessionID := a.newID()
	log := a.log.With().Stringer("musig_id", id).Str("ceremony", sessionID).Logger()
	log.Info().Int("threshold", threshold).Msg("starting signing")
	defer func() { a.metrics.ceremony("sign", err) }()

	// round 1
	start := time.Now()
	round1Log := log.With().Str("round", "sign_round_1").Logger()
	req1 := &signer.SignRound1Request{MusigID: id, SessionID: sessionID}
	commitments := make(map[party.ID]*sign.SigningCommitment, target)
	failures := make(map[party.ID]error)
	for next := 0; len(commitments) < target && next < len(candidates); {
		n := target - len(commitments)
		if n > len(candidates)-next {
			n = len(candidates) - next
		}
		batch := candidates[next : next+n]
		next += n
		out, failed := fanOut(ctx, a, "sign_round_1", batch, func(ctx context.Context, c signerclient.Client) (*sign.SigningCommitment, error) {
			return call(ctx, a, round1Log.With().Stringer("participant", c.ID()).Logger(), func(ctx context.Context) (*sign.SigningCommitment, error) {
				return c.SignRound1(ctx, req1)
			})
		})
		for pid, c := range out {
			commitments[pid] = c
		}
		for pid, e := range failed {
			round1Log.Warn().Err(e).Stringer("participant", pid).Msg("excluded from quorum")
			failures[pid] = e
		}
	}
	a.metrics.observeRound("sign", "round_1", start)
	if len(commitments) < threshold {
		return nil, &InsufficientParticipantsError{Required: threshold, Got: len(commitments), Failures: failures}
	}

	pkg := &sign.SigningPackage{Message: message, Commitments: commitments}
	if err = pkg.Validate(public.Params); err != nil {
		return nil, err
	}
	quorum := pkg.Signers()
	log.Debug().Stringer("quorum", quorum).Msg("quorum selected")

	// round 2
	start = time.Now()
	round2Log := log.With().Str("round", "sign_round_2").Logger()
	req2 := &signer.SignRound2Request{MusigID: id, SessionID: sessionID, Package: pkg, Tweak: o.tweak}
	shares, failed := fanOut(ctx, a, "sign_round_2", quorum, func(ctx context.Context, c signerclient.Client) (*sign.SignatureShare, error) {
		return call(ctx, a, round2Log.With().Stringer("participant", c.ID()).Logger(), func(ctx context.Context) (*sign.SignatureShare, error) {
			return c.SignRound2(ctx, req2)
		})
	})
	a.metrics.observeRound("sign", "round_2", start)
	if len(failed) > 0 {
		// the package commits to the quorum, so every share is needed
		for pid, e := range failed {
			failures[pid] = e
		}
		return nil, &InsufficientParticipantsError{Required: len(quorum), Got: len(shares), Failures: failures}
	}
	for _, pid := range quorum {
		if err = sign.VerifyShare(verifier, pkg, pid, shares[pid]); err != nil {
			log.Error().Err(err).Stringer("participant", pid).Msg("invalid signature share")
			return nil, err
		}
	}

	if sig, err = sign.Aggregate(verifier, pkg, shares); err != nil {
		return nil, err
	}
	if err = crossVerify(verifier.XOnly(), sig, message); err != nil {
		return nil, protocol.NewError(protocol.KindCrypto, op, err)
	}
	log.Info().Stringer("quorum", quorum).Msg("signature aggregated")
	return sig, nil
}

// crossVerify checks sig with btcec, which only accepts 32 byte messages.
func crossVerify(pk taproot.PublicKey, sig taproot.Signature, message []byte) error {
	if !pk.Verify(sig, message) {
		return fmt.Errorf("aggregate signature does not verify")
	}
	if len(message) != 32 {
		return nil
	}
	key, err := schnorr.ParsePubKey(pk)
	if err != nil {
		return err
	}
	s, err := schnorr.ParseSignature(sig)
	if err != nil {
		return err
	}
	if !s.Verify(message, key) {
		return fmt.Errorf("aggregate signature rejected by btcec")
	}
	return nil
}
