// Package signerclient exposes a Signer to the aggregator.
//
// Local calls a Signer in the same process, RPC calls one behind an HTTP
// endpoint served by Service. Both implement Client.
package signerclient

import (
	"context"

	"github.com/taurusgroup/frost-bridge/pkg/party"
	"github.com/taurusgroup/frost-bridge/pkg/signer"
	"github.com/taurusgroup/frost-bridge/protocols/frost/keygen"
	"github.com/taurusgroup/frost-bridge/protocols/frost/sign"
)

// Client performs one round of a ceremony on one participant.
type Client interface {
	// ID returns the identifier the client is configured for.
	ID() party.ID
	// Health returns the identifier reported by the participant.
	Health(ctx context.Context) (party.ID, error)
	DkgRound1(ctx context.Context, req *signer.DkgRound1Request) (*keygen.Round1Package, error)
	DkgRound2(ctx context.Context, req *signer.DkgRound2Request) (map[party.ID]*keygen.Round2Package, error)
	FinalizeDkg(ctx context.Context, req *signer.FinalizeDkgRequest) (*keygen.PublicKeyPackage, error)
	SignRound1(ctx context.Context, req *signer.SignRound1Request) (*sign.SigningCommitment, error)
	SignRound2(ctx context.Context, req *signer.SignRound2Request) (*sign.SignatureShare, error)
}

// Local is a Client calling a Signer directly.
type Local struct {
	s *signer.Signer
}

var _ Client = (*Local)(nil)

func NewLocal(s *signer.Signer) *Local {
	return &Local{s: s}
}

func (l *Local) ID() party.ID {
	return l.s.ID()
}

func (l *Local) Health(ctx context.Context) (party.ID, error) {
	return l.s.Health(ctx)
}

func (l *Local) DkgRound1(ctx context.Context, req *signer.DkgRound1Request) (*keygen.Round1Package, error) {
	return l.s.DkgRound1(ctx, req)
}

func (l *Local) DkgRound2(ctx context.Context, req *signer.DkgRound2Request) (map[party.ID]*keygen.Round2Package, error) {
	return l.s.DkgRound2(ctx, req)
}

func (l *Local) FinalizeDkg(ctx context.Context, req *signer.FinalizeDkgRequest) (*keygen.PublicKeyPackage, error) {
	return l.s.FinalizeDkg(ctx, req)
}

func (l *Local) SignRound1(ctx context.Context, req *signer.SignRound1Request) (*sign.SigningCommitment, error) {
	return l.s.SignRound1(ctx, req)
}

func (l *Local) SignRound2(ctx context.Context, req *signer.SignRound2Request) (*sign.SignatureShare, error) {
	return l.s.SignRound2(ctx, req)
}
