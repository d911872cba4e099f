package signerclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/rpc"
	"github.com/gorilla/rpc/json"
	"github.com/rs/zerolog"
	"github.com/taurusgroup/frost-bridge/pkg/protocol"
	"github.com/taurusgroup/frost-bridge/pkg/signer"
)

// Service exposes a Signer over JSON-RPC.
//
// Signer errors are returned in Reply.Error rather than as RPC errors, so that
// their kind and culprits reach the caller.
type Service struct {
	s   *signer.Signer
	log zerolog.Logger
}

func NewService(s *signer.Signer, log zerolog.Logger) *Service {
	return &Service{s: s, log: log}
}

// NewHandler returns an http.Handler serving s under ServiceName.
func NewHandler(s *signer.Signer, log zerolog.Logger) (http.Handler, error) {
	server := rpc.NewServer()
	server.RegisterCodec(json.NewCodec(), "application/json")
	if err := server.RegisterService(NewService(s, log), ServiceName); err != nil {
		return nil, fmt.Errorf("signerclient: register service: %w", err)
	}
	return server, nil
}

func serve[Req, Resp any](s *Service, r *http.Request, method string, args *Args, reply *Reply, call func(context.Context, *Req) (Resp, error)) error {
	log := s.log.With().Str("method", method).Logger()

	req := new(Req)
	if err := protocol.Unmarshal(args.Payload, req); err != nil {
		reply.Error = toWire(protocol.NewError(protocol.KindCrypto, "signerclient."+method, fmt.Errorf("decode request: %w", err)))
		log.Warn().Err(err).Msg("malformed request")
		return nil
	}
	resp, err := call(r.Context(), req)
	if err != nil {
		reply.Error = toWire(err)
		log.Debug().Err(err).Msg("request failed")
		return nil
	}
	if reply.Payload, err = protocol.Marshal(resp); err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	return nil
}

// HealthArgs is empty; it exists because every RPC method takes arguments.
type HealthArgs struct{}

func (s *Service) Health(r *http.Request, _ *HealthArgs, reply *Reply) error {
	id, err := s.s.Health(r.Context())
	if err != nil {
		reply.Error = toWire(err)
		return nil
	}
	reply.Payload, err = protocol.Marshal(id)
	return err
}

func (s *Service) DkgRound1(r *http.Request, args *Args, reply *Reply) error {
	return serve(s, r, "DkgRound1", args, reply, s.s.DkgRound1)
}

func (s *Service) DkgRound2(r *http.Request, args *Args, reply *Reply) error {
	return serve(s, r, "DkgRound2", args, reply, s.s.DkgRound2)
}

func (s *Service) FinalizeDkg(r *http.Request, args *Args, reply *Reply) error {
	return serve(s, r, "FinalizeDkg", args, reply, s.s.FinalizeDkg)
}

func (s *Service) SignRound1(r *http.Request, args *Args, reply *Reply) error {
	return serve(s, r, "SignRound1", args, reply, s.s.SignRound1)
}

func (s *Service) SignRound2(r *http.Request, args *Args, reply *Reply) error {
	return serve(s, r, "SignRound2", args, reply, s.s.SignRound2)
}
