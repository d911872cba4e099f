package signerclient

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/rpc/json"
	"github.com/taurusgroup/frost-bridge/pkg/party"
	"github.com/taurusgroup/frost-bridge/pkg/protocol"
	"github.com/taurusgroup/frost-bridge/pkg/signer"
	"github.com/taurusgroup/frost-bridge/protocols/frost/keygen"
	"github.com/taurusgroup/frost-bridge/protocols/frost/sign"
)

// RPC is a Client calling a Service over HTTP.
//
// Failures to reach the service are KindTransport errors naming the participant.
// Errors returned by the remote signer keep their kind and culprits.
type RPC struct {
	id     party.ID
	url    string
	client *http.Client
}

var _ Client = (*RPC)(nil)

type RPCOption func(*RPC)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(c *http.Client) RPCOption {
	return func(r *RPC) { r.client = c }
}

func NewRPC(id party.ID, url string, opts ...RPCOption) *RPC {
	r := &RPC{id: id, url: url, client: http.DefaultClient}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RPC) ID() party.ID {
	return r.id
}

func (r *RPC) transportError(op string, err error) error {
	return protocol.NewError(protocol.KindTransport, op, err, r.id)
}

func (r *RPC) call(ctx context.Context, method string, args interface{}, out interface{}) error {
	op := "signerclient." + method
	body, err := json.EncodeClientRequest(ServiceName+"."+method, args)
	if err != nil {
		return protocol.NewError(protocol.KindConfig, op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return protocol.NewError(protocol.KindConfig, op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := r.client.Do(req)
	if err != nil {
		return r.transportError(op, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return r.transportError(op, fmt.Errorf("unexpected status %s", res.Status))
	}

	var reply Reply
	if err = json.DecodeClientResponse(res.Body, &reply); err != nil {
		return r.transportError(op, err)
	}
	if reply.Error != nil {
		return reply.Error.Err()
	}
	if err = protocol.Unmarshal(reply.Payload, out); err != nil {
		return protocol.NewError(protocol.KindCrypto, op, fmt.Errorf("decode response: %w", err), r.id)
	}
	return nil
}

func (r *RPC) payload(method string, req interface{}) (*Args, error) {
	data, err := protocol.Marshal(req)
	if err != nil {
		return nil, protocol.NewError(protocol.KindConfig, "signerclient."+method, fmt.Errorf("encode request: %w", err))
	}
	return &Args{Payload: data}, nil
}

func (r *RPC) Health(ctx context.Context) (party.ID, error) {
	var id party.ID
	if err := r.call(ctx, "Health", &HealthArgs{}, &id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *RPC) DkgRound1(ctx context.Context, req *signer.DkgRound1Request) (*keygen.Round1Package, error) {
	args, err := r.payload("DkgRound1", req)
	if err != nil {
		return nil, err
	}
	out := new(keygen.Round1Package)
	if err = r.call(ctx, "DkgRound1", args, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RPC) DkgRound2(ctx context.Context, req *signer.DkgRound2Request) (map[party.ID]*keygen.Round2Package, error) {
	args, err := r.payload("DkgRound2", req)
	if err != nil {
		return nil, err
	}
	var out map[party.ID]*keygen.Round2Package
	if err = r.call(ctx, "DkgRound2", args, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RPC) FinalizeDkg(ctx context.Context, req *signer.FinalizeDkgRequest) (*keygen.PublicKeyPackage, error) {
	args, err := r.payload("FinalizeDkg", req)
	if err != nil {
		return nil, err
	}
	out := new(keygen.PublicKeyPackage)
	if err = r.call(ctx, "FinalizeDkg", args, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RPC) SignRound1(ctx context.Context, req *signer.SignRound1Request) (*sign.SigningCommitment, error) {
	args, err := r.payload("SignRound1", req)
	if err != nil {
		return nil, err
	}
	out := new(sign.SigningCommitment)
	if err = r.call(ctx, "SignRound1", args, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RPC) SignRound2(ctx context.Context, req *signer.SignRound2Request) (*sign.SignatureShare, error) {
	args, err := r.payload("SignRound2", req)
	if err != nil {
		return nil, err
	}
	out := new(sign.SignatureShare)
	if err = r.call(ctx, "SignRound2", args, out); err != nil {
		return nil, err
	}
	return out, nil
}
