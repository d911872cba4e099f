// Package testnet runs a group of signers in process, behind clients that
// tests can make unreachable or dishonest.
package testnet

import (
	"context"
	"errors"
	"sync"

	"github.com/taurusgroup/frost-bridge/pkg/party"
	"github.com/taurusgroup/frost-bridge/pkg/protocol"
	"github.com/taurusgroup/frost-bridge/pkg/signer"
	"github.com/taurusgroup/frost-bridge/pkg/signerclient"
	"github.com/taurusgroup/frost-bridge/pkg/storage/leveldb"
	"github.com/taurusgroup/frost-bridge/protocols/frost/keygen"
	"github.com/taurusgroup/frost-bridge/protocols/frost/sign"
)

// ErrUnreachable is returned by a client whose participant has been cut off.
var ErrUnreachable = errors.New("testnet: participant unreachable")

// Methods of signerclient.Client, as used by Fail.
const (
	Health      = "Health"
	DkgRound1   = "DkgRound1"
	DkgRound2   = "DkgRound2"
	FinalizeDkg = "FinalizeDkg"
	SignRound1  = "SignRound1"
	SignRound2  = "SignRound2"
)

type Network struct {
	parties party.IDSlice
	signers map[party.ID]*signer.Signer
	stores  map[party.ID]*leveldb.Store
	// failures[id][method] is the number of calls left to fail, or -1 for all.
	failures map[party.ID]map[string]int
	calls    map[party.ID]map[string]int
	// tampers[id][method] rewrites the successful responses of id.
	tampers map[party.ID]map[string]func(any) any
	mtx     sync.Mutex
}

// NewNetwork starts a signer for every party, each with its own in-memory storage.
func NewNetwork(parties party.IDSlice, opts ...signer.Option) (*Network, error) {
	n := &Network{
		parties:  parties,
		signers:  make(map[party.ID]*signer.Signer, len(parties)),
		stores:   make(map[party.ID]*leveldb.Store, len(parties)),
		failures: make(map[party.ID]map[string]int, len(parties)),
		calls:    make(map[party.ID]map[string]int, len(parties)),
		tampers:  make(map[party.ID]map[string]func(any) any, len(parties)),
	}
	for _, id := range parties {
		store := leveldb.NewMemory()
		s, err := signer.New(id, store, opts...)
		if err != nil {
			return nil, err
		}
		n.signers[id] = s
		n.stores[id] = store
		n.failures[id] = make(map[string]int)
		n.calls[id] = make(map[string]int)
		n.tampers[id] = make(map[string]func(any) any)
	}
	return n, nil
}

// Clients returns a client for every party.
func (n *Network) Clients() map[party.ID]signerclient.Client {
	clients := make(map[party.ID]signerclient.Client, len(n.parties))
	for _, id := range n.parties {
		clients[id] = &client{id: id, n: n}
	}
	return clients
}

// Signer returns the signer of id.
func (n *Network) Signer(id party.ID) *signer.Signer {
	return n.signers[id]
}

// Restart replaces the signer of id with a new one on the same storage.
func (n *Network) Restart(id party.ID, opts ...signer.Option) error {
	s, err := signer.New(id, n.stores[id], opts...)
	if err != nil {
		return err
	}
	n.mtx.Lock()
	defer n.mtx.Unlock()
	n.signers[id] = s
	return nil
}

// Fail makes the next times calls of method to id fail with a transport error.
// A negative times fails all calls until Heal.
func (n *Network) Fail(id party.ID, method string, times int) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	if times < 0 {
		times = -1
	}
	n.failures[id][method] = times
}

// Quit cuts id off for every method.
func (n *Network) Quit(id party.ID) {
	for _, m := range []string{Health, DkgRound1, DkgRound2, FinalizeDkg, SignRound1, SignRound2} {
		n.Fail(id, m, -1)
	}
}

// Tamper passes every successful response of method from id through fn,
// which must return a value of the same type, until Heal.
func (n *Network) Tamper(id party.ID, method string, fn func(any) any) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	n.tampers[id][method] = fn
}

// Heal removes all failures and tampering of id.
func (n *Network) Heal(id party.ID) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	n.failures[id] = make(map[string]int)
	n.tampers[id] = make(map[string]func(any) any)
}

// Calls returns the number of calls of method received for id, including failed ones.
func (n *Network) Calls(id party.ID, method string) int {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	return n.calls[id][method]
}

func (n *Network) intercept(id party.ID, method string) (*signer.Signer, error) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	n.calls[id][method]++
	left := n.failures[id][method]
	if left == 0 {
		return n.signers[id], nil
	}
	if left > 0 {
		n.failures[id][method] = left - 1
	}
	return nil, protocol.NewError(protocol.KindTransport, "testnet."+method, ErrUnreachable, id)
}

func tamper[T any](n *Network, id party.ID, method string, out T, err error) (T, error) {
	if err != nil {
		return out, err
	}
	n.mtx.Lock()
	fn := n.tampers[id][method]
	n.mtx.Unlock()
	if fn == nil {
		return out, nil
	}
	return fn(out).(T), nil
}

type client struct {
	id party.ID
	n  *Network
}

// current returns a client for the live signer, which changes on Restart.
func (c *client) current(method string) (signerclient.Client, error) {
	s, err := c.n.intercept(c.id, method)
	if err != nil {
		return nil, err
	}
	return signerclient.NewLocal(s), nil
}

func (c *client) ID() party.ID { return c.id }

func (c *client) Health(ctx context.Context) (party.ID, error) {
	l, err := c.current(Health)
	if err != nil {
		return 0, err
	}
	out, err := l.Health(ctx)
	return tamper(c.n, c.id, Health, out, err)
}

func (c *client) DkgRound1(ctx context.Context, req *signer.DkgRound1Request) (*keygen.Round1Package, error) {
	l, err := c.current(DkgRound1)
	if err != nil {
		return nil, err
	}
	out, err := l.DkgRound1(ctx, req)
	return tamper(c.n, c.id, DkgRound1, out, err)
}

func (c *client) DkgRound2(ctx context.Context, req *signer.DkgRound2Request) (map[party.ID]*keygen.Round2Package, error) {
	l, err := c.current(DkgRound2)
	if err != nil {
		return nil, err
	}
	out, err := l.DkgRound2(ctx, req)
	return tamper(c.n, c.id, DkgRound2, out, err)
}

func (c *client) FinalizeDkg(ctx context.Context, req *signer.FinalizeDkgRequest) (*keygen.PublicKeyPackage, error) {
	l, err := c.current(FinalizeDkg)
	if err != nil {
		return nil, err
	}
	out, err := l.FinalizeDkg(ctx, req)
	return tamper(c.n, c.id, FinalizeDkg, out, err)
}

func (c *client) SignRound1(ctx context.Context, req *signer.SignRound1Request) (*sign.SigningCommitment, error) {
	l, err := c.current(SignRound1)
	if err != nil {
		return nil, err
	}
	out, err := l.SignRound1(ctx, req)
	return tamper(c.n, c.id, SignRound1, out, err)
}

func (c *client) SignRound2(ctx context.Context, req *signer.SignRound2Request) (*sign.SignatureShare, error) {
	l, err := c.current(SignRound2)
	if err != nil {
		return nil, err
	}
	out, err := l.SignRound2(ctx, req)
	return tamper(c.n, c.id, SignRound2, out, err)
}
