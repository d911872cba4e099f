// Package aggregator drives key generation and signing ceremonies over a fixed
// set of signer clients.
//
// The aggregator holds no secret material. For every round it sends the same
// request to each participant in parallel, waits for the responses and builds
// the input of the next round from them.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/taurusgroup/frost-bridge/pkg/musig"
	"github.com/taurusgroup/frost-bridge/pkg/party"
	"github.com/taurusgroup/frost-bridge/pkg/protocol"
	"github.com/taurusgroup/frost-bridge/pkg/signerclient"
	"github.com/taurusgroup/frost-bridge/pkg/storage"
	"github.com/taurusgroup/frost-bridge/protocols/frost/keygen"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultCallTimeout  = 10 * time.Second
	DefaultMaxAttempts  = 3
	DefaultRetryBackoff = 200 * time.Millisecond
)

type Aggregator struct {
	clients map[party.ID]signerclient.Client
	ids     party.IDSlice
	keys    storage.KeyStorage
	log     zerolog.Logger
	metrics *metrics

	registerer   prometheus.Registerer
	callTimeout  time.Duration
	maxAttempts  int
	retryBackoff time.Duration
	newID        func() string

	// dkgLocks prevents two ceremonies for the same identity.
	dkgLocks sync.Map
}

type Option func(*Aggregator)

func WithLogger(log zerolog.Logger) Option {
	return func(a *Aggregator) { a.log = log }
}

// WithRegisterer registers the metrics on reg instead of a private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *Aggregator) { a.registerer = reg }
}

// WithCallTimeout bounds every call to a participant.
func WithCallTimeout(d time.Duration) Option {
	return func(a *Aggregator) { a.callTimeout = d }
}

// WithMaxAttempts sets how many times a call failing with a transport error is tried.
func WithMaxAttempts(n int) Option {
	return func(a *Aggregator) { a.maxAttempts = n }
}

// WithRetryBackoff sets the wait before the second attempt; it grows linearly.
func WithRetryBackoff(d time.Duration) Option {
	return func(a *Aggregator) { a.retryBackoff = d }
}

// New returns an aggregator for the participants served by clients.
//
// The map must be keyed by each client's ID, and must not be modified afterwards.
func New(clients map[party.ID]signerclient.Client, keys storage.KeyStorage, opts ...Option) (*Aggregator, error) {
	a := &Aggregator{
		clients:      clients,
		keys:         keys,
		log:          zerolog.Nop(),
		callTimeout:  DefaultCallTimeout,
		maxAttempts:  DefaultMaxAttempts,
		retryBackoff: DefaultRetryBackoff,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(a)
	}
	if len(clients) == 0 {
		return nil, protocol.NewError(protocol.KindConfig, "aggregator.New", errors.New("no participants"))
	}
	ids := make([]party.ID, 0, len(clients))
	for id, c := range clients {
		if err := id.Validate(); err != nil {
			return nil, protocol.NewError(protocol.KindConfig, "aggregator.New", err)
		}
		if c == nil || c.ID() != id {
			return nil, protocol.NewError(protocol.KindConfig, "aggregator.New", fmt.Errorf("client for %d is not configured for it", id), id)
		}
		ids = append(ids, id)
	}
	a.ids = party.NewIDSlice(ids)
	if a.maxAttempts < 1 {
		a.maxAttempts = 1
	}
	if a.registerer == nil {
		a.registerer = prometheus.NewRegistry()
	}
	var err error
	if a.metrics, err = newMetrics(a.registerer); err != nil {
		return nil, fmt.Errorf("aggregator: register metrics: %w", err)
	}
	return a, nil
}

// Participants returns the identifiers of all clients, in ascending order.
func (a *Aggregator) Participants() party.IDSlice {
	return a.ids.Copy()
}

// GetPublicKey returns the finalized public key package of the identity, or
// nil if none was generated.
func (a *Aggregator) GetPublicKey(ctx context.Context, id musig.ID) (*keygen.PublicKeyPackage, error) {
	public, err := a.keys.GetKey(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, protocol.NewError(protocol.KindResource, "aggregator.GetPublicKey", err)
	}
	return public, nil
}

// Health calls every participant once and returns the ones that failed.
func (a *Aggregator) Health(ctx context.Context) map[party.ID]error {
	_, failures := fanOut(ctx, a, "health", a.ids, func(ctx context.Context, c signerclient.Client) (party.ID, error) {
		ctx, cancel := context.WithTimeout(ctx, a.callTimeout)
		defer cancel()
		id, err := c.Health(ctx)
		if err == nil && id != c.ID() {
			err = protocol.NewError(protocol.KindConfig, "aggregator.Health", fmt.Errorf("participant reports id %d", id), c.ID())
		}
		return id, err
	})
	return failures
}

// call runs fn with a bounded deadline, retrying transport failures.
func call[T any](ctx context.Context, a *Aggregator, log zerolog.Logger, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 1; ; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
		out, err := fn(callCtx)
		cancel()
		if err == nil {
			return out, nil
		}
		if !protocol.Retryable(err) || attempt >= a.maxAttempts || ctx.Err() != nil {
			return zero, err
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("retrying")
		select {
		case <-ctx.Done():
			return zero, err
		case <-time.After(time.Duration(attempt) * a.retryBackoff):
		}
	}
}

// fanOut calls fn for each of ids concurrently and waits for all of them.
func fanOut[T any](ctx context.Context, a *Aggregator, round string, ids party.IDSlice, fn func(context.Context, signerclient.Client) (T, error)) (map[party.ID]T, map[party.ID]error) {
	var (
		mtx      sync.Mutex
		results  = make(map[party.ID]T, len(ids))
		failures = make(map[party.ID]error)
		g        errgroup.Group
	)
	for _, id := range ids {
		c := a.clients[id]
		g.Go(func() error {
			out, err := fn(ctx, c)
			mtx.Lock()
			defer mtx.Unlock()
			if err != nil {
				failures[c.ID()] = err
				a.metrics.failure(round, err)
				return nil
			}
			results[c.ID()] = out
			return nil
		})
	}
	_ = g.Wait()
	return results, failures
}
