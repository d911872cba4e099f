package aggregator_test

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taurusgroup/frost-bridge/internal/testnet"
	"github.com/taurusgroup/frost-bridge/pkg/aggregator"
	"github.com/taurusgroup/frost-bridge/pkg/math/sample"
	"github.com/taurusgroup/frost-bridge/pkg/musig"
	"github.com/taurusgroup/frost-bridge/pkg/party"
	"github.com/taurusgroup/frost-bridge/pkg/protocol"
	"github.com/taurusgroup/frost-bridge/pkg/signer"
	"github.com/taurusgroup/frost-bridge/pkg/signerclient"
	"github.com/taurusgroup/frost-bridge/pkg/storage"
	"github.com/taurusgroup/frost-bridge/pkg/storage/leveldb"
	"github.com/taurusgroup/frost-bridge/pkg/taproot"
	"github.com/taurusgroup/frost-bridge/pkg/tweak"
	"github.com/taurusgroup/frost-bridge/protocols/frost/keygen"
	"github.com/taurusgroup/frost-bridge/protocols/frost/sign"
	"golang.org/x/sync/errgroup"
)

func setup(t *testing.T, n int, opts ...aggregator.Option) (*aggregator.Aggregator, *testnet.Network) {
	net, err := testnet.NewNetwork(party.Range(n))
	require.NoError(t, err)
	opts = append([]aggregator.Option{
		aggregator.WithCallTimeout(time.Second),
		aggregator.WithRetryBackoff(time.Millisecond),
	}, opts...)
	a, err := aggregator.New(net.Clients(), leveldb.NewMemory(), opts...)
	require.NoError(t, err)
	return a, net
}

func newUser(t *testing.T, asset string) musig.ID {
	id, err := musig.NewUser(sample.Scalar(rand.Reader).ActOnBase(), asset)
	require.NoError(t, err)
	return id
}

func digest(s string) []byte {
	m := sha256.Sum256([]byte(s))
	return m[:]
}

// checkSignature verifies sig for pk with btcec.
func checkSignature(t *testing.T, pk taproot.PublicKey, sig taproot.Signature, m []byte) {
	key, err := schnorr.ParsePubKey(pk)
	require.NoError(t, err)
	s, err := schnorr.ParseSignature(sig)
	require.NoError(t, err)
	assert.True(t, s.Verify(m, key))
}

func TestRunDKG(t *testing.T) {
	for _, params := range []keygen.Params{{N: 1, T: 1}, {N: 2, T: 1}, {N: 2, T: 2}, {N: 3, T: 2}, {N: 4, T: 3}, {N: 5, T: 5}} {
		params := params
		t.Run(params.String(), func(t *testing.T) {
			ctx := context.Background()
			a, net := setup(t, params.N)
			id := newUser(t, "btc")

			public, err := a.RunDKG(ctx, id, params)
			require.NoError(t, err)
			require.NoError(t, public.Validate())

			for _, pid := range party.Range(params.N) {
				got, err := net.Signer(pid).PublicKeyPackage(ctx, id)
				require.NoError(t, err)
				assert.True(t, public.Equal(got), "participant %d", pid)
			}

			stored, err := a.GetPublicKey(ctx, id)
			require.NoError(t, err)
			assert.True(t, public.Equal(stored))

			m := digest("withdraw " + params.String())
			sig, err := a.RunSigning(ctx, id, m)
			require.NoError(t, err)
			checkSignature(t, public.XOnly(), sig, m)
		})
	}
}

func TestRunDKGTransportFailureAborts(t *testing.T) {
	ctx := context.Background()
	params := keygen.Params{N: 3, T: 2}
	a, net := setup(t, params.N)
	id := newUser(t, "eth")

	net.Fail(2, testnet.DkgRound1, -1)
	public, err := a.RunDKG(ctx, id, params)
	require.Error(t, err)
	assert.Nil(t, public)

	var ceremonyErr *aggregator.CeremonyError
	require.True(t, errors.As(err, &ceremonyErr))
	assert.Equal(t, aggregator.StateIdle, ceremonyErr.Stage)
	assert.Equal(t, party.IDSlice{2}, ceremonyErr.Culprits())
	assert.True(t, errors.Is(err, testnet.ErrUnreachable))
	assert.Equal(t, protocol.KindTransport, protocol.KindOf(err))
	assert.Equal(t, aggregator.DefaultMaxAttempts, net.Calls(2, testnet.DkgRound1))
	for _, pid := range party.Range(params.N) {
		assert.Zero(t, net.Calls(pid, testnet.DkgRound2), "round 2 must not start")
	}

	stored, err := a.GetPublicKey(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, stored)

	net.Heal(2)
	public, err = a.RunDKG(ctx, id, params)
	require.NoError(t, err)
	sig, err := a.RunSigning(ctx, id, digest("after retry"))
	require.NoError(t, err)
	checkSignature(t, public.XOnly(), sig, digest("after retry"))
}

func TestRunDKGRetriesTransientFailure(t *testing.T) {
	params := keygen.Params{N: 3, T: 2}
	a, net := setup(t, params.N)
	net.Fail(3, testnet.DkgRound1, 1)
	net.Fail(1, testnet.FinalizeDkg, 2)

	_, err := a.RunDKG(context.Background(), newUser(t, "btc"), params)
	require.NoError(t, err)
	assert.Equal(t, 2, net.Calls(3, testnet.DkgRound1))
	assert.Equal(t, 3, net.Calls(1, testnet.FinalizeDkg))
}

func TestRunDKGResumesFinalization(t *testing.T) {
	ctx := context.Background()
	params := keygen.Params{N: 3, T: 2}
	a, net := setup(t, params.N)
	id := newUser(t, "btc")

	net.Fail(3, testnet.FinalizeDkg, -1)
	_, err := a.RunDKG(ctx, id, params)
	var ceremonyErr *aggregator.CeremonyError
	require.True(t, errors.As(err, &ceremonyErr))
	assert.Equal(t, aggregator.StateRound2Collected, ceremonyErr.Stage)
	assert.Equal(t, party.IDSlice{3}, ceremonyErr.Culprits())

	// 1 and 2 hold key shares, so the same ceremony must be finished
	_, err = a.RunDKG(ctx, id, keygen.Params{N: 3, T: 3})
	assert.ErrorIs(t, err, protocol.ErrParamsMismatch)

	net.Heal(3)
	public, err := a.RunDKG(ctx, id, params)
	require.NoError(t, err)
	for _, pid := range party.Range(params.N) {
		assert.Equal(t, 1, net.Calls(pid, testnet.DkgRound1), "participant %d", pid)
		got, err := net.Signer(pid).PublicKeyPackage(ctx, id)
		require.NoError(t, err)
		assert.True(t, public.Equal(got), "participant %d", pid)
	}

	m := digest("after resume")
	sig, err := a.RunSigning(ctx, id, m, aggregator.WithQuorum(2, 3))
	require.NoError(t, err)
	checkSignature(t, public.XOnly(), sig, m)
}

// unreliableKeys fails the next failSetKey registrations.
type unreliableKeys struct {
	*leveldb.Store
	failSetKey int
}

func (k *unreliableKeys) SetKey(ctx context.Context, id musig.ID, public *keygen.PublicKeyPackage) error {
	if k.failSetKey > 0 {
		k.failSetKey--
		return errors.New("disk full")
	}
	return k.Store.SetKey(ctx, id, public)
}

func TestRunDKGAfterRegistrationFailure(t *testing.T) {
	ctx := context.Background()
	params := keygen.Params{N: 3, T: 2}
	net, err := testnet.NewNetwork(party.Range(params.N))
	require.NoError(t, err)
	keys := &unreliableKeys{Store: leveldb.NewMemory(), failSetKey: 1}
	a, err := aggregator.New(net.Clients(), keys, aggregator.WithRetryBackoff(time.Millisecond))
	require.NoError(t, err)
	id := newUser(t, "eth")

	_, err = a.RunDKG(ctx, id, params)
	require.Error(t, err)
	assert.Equal(t, protocol.KindResource, protocol.KindOf(err))
	stored, err := a.GetPublicKey(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, stored)

	public, err := a.RunDKG(ctx, id, params)
	require.NoError(t, err)
	for _, pid := range party.Range(params.N) {
		got, err := net.Signer(pid).PublicKeyPackage(ctx, id)
		require.NoError(t, err)
		assert.True(t, public.Equal(got))
	}
	_, err = keys.GetPendingDkg(ctx, id)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	m := digest("registered")
	sig, err := a.RunSigning(ctx, id, m)
	require.NoError(t, err)
	checkSignature(t, public.XOnly(), sig, m)
}

func TestRunDKGPublicKeyMismatch(t *testing.T) {
	ctx := context.Background()
	params := keygen.Params{N: 3, T: 2}
	a, net := setup(t, params.N)
	id := newUser(t, "btc")

	net.Tamper(2, testnet.FinalizeDkg, func(v any) any {
		data, err := v.(*keygen.PublicKeyPackage).Bytes()
		assert.NoError(t, err)
		var forged keygen.PublicKeyPackage
		assert.NoError(t, protocol.Unmarshal(data, &forged))
		forged.VerificationShares[1] = sample.Scalar(rand.Reader).ActOnBase()
		return &forged
	})
	_, err := a.RunDKG(ctx, id, params)
	var ceremonyErr *aggregator.CeremonyError
	require.True(t, errors.As(err, &ceremonyErr))
	assert.ErrorIs(t, err, protocol.ErrPublicKeyMismatch)
	assert.Equal(t, protocol.KindCrypto, protocol.KindOf(err))
	assert.Equal(t, party.IDSlice{2}, ceremonyErr.Culprits())
	stored, err := a.GetPublicKey(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, stored)

	net.Heal(2)
	public, err := a.RunDKG(ctx, id, params)
	require.NoError(t, err)
	got, err := net.Signer(2).PublicKeyPackage(ctx, id)
	require.NoError(t, err)
	assert.True(t, public.Equal(got))
}

func TestRunDKGAfterAbandonedCeremony(t *testing.T) {
	ctx := context.Background()
	params := keygen.Params{N: 2, T: 2}
	a, net := setup(t, params.N)
	id := newUser(t, "btc")

	_, err := net.Signer(1).DkgRound1(ctx, &signer.DkgRound1Request{MusigID: id, DkgShareID: "abandoned", Params: params})
	require.NoError(t, err)

	_, err = a.RunDKG(ctx, id, params)
	require.NoError(t, err)
}

func TestRunDKGExistingKey(t *testing.T) {
	ctx := context.Background()
	params := keygen.Params{N: 3, T: 2}
	a, net := setup(t, params.N)
	id := newUser(t, "btc")

	first, err := a.RunDKG(ctx, id, params)
	require.NoError(t, err)
	second, err := a.RunDKG(ctx, id, params)
	require.NoError(t, err)
	assert.True(t, first.Equal(second))
	assert.Equal(t, 1, net.Calls(1, testnet.DkgRound1))

	_, err = a.RunDKG(ctx, id, keygen.Params{N: 3, T: 3})
	assert.ErrorIs(t, err, protocol.ErrParamsMismatch)

	_, err = a.RunDKG(ctx, newUser(t, "btc"), keygen.Params{N: 4, T: 2})
	assert.ErrorIs(t, err, protocol.ErrParamsMismatch)
	assert.Equal(t, protocol.KindConfig, protocol.KindOf(err))

	pk, err := id.PublicKeyPoint()
	require.NoError(t, err)
	issuer, err := musig.NewIssuer(pk, id.AssetID)
	require.NoError(t, err)
	other, err := a.RunDKG(ctx, issuer, params)
	require.NoError(t, err)
	assert.False(t, first.Equal(other), "issuer and user keys are separate")
}

func TestRunSigningQuorums(t *testing.T) {
	ctx := context.Background()
	params := keygen.Params{N: 3, T: 2}
	a, net := setup(t, params.N)
	id := newUser(t, "btc")
	public, err := a.RunDKG(ctx, id, params)
	require.NoError(t, err)

	m1, m2 := digest("first"), digest("second")
	sig1, err := a.RunSigning(ctx, id, m1, aggregator.WithQuorum(1, 2))
	require.NoError(t, err)
	checkSignature(t, public.XOnly(), sig1, m1)

	sig2, err := a.RunSigning(ctx, id, m2, aggregator.WithQuorum(1, 3))
	require.NoError(t, err)
	checkSignature(t, public.XOnly(), sig2, m2)

	assert.Equal(t, 2, net.Calls(1, testnet.SignRound2))
	assert.Equal(t, 1, net.Calls(2, testnet.SignRound2))
	assert.Equal(t, 1, net.Calls(3, testnet.SignRound2))

	sig3, err := a.RunSigning(ctx, id, []byte("a message that is not a hash"), aggregator.WithQuorum(1, 2, 3))
	require.NoError(t, err)
	assert.True(t, public.XOnly().Verify(sig3, []byte("a message that is not a hash")))
}

func TestRunSigningTopUp(t *testing.T) {
	ctx := context.Background()
	params := keygen.Params{N: 4, T: 2}
	a, net := setup(t, params.N)
	id := newUser(t, "btc")
	public, err := a.RunDKG(ctx, id, params)
	require.NoError(t, err)

	net.Quit(1)
	m := digest("top up")
	sig, err := a.RunSigning(ctx, id, m)
	require.NoError(t, err)
	checkSignature(t, public.XOnly(), sig, m)

	assert.Zero(t, net.Calls(1, testnet.SignRound2))
	assert.Equal(t, 1, net.Calls(2, testnet.SignRound2))
	assert.Equal(t, 1, net.Calls(3, testnet.SignRound2))
	assert.Zero(t, net.Calls(4, testnet.SignRound1), "participant 4 is not needed")
}

func TestRunSigningInsufficient(t *testing.T) {
	ctx := context.Background()
	params := keygen.Params{N: 3, T: 2}
	a, net := setup(t, params.N)
	id := newUser(t, "btc")
	_, err := a.RunDKG(ctx, id, params)
	require.NoError(t, err)

	sig, err := a.RunSigning(ctx, id, digest("m"), aggregator.WithQuorum(3))
	assert.Nil(t, sig)
	assert.ErrorIs(t, err, aggregator.ErrInsufficientParticipants)

	net.Quit(1)
	net.Quit(3)
	sig, err = a.RunSigning(ctx, id, digest("m"))
	assert.Nil(t, sig)
	var insufficient *aggregator.InsufficientParticipantsError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, 2, insufficient.Required)
	assert.Equal(t, 1, insufficient.Got)
	assert.Equal(t, party.IDSlice{1, 3}, insufficient.Culprits())
	assert.ErrorIs(t, err, testnet.ErrUnreachable)

	_, err = a.RunSigning(ctx, newUser(t, "btc"), digest("m"))
	assert.Equal(t, protocol.KindConfig, protocol.KindOf(err))

	_, err = a.RunSigning(ctx, id, digest("m"), aggregator.WithQuorum(1, 7))
	assert.Equal(t, protocol.KindConfig, protocol.KindOf(err))
}

func TestRunSigningRound2Failure(t *testing.T) {
	ctx := context.Background()
	params := keygen.Params{N: 3, T: 2}
	a, net := setup(t, params.N)
	id := newUser(t, "btc")
	public, err := a.RunDKG(ctx, id, params)
	require.NoError(t, err)

	net.Fail(2, testnet.SignRound2, -1)
	_, err = a.RunSigning(ctx, id, digest("m"), aggregator.WithQuorum(1, 2))
	var insufficient *aggregator.InsufficientParticipantsError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, party.IDSlice{2}, insufficient.Culprits())

	sig, err := a.RunSigning(ctx, id, digest("m"), aggregator.WithQuorum(1, 3))
	require.NoError(t, err)
	checkSignature(t, public.XOnly(), sig, digest("m"))
}

func TestRunSigningInvalidShare(t *testing.T) {
	ctx := context.Background()
	params := keygen.Params{N: 3, T: 2}
	a, net := setup(t, params.N)
	id := newUser(t, "btc")
	_, err := a.RunDKG(ctx, id, params)
	require.NoError(t, err)

	net.Tamper(2, testnet.SignRound2, func(any) any {
		return &sign.SignatureShare{Z: sample.Scalar(rand.Reader)}
	})
	sig, err := a.RunSigning(ctx, id, digest("m"), aggregator.WithQuorum(1, 2))
	assert.Nil(t, sig)
	assert.ErrorIs(t, err, protocol.ErrInvalidShare)
	assert.Equal(t, protocol.KindCrypto, protocol.KindOf(err))
	assert.Equal(t, []party.ID{2}, protocol.CulpritsOf(err))
}

func TestRunSigningWithTweak(t *testing.T) {
	ctx := context.Background()
	params := keygen.Params{N: 3, T: 2}
	a, _ := setup(t, params.N)
	id := newUser(t, "btc")
	public, err := a.RunDKG(ctx, id, params)
	require.NoError(t, err)

	generated, err := tweak.GenerateTweakWithNonce([]byte("deposit 42"))
	require.NoError(t, err)
	base, err := tweak.ToBtcec(public.PublicKey)
	require.NoError(t, err)
	tweaked, err := tweak.TweakPubkey(base, generated.Scalar)
	require.NoError(t, err)

	m := digest("spend deposit 42")
	sig, err := a.RunSigning(ctx, id, m, aggregator.WithTweak(generated.Scalar))
	require.NoError(t, err)
	checkSignature(t, tweaked.XOnly[:], sig, m)

	restored, err := tweak.UntweakPubkey(tweaked, generated.Scalar)
	require.NoError(t, err)
	assert.True(t, restored.IsEqual(base))
}

func TestHealth(t *testing.T) {
	a, net := setup(t, 3, aggregator.WithMaxAttempts(1))
	assert.Empty(t, a.Health(context.Background()))

	net.Quit(2)
	failures := a.Health(context.Background())
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[2], testnet.ErrUnreachable)
}

func TestConcurrentCeremonies(t *testing.T) {
	ctx := context.Background()
	params := keygen.Params{N: 3, T: 2}
	a, _ := setup(t, params.N)

	ids := make([]musig.ID, 4)
	for i := range ids {
		ids[i] = newUser(t, fmt.Sprintf("asset-%d", i))
	}
	var g errgroup.Group
	for _, id := range ids {
		id := id
		g.Go(func() error {
			public, err := a.RunDKG(ctx, id, params)
			if err != nil {
				return err
			}
			for i := 0; i < 3; i++ {
				m := digest(fmt.Sprintf("%s %d", id, i))
				sig, err := a.RunSigning(ctx, id, m)
				if err != nil {
					return err
				}
				if !public.XOnly().Verify(sig, m) {
					return fmt.Errorf("invalid signature for %s", id)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, net := setup(t, 2, aggregator.WithRegisterer(reg), aggregator.WithMaxAttempts(1))
	net.Fail(1, testnet.DkgRound1, 1)

	_, err := a.RunDKG(context.Background(), newUser(t, "btc"), keygen.Params{N: 2, T: 2})
	require.Error(t, err)
	_, err = a.RunDKG(context.Background(), newUser(t, "btc"), keygen.Params{N: 2, T: 2})
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(reg, "frost_ceremonies_total", "frost_participant_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestNew(t *testing.T) {
	net, err := testnet.NewNetwork(party.Range(2))
	require.NoError(t, err)
	clients := net.Clients()
	clients[3] = clients[1]
	_, err = aggregator.New(clients, leveldb.NewMemory())
	assert.Equal(t, protocol.KindConfig, protocol.KindOf(err))

	_, err = aggregator.New(map[party.ID]signerclient.Client{}, leveldb.NewMemory())
	assert.Error(t, err)
}

func TestOverRPC(t *testing.T) {
	ctx := context.Background()
	params := keygen.Params{N: 3, T: 2}
	clients := make(map[party.ID]signerclient.Client, params.N)
	for _, pid := range params.Participants() {
		s, err := signer.New(pid, leveldb.NewMemory())
		require.NoError(t, err)
		h, err := signerclient.NewHandler(s, zerolog.Nop())
		require.NoError(t, err)
		server := httptest.NewServer(h)
		t.Cleanup(server.Close)
		clients[pid] = signerclient.NewRPC(pid, server.URL, signerclient.WithHTTPClient(server.Client()))
	}
	a, err := aggregator.New(clients, leveldb.NewMemory())
	require.NoError(t, err)

	id := newUser(t, "btc")
	public, err := a.RunDKG(ctx, id, params)
	require.NoError(t, err)
	m := digest("remote")
	sig, err := a.RunSigning(ctx, id, m, aggregator.WithQuorum(2, 3))
	require.NoError(t, err)
	checkSignature(t, public.XOnly(), sig, m)
}
