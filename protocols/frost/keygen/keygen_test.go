package keygen

import (
	"crypto/rand"
	mrand "math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taurusgroup/frost-bridge/pkg/math/curve"
	"github.com/taurusgroup/frost-bridge/pkg/math/polynomial"
	"github.com/taurusgroup/frost-bridge/pkg/math/sample"
	"github.com/taurusgroup/frost-bridge/pkg/party"
	"github.com/taurusgroup/frost-bridge/pkg/protocol"
)

type output struct {
	key    *KeyPackage
	public *PublicKeyPackage
}

// run executes the three steps for all participants, with the gather/scatter
// done in memory.
func run(t *testing.T, params Params, context []byte) map[party.ID]output {
	secrets := make(map[party.ID]*Round1Secret, params.N)
	round1 := make(map[party.ID]*Round1Package, params.N)
	for _, id := range params.Participants() {
		secret, pkg, err := Round1(rand.Reader, id, params, context)
		require.NoError(t, err)
		secrets[id] = secret
		round1[id] = pkg
	}

	// round2ByRecipient[to][from]
	round2ByRecipient := make(map[party.ID]map[party.ID]*Round2Package, params.N)
	for _, id := range params.Participants() {
		round2ByRecipient[id] = make(map[party.ID]*Round2Package, params.N-1)
	}
	for _, id := range params.Participants() {
		out, err := Round2(secrets[id], round1)
		require.NoError(t, err)
		require.Len(t, out, params.N-1)
		for to, pkg := range out {
			round2ByRecipient[to][id] = pkg
		}
	}

	results := make(map[party.ID]output, params.N)
	for _, id := range params.Participants() {
		key, public, err := Finalize(secrets[id], round1, round2ByRecipient[id])
		require.NoError(t, err)
		results[id] = output{key, public}
	}
	return results
}

func checkOutput(t *testing.T, params Params, results map[party.ID]output) {
	var public *PublicKeyPackage
	for id, result := range results {
		require.Equal(t, id, result.key.ID)
		require.NoError(t, result.public.Validate())
		if public != nil {
			assert.True(t, public.Equal(result.public), "public key packages must be identical")
		}
		public = result.public
		assert.True(t, result.key.PublicKey.Equal(public.PublicKey))
		assert.True(t, result.key.SecretShare.ActOnBase().Equal(public.VerificationShares[id]))
	}
	assert.True(t, public.PublicKey.HasEvenY())

	// any T shares interpolate to the secret of Y
	quorum := params.Participants()[params.N-params.T:]
	lagrange := polynomial.Lagrange(quorum)
	secret := curve.NewScalar()
	for _, id := range quorum {
		secret.Add(curve.NewScalar().Set(lagrange[id]).Mul(results[id].key.SecretShare))
	}
	require.True(t, secret.ActOnBase().Equal(public.PublicKey))
}

func TestKeygen(t *testing.T) {
	for _, params := range []Params{{1, 1}, {2, 1}, {2, 2}, {3, 2}, {3, 3}, {5, 3}, {7, 4}} {
		params := params
		t.Run(params.String(), func(t *testing.T) {
			results := run(t, params, []byte("ceremony"))
			checkOutput(t, params, results)
		})
	}
}

func TestParamsValidate(t *testing.T) {
	assert.Error(t, Params{N: 0, T: 0}.Validate())
	assert.Error(t, Params{N: 3, T: 0}.Validate())
	assert.Error(t, Params{N: 3, T: 4}.Validate())
	assert.NoError(t, Params{N: 3, T: 3}.Validate())

	_, _, err := Round1(rand.Reader, 4, Params{N: 3, T: 2}, nil)
	assert.Equal(t, protocol.KindConfig, protocol.KindOf(err))
}

func TestRound2MissingPackage(t *testing.T) {
	params := Params{N: 3, T: 2}
	secret, pkg1, err := Round1(rand.Reader, 1, params, nil)
	require.NoError(t, err)
	_, pkg2, err := Round1(rand.Reader, 2, params, nil)
	require.NoError(t, err)

	_, err = Round2(secret, map[party.ID]*Round1Package{1: pkg1, 2: pkg2})
	require.Error(t, err)
	assert.Equal(t, protocol.KindMissingData, protocol.KindOf(err))
	assert.ErrorIs(t, err, protocol.ErrMissingPackage)
	assert.Equal(t, []party.ID{3}, protocol.CulpritsOf(err))
}

func TestRound2SelfSubstituted(t *testing.T) {
	params := Params{N: 2, T: 2}
	secret, _, err := Round1(rand.Reader, 1, params, nil)
	require.NoError(t, err)
	_, other, err := Round1(rand.Reader, 1, params, nil)
	require.NoError(t, err)
	_, pkg2, err := Round1(rand.Reader, 2, params, nil)
	require.NoError(t, err)

	_, err = Round2(secret, map[party.ID]*Round1Package{1: other, 2: pkg2})
	assert.Equal(t, protocol.KindCrypto, protocol.KindOf(err))
}

func TestRound2ProofBoundToContext(t *testing.T) {
	params := Params{N: 2, T: 1}
	secret, pkg1, err := Round1(rand.Reader, 1, params, []byte("a"))
	require.NoError(t, err)
	_, pkg2, err := Round1(rand.Reader, 2, params, []byte("b"))
	require.NoError(t, err)

	_, err = Round2(secret, map[party.ID]*Round1Package{1: pkg1, 2: pkg2})
	require.Error(t, err)
	assert.Equal(t, protocol.KindCrypto, protocol.KindOf(err))
	assert.Equal(t, []party.ID{2}, protocol.CulpritsOf(err))
}

func TestFinalizeInvalidShare(t *testing.T) {
	params := Params{N: 3, T: 2}
	secrets := make(map[party.ID]*Round1Secret)
	round1 := make(map[party.ID]*Round1Package)
	for _, id := range params.Participants() {
		secret, pkg, err := Round1(rand.Reader, id, params, nil)
		require.NoError(t, err)
		secrets[id], round1[id] = secret, pkg
	}
	toOne := make(map[party.ID]*Round2Package)
	for _, id := range []party.ID{2, 3} {
		out, err := Round2(secrets[id], round1)
		require.NoError(t, err)
		toOne[id] = out[1]
	}
	toOne[3] = &Round2Package{Share: sample.Scalar(rand.Reader)}

	_, _, err := Finalize(secrets[1], round1, toOne)
	require.Error(t, err)
	assert.ErrorIs(t, err, protocol.ErrInvalidShare)
	assert.Equal(t, []party.ID{3}, protocol.CulpritsOf(err))

	delete(toOne, 3)
	_, _, err = Finalize(secrets[1], round1, toOne)
	assert.ErrorIs(t, err, protocol.ErrMissingPackage)
}

func TestDerive(t *testing.T) {
	params := Params{N: 3, T: 2}
	results := run(t, params, nil)

	for i := 0; i < 8; i++ {
		adjust := sample.Scalar(rand.Reader)
		public, err := results[1].public.Derive(adjust)
		require.NoError(t, err)
		require.NoError(t, public.Validate())

		expected := results[1].public.PublicKey.Add(adjust.ActOnBase())
		assert.Equal(t, expected.XBytes(), public.PublicKey.XBytes())

		derived := make(map[party.ID]output)
		for id, result := range results {
			key, err := result.key.Derive(adjust)
			require.NoError(t, err)
			derived[id] = output{key, public}
			assert.True(t, key.VerificationShare.Equal(public.VerificationShares[id]))
		}
		checkOutput(t, params, derived)
	}
}

func TestPublicKeyPackageEncoding(t *testing.T) {
	results := run(t, Params{N: 4, T: 2}, nil)
	data, err := results[1].public.Bytes()
	require.NoError(t, err)

	var decoded PublicKeyPackage
	require.NoError(t, protocol.Unmarshal(data, &decoded))
	assert.True(t, decoded.Equal(results[1].public))

	again, err := decoded.Bytes()
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestRound1SecretEncoding(t *testing.T) {
	params := Params{N: 2, T: 2}
	secret, pkg, err := Round1(rand.Reader, 1, params, []byte("ctx"))
	require.NoError(t, err)
	data, err := protocol.Marshal(secret)
	require.NoError(t, err)

	var decoded Round1Secret
	require.NoError(t, protocol.Unmarshal(data, &decoded))
	assert.True(t, decoded.Package.Commitment.Equal(pkg.Commitment))
	x := sample.Scalar(rand.Reader)
	assert.True(t, decoded.Polynomial.Evaluate(x).Equal(secret.Polynomial.Evaluate(x)))
}

func TestRound1UsesGivenRandomness(t *testing.T) {
	params := Params{N: 3, T: 2}
	_, pkg1, err := Round1(mrand.New(mrand.NewSource(7)), 1, params, []byte("ctx"))
	require.NoError(t, err)
	_, pkg2, err := Round1(mrand.New(mrand.NewSource(7)), 1, params, []byte("ctx"))
	require.NoError(t, err)

	a, err := protocol.Marshal(pkg1)
	require.NoError(t, err)
	b, err := protocol.Marshal(pkg2)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	_, pkg3, err := Round1(mrand.New(mrand.NewSource(8)), 1, params, []byte("ctx"))
	require.NoError(t, err)
	assert.False(t, pkg1.Commitment.Equal(pkg3.Commitment))
}
