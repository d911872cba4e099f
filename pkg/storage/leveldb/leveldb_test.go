package leveldb

import (
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taurusgroup/frost-bridge/internal/test"
	"github.com/taurusgroup/frost-bridge/pkg/math/sample"
	"github.com/taurusgroup/frost-bridge/pkg/musig"
	"github.com/taurusgroup/frost-bridge/pkg/party"
	"github.com/taurusgroup/frost-bridge/pkg/storage"
	"github.com/taurusgroup/frost-bridge/protocols/frost/keygen"
	"github.com/taurusgroup/frost-bridge/protocols/frost/sign"
)

func newMusigID(t *testing.T) musig.ID {
	id, err := musig.NewUser(sample.Scalar(rand.Reader).ActOnBase(), "btc")
	require.NoError(t, err)
	return id
}

func TestDkgStateUpsert(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	defer s.Close()

	_, err := s.GetDkgState(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	params := keygen.Params{N: 3, T: 2}
	secret, pkg, err := keygen.Round1(rand.Reader, 1, params, []byte("ctx"))
	require.NoError(t, err)

	state := &storage.DkgState{MusigID: newMusigID(t), Phase: storage.DkgRound1, Params: params, Secret: secret}
	require.NoError(t, s.SetDkgState(ctx, "a", state))

	got, err := s.GetDkgState(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, state.MusigID, got.MusigID)
	assert.Equal(t, storage.DkgRound1, got.Phase)
	assert.True(t, got.Secret.Package.Commitment.Equal(pkg.Commitment))

	state.Phase = storage.DkgRound2
	require.NoError(t, s.SetDkgState(ctx, "a", state))
	got, err = s.GetDkgState(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, storage.DkgRound2, got.Phase, "last write wins")
}

func TestUserStateAndKeys(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	defer s.Close()

	_, public := test.GenerateKeys(keygen.Params{N: 3, T: 2}, rand.Reader)
	id := newMusigID(t)

	_, err := s.GetKey(ctx, id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, s.SetKey(ctx, id, public))
	got, err := s.GetKey(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.Equal(public))

	require.NoError(t, s.SetUserState(ctx, id, &storage.UserState{MusigID: id, DkgShareID: "x", Params: public.Params, Public: public}))
	user, err := s.GetUserState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "x", user.DkgShareID)
	assert.True(t, user.Public.Equal(public))

	issuer := id
	issuer.Role = musig.RoleIssuer
	_, err = s.GetUserState(ctx, issuer)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeleteSignSessionsBefore(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	defer s.Close()

	keys, _ := test.GenerateKeys(keygen.Params{N: 2, T: 2}, rand.Reader)
	nonces, commitment, err := sign.Commit(rand.Reader, keys[1])
	require.NoError(t, err)

	now := time.Now()
	old := &storage.SignSession{Nonces: nonces, Commitment: commitment, CreatedAt: now.Add(-time.Hour)}
	fresh := &storage.SignSession{Nonces: nonces, Commitment: commitment, CreatedAt: now}
	require.NoError(t, s.SetSignSession(ctx, "old", old))
	require.NoError(t, s.SetSignSession(ctx, "fresh", fresh))

	got, err := s.GetSignSession(ctx, "fresh")
	require.NoError(t, err)
	assert.True(t, got.Nonces.D.Equal(nonces.D))

	n, err := s.DeleteSignSessionsBefore(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.GetSignSession(ctx, "old")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.GetSignSession(ctx, "fresh")
	assert.NoError(t, err)
}

func TestDeleteDkgStatesBefore(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	defer s.Close()

	params := keygen.Params{N: 2, T: 2}
	now := time.Now()
	id := newMusigID(t)
	for name, state := range map[string]*storage.DkgState{
		"stale-round1": {Phase: storage.DkgRound1, UpdatedAt: now.Add(-time.Hour)},
		"stale-round2": {Phase: storage.DkgRound2, UpdatedAt: now.Add(-time.Hour)},
		"fresh":        {Phase: storage.DkgRound1, UpdatedAt: now},
		"finalized":    {Phase: storage.DkgFinalized, UpdatedAt: now.Add(-time.Hour)},
	} {
		secret, _, err := keygen.Round1(rand.Reader, 1, params, []byte(name))
		require.NoError(t, err)
		state.MusigID = id
		state.Params = params
		state.Secret = secret
		require.NoError(t, s.SetDkgState(ctx, name, state))
	}

	n, err := s.DeleteDkgStatesBefore(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, name := range []string{"stale-round1", "stale-round2"} {
		_, err = s.GetDkgState(ctx, name)
		assert.ErrorIs(t, err, storage.ErrNotFound, name)
	}
	for _, name := range []string{"fresh", "finalized"} {
		_, err = s.GetDkgState(ctx, name)
		assert.NoError(t, err, name)
	}
}

func TestPendingDkg(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	defer s.Close()

	id := newMusigID(t)
	_, err := s.GetPendingDkg(ctx, id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, s.DeletePendingDkg(ctx, id))

	params := keygen.Params{N: 2, T: 2}
	_, pkg, err := keygen.Round1(rand.Reader, 1, params, []byte("ctx"))
	require.NoError(t, err)
	pending := &storage.PendingDkg{
		DkgShareID: "ceremony",
		Params:     params,
		Round1:     map[party.ID]*keygen.Round1Package{1: pkg},
		Round2: map[party.ID]map[party.ID]*keygen.Round2Package{
			2: {1: {Share: sample.Scalar(rand.Reader)}},
		},
	}
	require.NoError(t, s.SetPendingDkg(ctx, id, pending))

	got, err := s.GetPendingDkg(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ceremony", got.DkgShareID)
	assert.Equal(t, params, got.Params)
	assert.True(t, got.Round1[1].Commitment.Equal(pkg.Commitment))
	assert.True(t, got.Round2[2][1].Share.Equal(pending.Round2[2][1].Share))

	require.NoError(t, s.DeletePendingDkg(ctx, id))
	_, err = s.GetPendingDkg(ctx, id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestOpenDir(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	id := newMusigID(t)
	require.NoError(t, s.SetUserState(ctx, id, &storage.UserState{MusigID: id, DkgShareID: "persisted"}))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()
	user, err := s.GetUserState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "persisted", user.DkgShareID)
}
