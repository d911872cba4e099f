// Package leveldb implements the storage contracts on an embedded goleveldb database.
//
// Values are encoded with deterministic CBOR.
package leveldb

import (
	"context"
	"errors"
	"fmt"
	"time"

	goleveldb "github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	lstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/taurusgroup/frost-bridge/pkg/musig"
	"github.com/taurusgroup/frost-bridge/pkg/protocol"
	"github.com/taurusgroup/frost-bridge/pkg/storage"
	"github.com/taurusgroup/frost-bridge/protocols/frost/keygen"
)

var (
	prefixDkg  = []byte("dkg/")
	prefixSign = []byte("sign/")
	prefixUser = []byte("user/")
	prefixKey  = []byte("key/")

	prefixPending = []byte("pending/")
)

// Store implements storage.SignerStorage and storage.KeyStorage.
type Store struct {
	db    *goleveldb.DB
	write *opt.WriteOptions
}

var (
	_ storage.SignerStorage = (*Store)(nil)
	_ storage.KeyStorage    = (*Store)(nil)
)

// Open opens or creates a database in dir. Writes are synced to disk.
func Open(dir string) (*Store, error) {
	db, err := goleveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("leveldb: open %s: %w", dir, err)
	}
	return &Store{db: db, write: &opt.WriteOptions{Sync: true}}, nil
}

// NewMemory returns a Store backed by memory, for tests.
func NewMemory() *Store {
	db, err := goleveldb.Open(lstorage.NewMemStorage(), nil)
	if err != nil {
		panic(fmt.Sprintf("leveldb: open memory storage: %v", err))
	}
	return &Store{db: db, write: &opt.WriteOptions{}}
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func key(prefix []byte, id string) []byte {
	k := make([]byte, 0, len(prefix)+len(id))
	k = append(k, prefix...)
	return append(k, id...)
}

func (s *Store) get(ctx context.Context, k []byte, v interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := s.db.Get(k, nil)
	if errors.Is(err, goleveldb.ErrNotFound) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("leveldb: get %q: %w", k, err)
	}
	if err = protocol.Unmarshal(data, v); err != nil {
		return fmt.Errorf("leveldb: decode %q: %w", k, err)
	}
	return nil
}

func (s *Store) put(ctx context.Context, k []byte, v interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := protocol.Marshal(v)
	if err != nil {
		return fmt.Errorf("leveldb: encode %q: %w", k, err)
	}
	if err = s.db.Put(k, data, s.write); err != nil {
		return fmt.Errorf("leveldb: put %q: %w", k, err)
	}
	return nil
}

func (s *Store) GetDkgState(ctx context.Context, dkgShareID string) (*storage.DkgState, error) {
	var state storage.DkgState
	if err := s.get(ctx, key(prefixDkg, dkgShareID), &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *Store) SetDkgState(ctx context.Context, dkgShareID string, state *storage.DkgState) error {
	return s.put(ctx, key(prefixDkg, dkgShareID), state)
}

func (s *Store) DeleteDkgStatesBefore(ctx context.Context, t time.Time) (int, error) {
	iter := s.db.NewIterator(util.BytesPrefix(prefixDkg), nil)
	defer iter.Release()

	batch := new(goleveldb.Batch)
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		var state storage.DkgState
		if err := protocol.Unmarshal(iter.Value(), &state); err != nil {
			return 0, fmt.Errorf("leveldb: decode %q: %w", iter.Key(), err)
		}
		if state.Phase == storage.DkgFinalized || !state.UpdatedAt.Before(t) {
			continue
		}
		if state.Secret != nil && state.Secret.Polynomial != nil {
			state.Secret.Polynomial.Zeroize()
		}
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	if err := iter.Error(); err != nil {
		return 0, fmt.Errorf("leveldb: iterate dkg states: %w", err)
	}
	if batch.Len() == 0 {
		return 0, nil
	}
	if err := s.db.Write(batch, s.write); err != nil {
		return 0, fmt.Errorf("leveldb: delete dkg states: %w", err)
	}
	return batch.Len(), nil
}

func (s *Store) GetSignSession(ctx context.Context, sessionID string) (*storage.SignSession, error) {
	var session storage.SignSession
	if err := s.get(ctx, key(prefixSign, sessionID), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *Store) SetSignSession(ctx context.Context, sessionID string, session *storage.SignSession) error {
	return s.put(ctx, key(prefixSign, sessionID), session)
}

func (s *Store) DeleteSignSessionsBefore(ctx context.Context, t time.Time) (int, error) {
	iter := s.db.NewIterator(util.BytesPrefix(prefixSign), nil)
	defer iter.Release()

	batch := new(goleveldb.Batch)
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		var session storage.SignSession
		if err := protocol.Unmarshal(iter.Value(), &session); err != nil {
			return 0, fmt.Errorf("leveldb: decode %q: %w", iter.Key(), err)
		}
		if session.CreatedAt.Before(t) {
			batch.Delete(append([]byte(nil), iter.Key()...))
		}
	}
	if err := iter.Error(); err != nil {
		return 0, fmt.Errorf("leveldb: iterate sessions: %w", err)
	}
	if batch.Len() == 0 {
		return 0, nil
	}
	if err := s.db.Write(batch, s.write); err != nil {
		return 0, fmt.Errorf("leveldb: delete sessions: %w", err)
	}
	return batch.Len(), nil
}

func (s *Store) GetUserState(ctx context.Context, id musig.ID) (*storage.UserState, error) {
	var state storage.UserState
	if err := s.get(ctx, key(prefixUser, id.String()), &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *Store) SetUserState(ctx context.Context, id musig.ID, state *storage.UserState) error {
	return s.put(ctx, key(prefixUser, id.String()), state)
}

func (s *Store) GetKey(ctx context.Context, id musig.ID) (*keygen.PublicKeyPackage, error) {
	var public keygen.PublicKeyPackage
	if err := s.get(ctx, key(prefixKey, id.String()), &public); err != nil {
		return nil, err
	}
	return &public, nil
}

func (s *Store) SetKey(ctx context.Context, id musig.ID, public *keygen.PublicKeyPackage) error {
	return s.put(ctx, key(prefixKey, id.String()), public)
}

func (s *Store) GetPendingDkg(ctx context.Context, id musig.ID) (*storage.PendingDkg, error) {
	var pending storage.PendingDkg
	if err := s.get(ctx, key(prefixPending, id.String()), &pending); err != nil {
		return nil, err
	}
	return &pending, nil
}

func (s *Store) SetPendingDkg(ctx context.Context, id musig.ID, pending *storage.PendingDkg) error {
	return s.put(ctx, key(prefixPending, id.String()), pending)
}

func (s *Store) DeletePendingDkg(ctx context.Context, id musig.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k := key(prefixPending, id.String())
	if err := s.db.Delete(k, s.write); err != nil {
		return fmt.Errorf("leveldb: delete %q: %w", k, err)
	}
	return nil
}
