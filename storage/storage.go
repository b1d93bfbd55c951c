// Package storage persists pipeline artifacts in a prefixed key-value
// store and exposes queue semantics for the proving service. The
// following prefixes are used:
//   - 'o/' for content-addressed objects
//   - 'pr/' for proof requests (queued)
//   - 'prr/' for proof request reservations
//   - 'pf/' for completed proofs
//
// Queue consumers take a reservation when they pick an element, so
// concurrent workers never process the same request twice.
package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"

	"github.com/causality-fw/causality/crypto/hash"
	"github.com/causality-fw/causality/types"
)

var (
	// Prefixes for the keys in the database.
	objectPrefix       = []byte("o/")
	proofRequestPrefix = []byte("pr/")
	proofReservPrefix  = []byte("prr/")
	proofPrefix        = []byte("pf/")
)

var (
	// ErrNotFound is returned when the requested artifact does not
	// exist.
	ErrNotFound = errors.New("not found")
	// ErrNoMoreElements is returned by queue getters when every element
	// is either processed or reserved.
	ErrNoMoreElements = errors.New("no more elements")
)

// Storage wraps the database with artifact and queue operations.
type Storage struct {
	db         db.Database
	globalLock sync.Mutex
}

// New creates a new Storage instance over the given database.
func New(database db.Database) *Storage {
	return &Storage{db: database}
}

// Close closes the underlying database.
func (s *Storage) Close() {
	s.db.Close()
}

// PutObject stores a blob under the hash of its content and returns
// the key.
func (s *Storage) PutObject(data []byte) (types.Hash, error) {
	key := hash.Default().Sum(data)
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), objectPrefix)
	if err := wTx.Set(key.Bytes(), data); err != nil {
		wTx.Discard()
		return types.Hash{}, fmt.Errorf("put object: %w", err)
	}
	return key, wTx.Commit()
}

// Object retrieves a blob by its content hash. Returns ErrNotFound if
// it does not exist.
func (s *Storage) Object(key types.Hash) ([]byte, error) {
	rd := prefixeddb.NewPrefixedReader(s.db, objectPrefix)
	data, err := rd.Get(key.Bytes())
	if err != nil {
		return nil, ErrNotFound
	}
	return data, nil
}

// Artifact encoding: deterministic CBOR, so stored bytes are stable
// across processes.
func encodeArtifact(a any) ([]byte, error) {
	encOpts := cbor.CoreDetEncOptions()
	em, err := encOpts.EncMode()
	if err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	return em.Marshal(a)
}

func decodeArtifact(data []byte, out any) error {
	return cbor.Unmarshal(data, out)
}

func (s *Storage) setArtifact(prefix, key []byte, a any) error {
	data, err := encodeArtifact(a)
	if err != nil {
		return err
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), prefix)
	if err := wTx.Set(key, data); err != nil {
		wTx.Discard()
		return err
	}
	return wTx.Commit()
}

func (s *Storage) getArtifact(prefix, key []byte, out any) error {
	rd := prefixeddb.NewPrefixedReader(s.db, prefix)
	data, err := rd.Get(key)
	if err != nil {
		return ErrNotFound
	}
	return decodeArtifact(data, out)
}

func (s *Storage) deleteArtifact(prefix, key []byte) error {
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), prefix)
	if err := wTx.Delete(key); err != nil {
		wTx.Discard()
		return ErrNotFound
	}
	return wTx.Commit()
}

func (s *Storage) isReserved(prefix, key []byte) bool {
	rd := prefixeddb.NewPrefixedReader(s.db, prefix)
	_, err := rd.Get(key)
	return err == nil
}

func (s *Storage) setReservation(prefix, key []byte) error {
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), prefix)
	if err := wTx.Set(key, []byte{1}); err != nil {
		wTx.Discard()
		return err
	}
	return wTx.Commit()
}
