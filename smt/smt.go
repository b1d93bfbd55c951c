// Package smt provides the authenticated key/value store used for the
// machine state: live resources, nullifiers and execution traces. It is
// a thin layer over an arbo sparse Merkle tree stored in a prefixed
// key-value database, producing openings (inclusion and exclusion
// proofs) that serialize canonically.
package smt

import (
	"errors"
	"fmt"

	"github.com/vocdoni/arbo"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"

	"github.com/causality-fw/causality/types"
)

// ErrKeyNotFound is returned by Get for absent keys.
var ErrKeyNotFound = errors.New("smt: key not found")

// hashFunc is the hash function used for tree nodes. The tree hash is
// an internal detail of state authentication and is independent of the
// content-addressing hasher.
var hashFunc = arbo.HashFunctionSha256

// Tree is a sparse Merkle tree with 32-byte-bounded keys.
type Tree struct {
	tree *arbo.Tree
	pdb  db.Database
}

// New opens (or creates) a tree in database under the given namespace
// prefix.
func New(database db.Database, prefix []byte) (*Tree, error) {
	pdb := prefixeddb.NewPrefixedDatabase(database, prefix)
	tree, err := arbo.NewTree(arbo.Config{
		Database:     pdb,
		MaxLevels:    types.StateTreeMaxLevels,
		HashFunction: hashFunc,
	})
	if err != nil {
		return nil, fmt.Errorf("smt: open tree: %w", err)
	}
	return &Tree{tree: tree, pdb: pdb}, nil
}

// Add inserts a new key. It fails if the key already exists.
func (t *Tree) Add(key, value []byte) error {
	if err := t.tree.Add(key, value); err != nil {
		return fmt.Errorf("smt: add %x: %w", key, err)
	}
	return nil
}

// Update replaces the value of an existing key.
func (t *Tree) Update(key, value []byte) error {
	if err := t.tree.Update(key, value); err != nil {
		return fmt.Errorf("smt: update %x: %w", key, err)
	}
	return nil
}

// Set inserts the key or replaces its value if it already exists.
func (t *Tree) Set(key, value []byte) error {
	if err := t.tree.Add(key, value); err == nil {
		return nil
	}
	return t.Update(key, value)
}

// Get returns the value stored under key, or ErrKeyNotFound.
func (t *Tree) Get(key []byte) ([]byte, error) {
	_, value, err := t.tree.Get(key)
	if err != nil {
		if errors.Is(err, arbo.ErrKeyNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("smt: get %x: %w", key, err)
	}
	return value, nil
}

// Root returns the current tree root.
func (t *Tree) Root() (types.Hash, error) {
	root, err := t.tree.Root()
	if err != nil {
		return types.Hash{}, fmt.Errorf("smt: root: %w", err)
	}
	var h types.Hash
	copy(h[:], root)
	return h, nil
}

// GenOpening produces an opening for key against the current root. For
// absent keys the opening is an exclusion proof (Existence false).
func (t *Tree) GenOpening(key []byte) (*Opening, error) {
	root, err := t.Root()
	if err != nil {
		return nil, err
	}
	leafKey, leafValue, siblings, existence, err := t.tree.GenProof(key)
	if err != nil {
		return nil, fmt.Errorf("smt: gen proof %x: %w", key, err)
	}
	return &Opening{
		Root:      root,
		Key:       leafKey,
		Value:     leafValue,
		Siblings:  siblings,
		Existence: existence,
	}, nil
}
