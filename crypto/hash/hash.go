// Package hash provides the 32-byte content hashing used for all
// identifiers. The hash function is fixed at system-configuration time
// and is part of every ProgramId; implementations register themselves
// by name.
package hash

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"sync"

	"github.com/causality-fw/causality/types"
)

// Hasher computes 32-byte content hashes.
type Hasher interface {
	// Name identifies the hash function; it participates in program
	// identifier derivation.
	Name() string
	// Sum hashes data into a 32-byte digest.
	Sum(data []byte) types.Hash
}

// ContentID derives a content identifier from a canonical encoding.
func ContentID(h Hasher, enc []byte) types.Hash {
	return h.Sum(enc)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Hasher{}
)

// Register makes a hasher available by name. Registering the same name
// twice panics; hashers are wired once at init time.
func Register(h Hasher) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[h.Name()]; dup {
		panic(fmt.Sprintf("hash: duplicate hasher %q", h.Name()))
	}
	registry[h.Name()] = h
}

// ByName returns the hasher registered under name.
func ByName(name string) (Hasher, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	h, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("hash: unknown hasher %q", name)
	}
	return h, nil
}

// Names lists the registered hasher names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Default returns the system default hasher (SHA-256).
func Default() Hasher { return sha256Hasher{} }

// sha256Hasher is the default content hasher.
type sha256Hasher struct{}

func (sha256Hasher) Name() string { return "sha256" }

func (sha256Hasher) Sum(data []byte) types.Hash {
	return types.Hash(sha256.Sum256(data))
}

func init() {
	Register(sha256Hasher{})
}
