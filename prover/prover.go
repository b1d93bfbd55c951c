// Package prover turns witnesses into proofs. Proving backends are
// pluggable: the reference backend wraps gnark groth16 over bn254, and
// a deterministic stub backend exists for tests and development. A
// queue-driven service consumes proof requests from storage and runs
// them through the configured backends.
package prover

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/causality-fw/causality/codec"
	"github.com/causality-fw/causality/types"
	"github.com/causality-fw/causality/witness"
)

var (
	// ErrBackendTransient marks a failure worth retrying, like resource
	// exhaustion during proving.
	ErrBackendTransient = errors.New("transient backend failure")
	// ErrBackendFatal marks a failure that retrying cannot fix.
	ErrBackendFatal = errors.New("fatal backend failure")
	// ErrVerificationFailed is returned when a proof does not verify
	// against the given public inputs.
	ErrVerificationFailed = errors.New("proof verification failed")
	// ErrUnknownBackend is returned when no backend is registered under
	// the requested name.
	ErrUnknownBackend = errors.New("unknown proving backend")
)

// Proof is a backend-agnostic proof artifact. Data is the backend's
// serialized proof; Commitment is the public commitment value the
// verifier needs to rebuild the public assignment.
type Proof struct {
	Backend    string
	CircuitID  types.CircuitID
	Data       types.HexBytes
	Commitment types.HexBytes
}

// EncodeTo implements codec.Encodable.
func (p *Proof) EncodeTo(e *codec.Encoder) {
	e.WriteString(p.Backend)
	e.WriteHash(types.Hash(p.CircuitID))
	e.WriteBytes(p.Data)
	e.WriteBytes(p.Commitment)
}

// DecodeProof reads a Proof from the decoder.
func DecodeProof(d *codec.Decoder) (*Proof, error) {
	var p Proof
	var err error
	if p.Backend, err = d.ReadString(); err != nil {
		return nil, err
	}
	cid, err := d.ReadHash()
	if err != nil {
		return nil, err
	}
	p.CircuitID = types.CircuitID(cid)
	if p.Data, err = d.ReadBytes(); err != nil {
		return nil, err
	}
	if p.Commitment, err = d.ReadBytes(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Backend generates and verifies proofs for the reference constraint
// set. Implementations must be safe for concurrent use.
type Backend interface {
	// Name identifies the backend in proof requests and artifacts.
	Name() string
	// Prove generates a proof for a validated witness. The circuit id
	// must bind the witness's program to the backend's constraint set.
	Prove(circuitID types.CircuitID, w *witness.Witness) (*Proof, error)
	// Verify checks a proof against public inputs. It returns
	// ErrVerificationFailed when the proof is well-formed but invalid.
	Verify(circuitID types.CircuitID, p *Proof, pub *witness.PublicInputs) error
	// Health reports whether the backend is ready to prove.
	Health() error
}

// Registry holds the available proving backends by name.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// NewRegistry creates an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

// Register adds a backend. Registering the same name twice replaces
// the previous backend.
func (r *Registry) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[b.Name()] = b
}

// Backend returns the backend registered under name.
func (r *Registry) Backend(name string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
	return b, nil
}

// Names lists the registered backend names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
