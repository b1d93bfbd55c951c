package prover

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/causality-fw/causality/circuit"
	"github.com/causality-fw/causality/codec"
	"github.com/causality-fw/causality/crypto/hash"
	"github.com/causality-fw/causality/types"
	"github.com/causality-fw/causality/witness"
)

// Stub is a proving backend for tests and development. Its "proof" is
// a hash binding the commitment to the public inputs, so verification
// is meaningful but instant. TransientFailures makes the first N Prove
// calls fail with ErrBackendTransient to exercise retry paths.
type Stub struct {
	TransientFailures int

	mu    sync.Mutex
	calls int
}

// NewStub creates a stub backend with no injected failures.
func NewStub() *Stub {
	return &Stub{}
}

// Name implements Backend.
func (s *Stub) Name() string { return "stub" }

// Health implements Backend.
func (s *Stub) Health() error { return nil }

func stubDigest(commitment []byte, pub *witness.PublicInputs) []byte {
	e := codec.NewEncoder()
	e.WriteBytes(commitment)
	e.WriteHash(types.Hash(pub.ProgramID))
	e.WriteHash(pub.InitialStateRoot)
	e.WriteHash(pub.FinalStateRoot)
	return hash.Default().Sum(e.Bytes()).Bytes()
}

// Prove implements Backend.
func (s *Stub) Prove(circuitID types.CircuitID, w *witness.Witness) (*Proof, error) {
	s.mu.Lock()
	s.calls++
	failing := s.calls <= s.TransientFailures
	s.mu.Unlock()
	if failing {
		return nil, fmt.Errorf("%w: injected failure", ErrBackendTransient)
	}

	if want := circuit.ReferenceID(hash.Default(), w.ProgramID); circuitID != want {
		return nil, fmt.Errorf("%w: circuit %s does not bind program %s", ErrBackendFatal, circuitID, w.ProgramID)
	}
	commitment, err := circuit.Commit(w, circuit.ReadsDigest(w))
	if err != nil {
		return nil, fmt.Errorf("%w: compute commitment: %v", ErrBackendFatal, err)
	}
	pub := w.Public(types.Hash{})
	return &Proof{
		Backend:    s.Name(),
		CircuitID:  circuitID,
		Data:       stubDigest(commitment.Bytes(), pub),
		Commitment: commitment.Bytes(),
	}, nil
}

// Verify implements Backend.
func (s *Stub) Verify(circuitID types.CircuitID, p *Proof, pub *witness.PublicInputs) error {
	if p.CircuitID != circuitID {
		return fmt.Errorf("%w: proof is for a different circuit", ErrVerificationFailed)
	}
	if want := circuit.ReferenceID(hash.Default(), pub.ProgramID); circuitID != want {
		return fmt.Errorf("%w: circuit id mismatch", ErrVerificationFailed)
	}
	if !bytes.Equal(p.Data, stubDigest(p.Commitment, pub)) {
		return fmt.Errorf("%w: digest mismatch", ErrVerificationFailed)
	}
	return nil
}
