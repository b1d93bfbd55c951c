package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.vocdoni.io/dvote/db/prefixeddb"

	"github.com/causality-fw/causality/types"
)

// Proof request lifecycle states. Submission and enqueueing are one
// atomic write, so a request enters the store already queued.
const (
	StatusQueued    = "queued"
	StatusProving   = "proving"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// ProofRequest is a unit of work for the proving service. The witness
// travels in its canonical encoding so the request is self-contained.
type ProofRequest struct {
	ID        string          `json:"id"`
	CircuitID types.CircuitID `json:"circuitId"`
	Backend   string          `json:"backend"`
	Witness   types.HexBytes  `json:"witness"`
	Status    string          `json:"status"`
	Attempts  uint32          `json:"attempts"`
	Reason    string          `json:"reason,omitempty"`
	CreatedAt int64           `json:"createdAt"`
}

// Proof is a completed proof artifact, stored under the id of the
// request that produced it.
type Proof struct {
	RequestID    string          `json:"requestId"`
	CircuitID    types.CircuitID `json:"circuitId"`
	Backend      string          `json:"backend"`
	Proof        types.HexBytes  `json:"proof"`
	PublicInputs types.HexBytes  `json:"publicInputs"`
	CreatedAt    int64           `json:"createdAt"`
}

// PushProofRequest creates a new queued request for the given circuit
// and encoded witness, and returns its id.
func (s *Storage) PushProofRequest(circuitID types.CircuitID, backend string, encodedWitness []byte) (string, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	req := &ProofRequest{
		ID:        uuid.New().String(),
		CircuitID: circuitID,
		Backend:   backend,
		Witness:   encodedWitness,
		Status:    StatusQueued,
		CreatedAt: time.Now().Unix(),
	}
	if err := s.setArtifact(proofRequestPrefix, []byte(req.ID), req); err != nil {
		return "", fmt.Errorf("push proof request: %w", err)
	}
	return req.ID, nil
}

// NextProofRequest returns the next unreserved queued request and
// reserves it for the caller. It returns ErrNoMoreElements when every
// request is reserved or the queue is empty.
func (s *Storage) NextProofRequest() (*ProofRequest, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	rd := prefixeddb.NewPrefixedReader(s.db, proofRequestPrefix)
	var req *ProofRequest
	if err := rd.Iterate(nil, func(k, v []byte) bool {
		if s.isReserved(proofReservPrefix, k) {
			return true
		}
		var r ProofRequest
		if err := decodeArtifact(v, &r); err != nil {
			return true
		}
		if r.Status != StatusQueued {
			return true
		}
		req = &r
		return false
	}); err != nil {
		return nil, fmt.Errorf("iterate proof requests: %w", err)
	}
	if req == nil {
		return nil, ErrNoMoreElements
	}
	if err := s.setReservation(proofReservPrefix, []byte(req.ID)); err != nil {
		return nil, fmt.Errorf("reserve proof request: %w", err)
	}
	return req, nil
}

// ProofRequestByID returns a request regardless of its reservation
// state.
func (s *Storage) ProofRequestByID(id string) (*ProofRequest, error) {
	var req ProofRequest
	if err := s.getArtifact(proofRequestPrefix, []byte(id), &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// UpdateProofRequest persists a modified request. The caller must hold
// the reservation.
func (s *Storage) UpdateProofRequest(req *ProofRequest) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	return s.setArtifact(proofRequestPrefix, []byte(req.ID), req)
}

// MarkProofRequestDone stores the finished proof, marks the request
// completed and drops its reservation. The request stays in the store
// for inspection, like failed ones.
func (s *Storage) MarkProofRequestDone(req *ProofRequest, proof *Proof) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	if err := s.setArtifact(proofPrefix, []byte(req.ID), proof); err != nil {
		return fmt.Errorf("store proof: %w", err)
	}
	req.Status = StatusCompleted
	if err := s.setArtifact(proofRequestPrefix, []byte(req.ID), req); err != nil {
		return fmt.Errorf("update proof request: %w", err)
	}
	if err := s.deleteArtifact(proofReservPrefix, []byte(req.ID)); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete reservation: %w", err)
	}
	return nil
}

// FailProofRequest records a terminal failure. The request stays in
// the store for inspection but is never picked up again.
func (s *Storage) FailProofRequest(req *ProofRequest, reason string) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	req.Status = StatusFailed
	req.Reason = reason
	if err := s.setArtifact(proofRequestPrefix, []byte(req.ID), req); err != nil {
		return err
	}
	if err := s.deleteArtifact(proofReservPrefix, []byte(req.ID)); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// ReleaseProofRequest drops the reservation so another worker can retry
// the request. The attempt counter is persisted.
func (s *Storage) ReleaseProofRequest(req *ProofRequest) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	req.Status = StatusQueued
	req.Attempts++
	if err := s.setArtifact(proofRequestPrefix, []byte(req.ID), req); err != nil {
		return err
	}
	if err := s.deleteArtifact(proofReservPrefix, []byte(req.ID)); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// CancelProofRequest marks a request cancelled. Best effort: a request
// already reserved by a worker may still complete.
func (s *Storage) CancelProofRequest(id string) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	var req ProofRequest
	if err := s.getArtifact(proofRequestPrefix, []byte(id), &req); err != nil {
		return err
	}
	if req.Status == StatusCompleted || req.Status == StatusFailed {
		return fmt.Errorf("request %s is already terminal (%s)", id, req.Status)
	}
	req.Status = StatusCancelled
	return s.setArtifact(proofRequestPrefix, []byte(id), &req)
}

// ProofByRequestID returns the stored proof for a completed request.
func (s *Storage) ProofByRequestID(id string) (*Proof, error) {
	var p Proof
	if err := s.getArtifact(proofPrefix, []byte(id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// PendingProofRequests counts requests that are still queued and
// unreserved. Used by the service to decide when to idle.
func (s *Storage) PendingProofRequests() int {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	rd := prefixeddb.NewPrefixedReader(s.db, proofRequestPrefix)
	count := 0
	_ = rd.Iterate(nil, func(k, v []byte) bool {
		if s.isReserved(proofReservPrefix, k) {
			return true
		}
		var r ProofRequest
		if err := decodeArtifact(v, &r); err != nil {
			return true
		}
		if r.Status == StatusQueued {
			count++
		}
		return true
	})
	return count
}
