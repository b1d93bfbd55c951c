package prover

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/causality-fw/causality/circuit"
	"github.com/causality-fw/causality/codec"
	"github.com/causality-fw/causality/crypto/hash"
	"github.com/causality-fw/causality/log"
	"github.com/causality-fw/causality/storage"
	"github.com/causality-fw/causality/types"
	"github.com/causality-fw/causality/witness"
)

const (
	defaultWorkers      = 2
	defaultMaxAttempts  = 3
	defaultPollInterval = time.Second
)

// ServiceOptions tune the proving service. Zero values select the
// defaults.
type ServiceOptions struct {
	// Workers is the number of concurrent proving workers.
	Workers int
	// MaxAttempts bounds retries of transient backend failures.
	MaxAttempts uint32
	// PollInterval is how long an idle worker sleeps between queue
	// checks.
	PollInterval time.Duration
}

// Service drains the proof request queue. Each worker picks a reserved
// request, proves it with the requested backend and stores the result.
// Transient failures requeue the request up to MaxAttempts; everything
// else fails it terminally.
type Service struct {
	stg      *storage.Storage
	registry *Registry
	opts     ServiceOptions

	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewService creates a proving service over the given storage and
// backend registry.
func NewService(stg *storage.Storage, registry *Registry, opts ServiceOptions) *Service {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	return &Service{stg: stg, registry: registry, opts: opts}
}

// Submit encodes the witness, derives its circuit id and queues a
// proof request for the named backend. It returns the request id.
func (s *Service) Submit(w *witness.Witness, backend string) (string, error) {
	if _, err := s.registry.Backend(backend); err != nil {
		return "", err
	}
	if err := w.Validate(); err != nil {
		return "", err
	}
	circuitID := circuit.ReferenceID(hash.Default(), w.ProgramID)
	id, err := s.stg.PushProofRequest(circuitID, backend, codec.Encode(w))
	if err != nil {
		return "", err
	}
	log.Debugw("proof request submitted", "request", id, "backend", backend, "circuit", circuitID.String())
	return id, nil
}

// Cancel marks a pending request cancelled. Best effort: a request
// already being proved may still complete.
func (s *Service) Cancel(id string) error {
	return s.stg.CancelProofRequest(id)
}

// Start launches the worker pool. It returns immediately; workers run
// until the context is cancelled or Stop is called.
func (s *Service) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	s.group, ctx = errgroup.WithContext(ctx)
	for i := 0; i < s.opts.Workers; i++ {
		s.group.Go(func() error {
			s.worker(ctx)
			return nil
		})
	}
	log.Infow("proving service started", "workers", s.opts.Workers, "backends", s.registry.Names())
	return nil
}

// Stop cancels the workers and waits for them to drain.
func (s *Service) Stop() error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	return s.group.Wait()
}

func (s *Service) worker(ctx context.Context) {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		req, err := s.stg.NextProofRequest()
		if err != nil {
			if !errors.Is(err, storage.ErrNoMoreElements) {
				log.Errorw(err, "failed to get next proof request")
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
			continue
		}
		s.process(req)
	}
}

func (s *Service) process(req *storage.ProofRequest) {
	log.Debugw("proving request", "request", req.ID, "backend", req.Backend, "attempt", req.Attempts+1)
	startTime := time.Now()

	backend, err := s.registry.Backend(req.Backend)
	if err != nil {
		s.fail(req, err)
		return
	}

	req.Status = storage.StatusProving
	if err := s.stg.UpdateProofRequest(req); err != nil {
		log.Errorw(err, "failed to update proof request status")
	}

	w, err := decodeWitness(req.Witness)
	if err != nil {
		s.fail(req, err)
		return
	}

	proof, err := backend.Prove(req.CircuitID, w)
	if err != nil {
		if errors.Is(err, ErrBackendTransient) && req.Attempts+1 < s.opts.MaxAttempts {
			log.Warnw("transient proving failure, requeueing", "request", req.ID, "error", err.Error())
			if err := s.stg.ReleaseProofRequest(req); err != nil {
				log.Errorw(err, "failed to release proof request")
			}
			return
		}
		s.fail(req, err)
		return
	}

	// Requests do not carry intent output declarations yet, so the
	// declared outputs root is null.
	pub := w.Public(types.Hash{})
	stored := &storage.Proof{
		RequestID:    req.ID,
		CircuitID:    proof.CircuitID,
		Backend:      proof.Backend,
		Proof:        codec.Encode(proof),
		PublicInputs: codec.Encode(pub),
		CreatedAt:    time.Now().Unix(),
	}
	if err := s.stg.MarkProofRequestDone(req, stored); err != nil {
		log.Errorw(err, "failed to store completed proof")
		return
	}
	log.Infow("proof completed", "request", req.ID, "backend", req.Backend, "took", time.Since(startTime).String())
}

func (s *Service) fail(req *storage.ProofRequest, cause error) {
	log.Warnw("proof request failed", "request", req.ID, "error", cause.Error())
	if err := s.stg.FailProofRequest(req, cause.Error()); err != nil {
		log.Errorw(err, "failed to mark proof request as failed")
	}
}

func decodeWitness(data []byte) (*witness.Witness, error) {
	d := codec.NewDecoder(data)
	w, err := witness.Decode(d)
	if err != nil {
		return nil, fmt.Errorf("decode witness: %w", err)
	}
	if err := d.Finish(); err != nil {
		return nil, fmt.Errorf("decode witness: %w", err)
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}
