package prover

import (
	"bytes"
	"fmt"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"

	"github.com/causality-fw/causality/circuit"
	"github.com/causality-fw/causality/crypto/hash"
	"github.com/causality-fw/causality/log"
	"github.com/causality-fw/causality/types"
	"github.com/causality-fw/causality/witness"
)

// Groth16 is the reference proving backend: gnark groth16 over bn254
// against the Commitment circuit. The constraint system and keys are
// generated once on first use and reused for every proof.
type Groth16 struct {
	setupOnce sync.Once
	setupErr  error
	ccs       constraint.ConstraintSystem
	pk        groth16.ProvingKey
	vk        groth16.VerifyingKey
}

// NewGroth16 creates the backend. Setup is deferred until the first
// Prove, Verify or Health call.
func NewGroth16() *Groth16 {
	return &Groth16{}
}

// Name implements Backend.
func (g *Groth16) Name() string { return "groth16" }

func (g *Groth16) setup() error {
	g.setupOnce.Do(func() {
		log.Debugw("compiling reference constraint system")
		ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, circuit.Placeholder())
		if err != nil {
			g.setupErr = fmt.Errorf("%w: compile constraint system: %v", ErrBackendFatal, err)
			return
		}
		pk, vk, err := groth16.Setup(ccs)
		if err != nil {
			g.setupErr = fmt.Errorf("%w: groth16 setup: %v", ErrBackendFatal, err)
			return
		}
		g.ccs, g.pk, g.vk = ccs, pk, vk
		log.Infow("proving backend ready", "backend", g.Name(), "constraints", ccs.GetNbConstraints())
	})
	return g.setupErr
}

// Health implements Backend. It runs setup, so the first call is
// expensive.
func (g *Groth16) Health() error {
	return g.setup()
}

// Prove implements Backend.
func (g *Groth16) Prove(circuitID types.CircuitID, w *witness.Witness) (*Proof, error) {
	if err := g.setup(); err != nil {
		return nil, err
	}
	if want := circuit.ReferenceID(hash.Default(), w.ProgramID); circuitID != want {
		return nil, fmt.Errorf("%w: circuit %s does not bind program %s", ErrBackendFatal, circuitID, w.ProgramID)
	}
	assignment, err := circuit.Assignment(w)
	if err != nil {
		return nil, fmt.Errorf("%w: build assignment: %v", ErrBackendFatal, err)
	}
	fullWitness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("%w: build witness: %v", ErrBackendFatal, err)
	}
	proof, err := groth16.Prove(g.ccs, g.pk, fullWitness)
	if err != nil {
		return nil, fmt.Errorf("%w: groth16 prove: %v", ErrBackendTransient, err)
	}
	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("%w: serialize proof: %v", ErrBackendFatal, err)
	}
	commitment, err := circuit.Commit(w, circuit.ReadsDigest(w))
	if err != nil {
		return nil, fmt.Errorf("%w: compute commitment: %v", ErrBackendFatal, err)
	}
	return &Proof{
		Backend:    g.Name(),
		CircuitID:  circuitID,
		Data:       buf.Bytes(),
		Commitment: commitment.Bytes(),
	}, nil
}

// Verify implements Backend.
func (g *Groth16) Verify(circuitID types.CircuitID, p *Proof, pub *witness.PublicInputs) error {
	if err := g.setup(); err != nil {
		return err
	}
	if p.CircuitID != circuitID {
		return fmt.Errorf("%w: proof is for a different circuit", ErrVerificationFailed)
	}
	if want := circuit.ReferenceID(hash.Default(), pub.ProgramID); circuitID != want {
		return fmt.Errorf("%w: circuit id mismatch", ErrVerificationFailed)
	}
	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(p.Data)); err != nil {
		return fmt.Errorf("%w: decode proof: %v", ErrVerificationFailed, err)
	}
	commitment := new(big.Int).SetBytes(p.Commitment)
	pubWitness, err := frontend.NewWitness(
		circuit.PublicAssignment(pub, commitment),
		ecc.BN254.ScalarField(),
		frontend.PublicOnly(),
	)
	if err != nil {
		return fmt.Errorf("%w: build public witness: %v", ErrBackendFatal, err)
	}
	if err := groth16.Verify(proof, g.vk, pubWitness); err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	return nil
}
