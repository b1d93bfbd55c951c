// Package circuit defines the reference constraint system of the proof
// pipeline: a groth16 circuit over bn254 binding a run's public inputs
// to a MiMC commitment over its witness roots.
package circuit

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/consensys/gnark/frontend"
	stdmimc "github.com/consensys/gnark/std/hash/mimc"

	"github.com/causality-fw/causality/codec"
	"github.com/causality-fw/causality/crypto/hash"
	"github.com/causality-fw/causality/types"
	"github.com/causality-fw/causality/witness"
)

// Commitment is the reference circuit. The prover shows it knows a
// trace root and a private-reads digest whose MiMC hash together with
// the public run identity equals the public commitment.
type Commitment struct {
	ProgramID        frontend.Variable `gnark:",public"`
	InitialStateRoot frontend.Variable `gnark:",public"`
	FinalStateRoot   frontend.Variable `gnark:",public"`
	Commitment       frontend.Variable `gnark:",public"`

	TraceRoot   frontend.Variable `gnark:",secret"`
	ReadsDigest frontend.Variable `gnark:",secret"`
}

// Define implements frontend.Circuit.
func (c *Commitment) Define(api frontend.API) error {
	h, err := stdmimc.NewMiMC(api)
	if err != nil {
		return err
	}
	h.Write(c.ProgramID, c.InitialStateRoot, c.FinalStateRoot, c.TraceRoot, c.ReadsDigest)
	api.AssertIsEqual(c.Commitment, h.Sum())
	return nil
}

// Placeholder returns the circuit shape for compilation.
func Placeholder() *Commitment {
	return &Commitment{}
}

// Assignment derives the full assignment for a witness. The commitment
// is recomputed natively with the same MiMC, so assignment and circuit
// agree by construction.
func Assignment(w *witness.Witness) (*Commitment, error) {
	readsDigest := ReadsDigest(w)
	commitment, err := Commit(w, readsDigest)
	if err != nil {
		return nil, err
	}
	return &Commitment{
		ProgramID:        FieldElement(types.Hash(w.ProgramID)),
		InitialStateRoot: FieldElement(w.InitialStateRoot),
		FinalStateRoot:   FieldElement(w.FinalStateRoot),
		Commitment:       commitment,
		TraceRoot:        FieldElement(w.TraceRoot),
		ReadsDigest:      FieldElement(readsDigest),
	}, nil
}

// PublicAssignment derives the public part of the assignment for
// verification, given the commitment.
func PublicAssignment(pub *witness.PublicInputs, commitment *big.Int) *Commitment {
	return &Commitment{
		ProgramID:        FieldElement(types.Hash(pub.ProgramID)),
		InitialStateRoot: FieldElement(pub.InitialStateRoot),
		FinalStateRoot:   FieldElement(pub.FinalStateRoot),
		Commitment:       commitment,
	}
}

// ReadsDigest folds the canonical encodings of the private reads into
// one hash.
func ReadsDigest(w *witness.Witness) types.Hash {
	e := codec.NewEncoder()
	e.WriteUint32(uint32(len(w.PrivateReads)))
	for i := range w.PrivateReads {
		w.PrivateReads[i].EncodeTo(e)
	}
	return hash.Default().Sum(e.Bytes())
}

// Commit computes the native MiMC commitment matching Define.
func Commit(w *witness.Witness, readsDigest types.Hash) (*big.Int, error) {
	h := mimc.NewMiMC()
	for _, el := range []types.Hash{
		types.Hash(w.ProgramID),
		w.InitialStateRoot,
		w.FinalStateRoot,
		w.TraceRoot,
		readsDigest,
	} {
		var fe fr.Element
		fe.SetBigInt(FieldElement(el))
		b := fe.Bytes()
		if _, err := h.Write(b[:]); err != nil {
			return nil, err
		}
	}
	return new(big.Int).SetBytes(h.Sum(nil)), nil
}

// FieldElement reduces a 32-byte hash into the bn254 scalar field.
func FieldElement(h types.Hash) *big.Int {
	return new(big.Int).Mod(new(big.Int).SetBytes(h.Bytes()), fr.Modulus())
}
