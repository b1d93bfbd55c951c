package circuit

import (
	"github.com/causality-fw/causality/codec"
	"github.com/causality-fw/causality/crypto/hash"
	"github.com/causality-fw/causality/types"
)

// referenceConstraintSet names the Commitment circuit. Bump the
// version when the constraint system changes shape.
const referenceConstraintSet = "groth16/bn254/mimc-commitment/v1"

// ConstraintSetHash returns the identity of the reference constraint
// set.
func ConstraintSetHash(h hash.Hasher) types.Hash {
	return h.Sum([]byte(referenceConstraintSet))
}

// ID binds a program to the constraint set it is proved against.
func ID(h hash.Hasher, programID types.ProgramID, constraintSetHash types.Hash) types.CircuitID {
	e := codec.NewEncoder()
	e.WriteHash(types.Hash(programID))
	e.WriteHash(constraintSetHash)
	return types.CircuitID(h.Sum(e.Bytes()))
}

// ReferenceID is ID against the reference constraint set.
func ReferenceID(h hash.Hasher, programID types.ProgramID) types.CircuitID {
	return ID(h, programID, ConstraintSetHash(h))
}
