package circuit

import (
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/google/go-cmp/cmp"

	"github.com/causality-fw/causality/crypto/hash"
	"github.com/causality-fw/causality/types"
	"github.com/causality-fw/causality/witness"
)

func testWitness() *witness.Witness {
	h := hash.Default()
	return &witness.Witness{
		ProgramID:        types.ProgramID(h.Sum([]byte("program"))),
		InitialStateRoot: h.Sum([]byte("initial")),
		FinalStateRoot:   h.Sum([]byte("final")),
		TraceRoot:        h.Sum([]byte("trace")),
	}
}

func TestCircuitID(t *testing.T) {
	c := qt.New(t)

	h := hash.Default()
	programID := types.ProgramID(h.Sum([]byte("program")))

	id := ReferenceID(h, programID)
	c.Assert(id, qt.Equals, ReferenceID(h, programID))
	c.Assert(id, qt.Not(qt.Equals), ReferenceID(h, types.ProgramID(h.Sum([]byte("other")))))

	// A different constraint set gives a different circuit.
	otherSet := h.Sum([]byte("some other constraint set"))
	c.Assert(ID(h, programID, otherSet), qt.Not(qt.Equals), id)
}

func TestCommitmentDeterministic(t *testing.T) {
	c := qt.New(t)

	w := testWitness()
	digest := ReadsDigest(w)
	a, err := Commit(w, digest)
	c.Assert(err, qt.IsNil)
	b, err := Commit(w, digest)
	c.Assert(err, qt.IsNil)
	c.Assert(a.Cmp(b), qt.Equals, 0)

	// The commitment binds every root.
	w2 := testWitness()
	w2.TraceRoot = hash.Default().Sum([]byte("different trace"))
	other, err := Commit(w2, ReadsDigest(w2))
	c.Assert(err, qt.IsNil)
	c.Assert(a.Cmp(other), qt.Not(qt.Equals), 0)
}

func TestAssignmentMatchesPublic(t *testing.T) {
	c := qt.New(t)

	w := testWitness()
	assignment, err := Assignment(w)
	c.Assert(err, qt.IsNil)

	commitment, err := Commit(w, ReadsDigest(w))
	c.Assert(err, qt.IsNil)
	pub := PublicAssignment(w.Public(types.Hash{}), commitment)

	bigIntEquals := qt.CmpEquals(cmp.Comparer(func(a, b *big.Int) bool { return a.Cmp(b) == 0 }))
	c.Assert(assignment.Commitment, bigIntEquals, pub.Commitment)
	c.Assert(assignment.ProgramID, bigIntEquals, pub.ProgramID)
}
