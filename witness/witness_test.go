package witness

import (
	"context"
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"
	"go.vocdoni.io/dvote/db/metadb"

	"github.com/causality-fw/causality/codec"
	"github.com/causality-fw/causality/crypto/hash"
	"github.com/causality-fw/causality/machine"
	"github.com/causality-fw/causality/types"
)

// lifecycleRun produces and consumes one resource, so the trace has a
// Produced, a Consumed, and a private read to witness.
func lifecycleRun(t *testing.T) (*machine.Machine, types.ProgramID, *machine.Result) {
	t.Helper()
	c := qt.New(t)

	var seed [32]byte
	copy(seed[:], []byte("witness seed"))
	program := &machine.Program{
		Instructions: []machine.Instruction{
			machine.Const{Rd: 0, Lit: machine.Unit{}},
			machine.Produce{Rd: 1, ResourceType: "coin", Quantity: 5, Seed: seed, PayloadReg: 0},
			machine.Consume{Rs: 1, RdPayload: 2, RdNullifier: 3},
			machine.Halt{},
		},
	}

	m, err := machine.New(metadb.NewTest(t), program, machine.RunOptions{})
	c.Assert(err, qt.IsNil)
	result, err := m.Run(context.Background())
	c.Assert(err, qt.IsNil)
	return m, program.ID(hash.Default()), result
}

func TestWitnessFromRun(t *testing.T) {
	c := qt.New(t)

	m, programID, result := lifecycleRun(t)
	g := NewGenerator(metadb.NewTest(t))

	w, err := g.FromRun(m, programID, result)
	c.Assert(err, qt.IsNil)
	c.Assert(w.ProgramID, qt.Equals, programID)
	c.Assert(w.InitialStateRoot, qt.Equals, result.InitialStateRoot)
	c.Assert(w.FinalStateRoot, qt.Equals, result.FinalStateRoot)
	c.Assert(w.TraceRoot.IsZero(), qt.IsFalse)
	c.Assert(w.PrivateReads, qt.HasLen, 1)
	c.Assert(w.Validate(), qt.IsNil)
}

// Identical traces yield byte-identical witnesses.
func TestWitnessDeterministic(t *testing.T) {
	c := qt.New(t)

	m, programID, result := lifecycleRun(t)

	a, err := NewGenerator(metadb.NewTest(t)).FromRun(m, programID, result)
	c.Assert(err, qt.IsNil)
	b, err := NewGenerator(metadb.NewTest(t)).FromRun(m, programID, result)
	c.Assert(err, qt.IsNil)
	c.Assert(codec.Encode(a), qt.DeepEquals, codec.Encode(b))
}

func TestWitnessRoundTrip(t *testing.T) {
	c := qt.New(t)

	m, programID, result := lifecycleRun(t)
	w, err := NewGenerator(metadb.NewTest(t)).FromRun(m, programID, result)
	c.Assert(err, qt.IsNil)

	enc := codec.Encode(w)
	d := codec.NewDecoder(enc)
	decoded, err := Decode(d)
	c.Assert(err, qt.IsNil)
	c.Assert(d.Finish(), qt.IsNil)
	c.Assert(decoded, qt.DeepEquals, w)
}

func TestValidateRejectsMalformed(t *testing.T) {
	c := qt.New(t)

	m, programID, result := lifecycleRun(t)
	w, err := NewGenerator(metadb.NewTest(t)).FromRun(m, programID, result)
	c.Assert(err, qt.IsNil)

	// Null program id.
	bad := *w
	bad.ProgramID = types.ProgramID{}
	c.Assert(errors.Is(bad.Validate(), ErrMalformedWitness), qt.IsTrue)

	// Tampered opening root.
	bad = *w
	reads := make([]PrivateRead, len(w.PrivateReads))
	copy(reads, w.PrivateReads)
	tampered := *reads[0].Opening
	tampered.Root = hash.Default().Sum([]byte("wrong root"))
	reads[0].Opening = &tampered
	bad.PrivateReads = reads
	c.Assert(errors.Is(bad.Validate(), ErrMalformedWitness), qt.IsTrue)
}

// Different traces commit to different roots.
func TestTraceRootBindsEvents(t *testing.T) {
	c := qt.New(t)

	m, programID, result := lifecycleRun(t)
	w1, err := NewGenerator(metadb.NewTest(t)).FromRun(m, programID, result)
	c.Assert(err, qt.IsNil)

	other := &machine.Program{
		Instructions: []machine.Instruction{
			machine.Const{Rd: 0, Lit: machine.Int(1)},
			machine.Halt{},
		},
	}
	m2, err := machine.New(metadb.NewTest(t), other, machine.RunOptions{})
	c.Assert(err, qt.IsNil)
	result2, err := m2.Run(context.Background())
	c.Assert(err, qt.IsNil)
	w2, err := NewGenerator(metadb.NewTest(t)).FromRun(m2, other.ID(hash.Default()), result2)
	c.Assert(err, qt.IsNil)

	c.Assert(w1.TraceRoot, qt.Not(qt.Equals), w2.TraceRoot)
}

func TestPublicInputs(t *testing.T) {
	c := qt.New(t)

	m, programID, result := lifecycleRun(t)
	w, err := NewGenerator(metadb.NewTest(t)).FromRun(m, programID, result)
	c.Assert(err, qt.IsNil)

	outputsRoot := hash.Default().Sum([]byte("outputs"))
	pub := w.Public(outputsRoot)
	c.Assert(pub.ProgramID, qt.Equals, w.ProgramID)
	c.Assert(pub.DeclaredOutputsRoot, qt.Equals, outputsRoot)
	c.Assert(pub.Hash(hash.Default()), qt.Equals, pub.Hash(hash.Default()))
}
