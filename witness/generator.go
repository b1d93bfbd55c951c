package witness

import (
	"encoding/binary"
	"fmt"

	"go.vocdoni.io/dvote/db"

	"github.com/causality-fw/causality/codec"
	"github.com/causality-fw/causality/machine"
	"github.com/causality-fw/causality/smt"
	"github.com/causality-fw/causality/types"
)

// Generator extracts witnesses from completed runs. The database backs
// the trace commitment tree; each trace is committed under a namespace
// derived from its own prefix hash, so generation is idempotent and
// identical traces produce byte-identical witnesses.
type Generator struct {
	db db.Database
}

// NewGenerator returns a generator committing trace trees to the given
// database.
func NewGenerator(database db.Database) *Generator {
	return &Generator{db: database}
}

// FromRun builds the witness of a completed run: the trace root over
// the event sequence, and one private read per consumed resource
// proving its nullifier against the final nullifier set.
func (g *Generator) FromRun(m *machine.Machine, programID types.ProgramID, result *machine.Result) (*Witness, error) {
	traceRoot, err := g.commitTrace(result.Trace)
	if err != nil {
		return nil, err
	}
	w := &Witness{
		ProgramID:        programID,
		InitialStateRoot: result.InitialStateRoot,
		FinalStateRoot:   result.FinalStateRoot,
		TraceRoot:        traceRoot,
	}
	for _, ev := range result.Trace.Events() {
		if !ev.IsConsumed() {
			continue
		}
		opening, err := m.NullifierOpening(ev.Nullifier)
		if err != nil {
			return nil, fmt.Errorf("witness: nullifier opening for %s: %w", ev.Nullifier.Hex(), err)
		}
		w.PrivateReads = append(w.PrivateReads, PrivateRead{
			Key:     ev.Nullifier.Bytes(),
			Value:   opening.Value,
			Opening: opening,
		})
	}
	return w, nil
}

// commitTrace inserts every event into a tree keyed by its LE-encoded
// index and returns the root.
func (g *Generator) commitTrace(trace *machine.Trace) (types.Hash, error) {
	prefix := append([]byte("tw/"), trace.PrefixHash().Bytes()[:8]...)
	tree, err := smt.New(g.db, prefix)
	if err != nil {
		return types.Hash{}, err
	}
	for i, ev := range trace.Events() {
		key := make([]byte, 8)
		binary.LittleEndian.PutUint64(key, uint64(i))
		if err := tree.Set(key, codec.Encode(ev)); err != nil {
			return types.Hash{}, fmt.Errorf("witness: commit event %d: %w", i, err)
		}
	}
	return tree.Root()
}
