package machine

import (
	"fmt"

	"github.com/causality-fw/causality/codec"
	"github.com/causality-fw/causality/crypto/hash"
	"github.com/causality-fw/causality/types"
)

// Trace event kind tags, also the canonical enum encoding tags.
const (
	evWrote byte = iota
	evConsumed
	evProduced
	evEffect
	evConstraintChecked
)

// TraceEvent is one observable step of an execution. Every event
// carries the prefix hash of the trace up to and including itself, so
// any prefix is self-authenticating.
type TraceEvent struct {
	// Kind is one of the ev* tags.
	Kind byte
	// Reg is set for Wrote events.
	Reg RegisterID
	// ValueHash is the content hash of the written value (Wrote).
	ValueHash types.Hash
	// Resource is set for Consumed and Produced events.
	Resource types.ResourceID
	// Nullifier is set for Consumed events.
	Nullifier types.NullifierID
	// Tag is the effect operation tag (Effect).
	Tag Symbol
	// ArgsHash is the content hash of the effect arguments (Effect).
	ArgsHash types.Hash
	// ResultHash is the content hash of the effect result (Effect).
	ResultHash types.Hash
	// ExprHash identifies the checked constraint (ConstraintChecked).
	ExprHash types.Hash
	// Outcome is the constraint evaluation result (ConstraintChecked).
	Outcome bool
	// PrefixHash chains the trace: H(prev_prefix || encode(event body)).
	PrefixHash types.Hash
}

// encodeBody writes the event without its prefix hash; the prefix hash
// is computed over this encoding.
func (ev *TraceEvent) encodeBody(e *codec.Encoder) {
	e.WriteTag(ev.Kind)
	switch ev.Kind {
	case evWrote:
		e.WriteUint32(uint32(ev.Reg))
		e.WriteHash(ev.ValueHash)
	case evConsumed:
		e.WriteHash(types.Hash(ev.Resource))
		e.WriteHash(types.Hash(ev.Nullifier))
	case evProduced:
		e.WriteHash(types.Hash(ev.Resource))
	case evEffect:
		e.WriteString(string(ev.Tag))
		e.WriteHash(ev.ArgsHash)
		e.WriteHash(ev.ResultHash)
	case evConstraintChecked:
		e.WriteHash(ev.ExprHash)
		e.WriteBool(ev.Outcome)
	}
}

// EncodeTo implements codec.Encodable.
func (ev *TraceEvent) EncodeTo(e *codec.Encoder) {
	ev.encodeBody(e)
	e.WriteHash(ev.PrefixHash)
}

// DecodeTraceEvent decodes one trace event.
func DecodeTraceEvent(d *codec.Decoder) (*TraceEvent, error) {
	kind, err := d.ReadTag()
	if err != nil {
		return nil, err
	}
	ev := &TraceEvent{Kind: kind}
	switch kind {
	case evWrote:
		reg, err := d.ReadUint32()
		if err != nil {
			return nil, err
		}
		ev.Reg = RegisterID(reg)
		if ev.ValueHash, err = d.ReadHash(); err != nil {
			return nil, err
		}
	case evConsumed:
		res, err := d.ReadHash()
		if err != nil {
			return nil, err
		}
		ev.Resource = types.ResourceID(res)
		nul, err := d.ReadHash()
		if err != nil {
			return nil, err
		}
		ev.Nullifier = types.NullifierID(nul)
	case evProduced:
		res, err := d.ReadHash()
		if err != nil {
			return nil, err
		}
		ev.Resource = types.ResourceID(res)
	case evEffect:
		tag, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		ev.Tag = Symbol(tag)
		if ev.ArgsHash, err = d.ReadHash(); err != nil {
			return nil, err
		}
		if ev.ResultHash, err = d.ReadHash(); err != nil {
			return nil, err
		}
	case evConstraintChecked:
		if ev.ExprHash, err = d.ReadHash(); err != nil {
			return nil, err
		}
		if ev.Outcome, err = d.ReadBool(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("machine: unknown trace event tag %#x", kind)
	}
	if ev.PrefixHash, err = d.ReadHash(); err != nil {
		return nil, err
	}
	return ev, nil
}

// IsWrote reports whether the event is a register write.
func (ev *TraceEvent) IsWrote() bool { return ev.Kind == evWrote }

// IsConsumed reports whether the event is a resource consumption.
func (ev *TraceEvent) IsConsumed() bool { return ev.Kind == evConsumed }

// IsProduced reports whether the event is a resource creation.
func (ev *TraceEvent) IsProduced() bool { return ev.Kind == evProduced }

// IsEffect reports whether the event is an effect invocation.
func (ev *TraceEvent) IsEffect() bool { return ev.Kind == evEffect }

// IsConstraint reports whether the event is a constraint check.
func (ev *TraceEvent) IsConstraint() bool { return ev.Kind == evConstraintChecked }

// Trace is the append-only, totally ordered record of an execution.
type Trace struct {
	events []*TraceEvent
	hasher hash.Hasher
	prefix types.Hash
}

// NewTrace returns an empty trace chained with the given hasher.
func NewTrace(h hash.Hasher) *Trace {
	return &Trace{hasher: h}
}

// append chains and records an event.
func (t *Trace) append(ev *TraceEvent) {
	e := codec.NewEncoder()
	e.WriteHash(t.prefix)
	ev.encodeBody(e)
	ev.PrefixHash = t.hasher.Sum(e.Bytes())
	t.prefix = ev.PrefixHash
	t.events = append(t.events, ev)
}

// Wrote records a register write.
func (t *Trace) Wrote(reg RegisterID, valueHash types.Hash) {
	t.append(&TraceEvent{Kind: evWrote, Reg: reg, ValueHash: valueHash})
}

// Consumed records a resource retirement.
func (t *Trace) Consumed(id types.ResourceID, nullifier types.NullifierID) {
	t.append(&TraceEvent{Kind: evConsumed, Resource: id, Nullifier: nullifier})
}

// Produced records a resource creation.
func (t *Trace) Produced(id types.ResourceID) {
	t.append(&TraceEvent{Kind: evProduced, Resource: id})
}

// Effect records an effect invocation and its result.
func (t *Trace) Effect(tag Symbol, argsHash, resultHash types.Hash) {
	t.append(&TraceEvent{Kind: evEffect, Tag: tag, ArgsHash: argsHash, ResultHash: resultHash})
}

// ConstraintChecked records a constraint evaluation.
func (t *Trace) ConstraintChecked(exprHash types.Hash, outcome bool) {
	t.append(&TraceEvent{Kind: evConstraintChecked, ExprHash: exprHash, Outcome: outcome})
}

// Events returns the ordered events.
func (t *Trace) Events() []*TraceEvent { return t.events }

// Len returns the number of events.
func (t *Trace) Len() int { return len(t.events) }

// PrefixHash returns the hash chaining the whole trace so far.
func (t *Trace) PrefixHash() types.Hash { return t.prefix }

// HasherName returns the name of the hash function chaining the trace.
func (t *Trace) HasherName() string { return t.hasher.Name() }
