// Package witness turns completed execution traces into the
// canonically serialized witnesses the proof pipeline consumes.
package witness

import (
	"errors"
	"fmt"

	"github.com/causality-fw/causality/codec"
	"github.com/causality-fw/causality/crypto/hash"
	"github.com/causality-fw/causality/smt"
	"github.com/causality-fw/causality/types"
)

// ErrMalformedWitness is returned for structurally invalid witnesses.
var ErrMalformedWitness = errors.New("malformed witness")

// PrivateRead is one authenticated state read the trace depended on.
type PrivateRead struct {
	Key     types.HexBytes
	Value   types.HexBytes
	Opening *smt.Opening
}

// EncodeTo implements codec.Encodable.
func (p *PrivateRead) EncodeTo(e *codec.Encoder) {
	e.WriteBytes(p.Key)
	e.WriteBytes(p.Value)
	p.Opening.EncodeTo(e)
}

func decodePrivateRead(d *codec.Decoder) (PrivateRead, error) {
	key, err := d.ReadBytes()
	if err != nil {
		return PrivateRead{}, err
	}
	value, err := d.ReadBytes()
	if err != nil {
		return PrivateRead{}, err
	}
	opening, err := smt.DecodeOpening(d)
	if err != nil {
		return PrivateRead{}, err
	}
	return PrivateRead{Key: key, Value: value, Opening: opening}, nil
}

// Witness is everything a proof is generated from: the program
// identity, the state roots bracketing the run, the trace commitment,
// and the private reads backing it.
type Witness struct {
	ProgramID        types.ProgramID
	InitialStateRoot types.Hash
	FinalStateRoot   types.Hash
	TraceRoot        types.Hash
	PrivateReads     []PrivateRead
}

// EncodeTo implements codec.Encodable.
func (w *Witness) EncodeTo(e *codec.Encoder) {
	e.WriteHash(types.Hash(w.ProgramID))
	e.WriteHash(w.InitialStateRoot)
	e.WriteHash(w.FinalStateRoot)
	e.WriteHash(w.TraceRoot)
	e.WriteUint32(uint32(len(w.PrivateReads)))
	for i := range w.PrivateReads {
		w.PrivateReads[i].EncodeTo(e)
	}
}

// Decode decodes a witness from its canonical encoding.
func Decode(d *codec.Decoder) (*Witness, error) {
	w := &Witness{}
	pid, err := d.ReadHash()
	if err != nil {
		return nil, err
	}
	w.ProgramID = types.ProgramID(pid)
	if w.InitialStateRoot, err = d.ReadHash(); err != nil {
		return nil, err
	}
	if w.FinalStateRoot, err = d.ReadHash(); err != nil {
		return nil, err
	}
	if w.TraceRoot, err = d.ReadHash(); err != nil {
		return nil, err
	}
	n, err := d.ReadUint32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < n; i++ {
		pr, err := decodePrivateRead(d)
		if err != nil {
			return nil, err
		}
		w.PrivateReads = append(w.PrivateReads, pr)
	}
	return w, nil
}

// Hash returns the content hash of the witness encoding.
func (w *Witness) Hash(h hash.Hasher) types.Hash {
	return h.Sum(codec.Encode(w))
}

// Validate checks the structural invariants: identities present, roots
// nonnull, and every private read's opening internally consistent.
func (w *Witness) Validate() error {
	if w.ProgramID.IsZero() {
		return fmt.Errorf("%w: null program id", ErrMalformedWitness)
	}
	for i := range w.PrivateReads {
		pr := &w.PrivateReads[i]
		if len(pr.Key) == 0 {
			return fmt.Errorf("%w: private read %d has no key", ErrMalformedWitness, i)
		}
		if pr.Opening == nil {
			return fmt.Errorf("%w: private read %d has no opening", ErrMalformedWitness, i)
		}
		ok, err := pr.Opening.Verify()
		if err != nil {
			return fmt.Errorf("%w: private read %d: %v", ErrMalformedWitness, i, err)
		}
		if !ok {
			return fmt.Errorf("%w: private read %d opening does not verify", ErrMalformedWitness, i)
		}
	}
	return nil
}

// PublicInputs is what a verifier reconstructs without the witness.
type PublicInputs struct {
	ProgramID           types.ProgramID
	InitialStateRoot    types.Hash
	FinalStateRoot      types.Hash
	DeclaredOutputsRoot types.Hash
}

// EncodeTo implements codec.Encodable.
func (p *PublicInputs) EncodeTo(e *codec.Encoder) {
	e.WriteHash(types.Hash(p.ProgramID))
	e.WriteHash(p.InitialStateRoot)
	e.WriteHash(p.FinalStateRoot)
	e.WriteHash(p.DeclaredOutputsRoot)
}

// DecodePublicInputs reads PublicInputs from the decoder.
func DecodePublicInputs(d *codec.Decoder) (*PublicInputs, error) {
	var p PublicInputs
	pid, err := d.ReadHash()
	if err != nil {
		return nil, err
	}
	p.ProgramID = types.ProgramID(pid)
	if p.InitialStateRoot, err = d.ReadHash(); err != nil {
		return nil, err
	}
	if p.FinalStateRoot, err = d.ReadHash(); err != nil {
		return nil, err
	}
	if p.DeclaredOutputsRoot, err = d.ReadHash(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Hash returns the content hash of the public inputs encoding.
func (p *PublicInputs) Hash(h hash.Hasher) types.Hash {
	return h.Sum(codec.Encode(p))
}

// Public derives the public inputs matching a witness.
func (w *Witness) Public(declaredOutputsRoot types.Hash) *PublicInputs {
	return &PublicInputs{
		ProgramID:           w.ProgramID,
		InitialStateRoot:    w.InitialStateRoot,
		FinalStateRoot:      w.FinalStateRoot,
		DeclaredOutputsRoot: declaredOutputsRoot,
	}
}
