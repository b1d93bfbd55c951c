package smt

import (
	"github.com/vocdoni/arbo"

	"github.com/causality-fw/causality/codec"
	"github.com/causality-fw/causality/types"
)

// Opening is an authenticated (non-)membership proof: Key and Value
// hashed through the Siblings path produce Root. Siblings are in arbo's
// packed form.
type Opening struct {
	Root      types.Hash
	Key       types.HexBytes
	Value     types.HexBytes
	Siblings  types.HexBytes
	Existence bool
}

// Verify checks the opening against its own root.
func (o *Opening) Verify() (bool, error) {
	return o.VerifyAgainst(o.Root)
}

// VerifyAgainst checks the opening against the given root. Exclusion
// proofs cannot be checked leaf-wise, so for them only root equality is
// verified.
func (o *Opening) VerifyAgainst(root types.Hash) (bool, error) {
	if o.Root != root {
		return false, nil
	}
	if !o.Existence {
		return true, nil
	}
	return arbo.CheckProof(hashFunc, o.Key, o.Value, o.Root.Bytes(), o.Siblings)
}

// EncodeTo implements codec.Encodable.
func (o *Opening) EncodeTo(e *codec.Encoder) {
	e.WriteHash(o.Root)
	e.WriteBytes(o.Key)
	e.WriteBytes(o.Value)
	e.WriteBytes(o.Siblings)
	e.WriteBool(o.Existence)
}

// DecodeOpening decodes an Opening from its canonical encoding.
func DecodeOpening(d *codec.Decoder) (*Opening, error) {
	root, err := d.ReadHash()
	if err != nil {
		return nil, err
	}
	key, err := d.ReadBytes()
	if err != nil {
		return nil, err
	}
	value, err := d.ReadBytes()
	if err != nil {
		return nil, err
	}
	siblings, err := d.ReadBytes()
	if err != nil {
		return nil, err
	}
	existence, err := d.ReadBool()
	if err != nil {
		return nil, err
	}
	return &Opening{
		Root:      root,
		Key:       key,
		Value:     value,
		Siblings:  siblings,
		Existence: existence,
	}, nil
}
