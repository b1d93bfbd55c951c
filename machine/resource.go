package machine

import (
	"github.com/causality-fw/causality/codec"
	"github.com/causality-fw/causality/crypto/hash"
	"github.com/causality-fw/causality/types"
)

// Resource is a linear, content-addressed object. Its ID is the hash of
// its canonical encoding excluding the ID field, so the identity is
// fully determined by the remaining fields.
type Resource struct {
	ID            types.ResourceID
	ResourceType  Symbol
	Quantity      uint64
	Domain        types.DomainID
	Payload       Value
	NullifierSeed [32]byte
}

// encodeBody writes every field except ID, in declaration order.
func (r *Resource) encodeBody(e *codec.Encoder) {
	e.WriteString(string(r.ResourceType))
	e.WriteUint64(r.Quantity)
	e.WriteHash(types.Hash(r.Domain))
	r.Payload.EncodeTo(e)
	e.WriteFixed(r.NullifierSeed[:])
}

// EncodeTo implements codec.Encodable; the ID is included so stored
// resources round-trip.
func (r *Resource) EncodeTo(e *codec.Encoder) {
	e.WriteHash(types.Hash(r.ID))
	r.encodeBody(e)
}

// DecodeResource decodes a resource from its canonical encoding.
func DecodeResource(d *codec.Decoder) (*Resource, error) {
	id, err := d.ReadHash()
	if err != nil {
		return nil, err
	}
	rt, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	qty, err := d.ReadUint64()
	if err != nil {
		return nil, err
	}
	domain, err := d.ReadHash()
	if err != nil {
		return nil, err
	}
	payload, err := DecodeValue(d)
	if err != nil {
		return nil, err
	}
	seed, err := d.ReadFixed(32)
	if err != nil {
		return nil, err
	}
	r := &Resource{
		ID:           types.ResourceID(id),
		ResourceType: Symbol(rt),
		Quantity:     qty,
		Domain:       types.DomainID(domain),
		Payload:      payload,
	}
	copy(r.NullifierSeed[:], seed)
	return r, nil
}

// ComputeID derives the resource identity from its fields and stores it
// in ID.
func (r *Resource) ComputeID(h hash.Hasher) types.ResourceID {
	e := codec.NewEncoder()
	r.encodeBody(e)
	r.ID = types.ResourceID(hash.ContentID(h, e.Bytes()))
	return r.ID
}

// Nullifier derives the unique consumption token of a resource:
// H(resource_id || nullifier_seed || "nullifier").
func (r *Resource) Nullifier(h hash.Hasher) types.NullifierID {
	preimage := make([]byte, 0, types.HashSize+32+len(types.NullifierDomainTag))
	preimage = append(preimage, r.ID.Bytes()...)
	preimage = append(preimage, r.NullifierSeed[:]...)
	preimage = append(preimage, types.NullifierDomainTag...)
	return types.NullifierID(h.Sum(preimage))
}
