package types

import "encoding/hex"

// Identifier types over the Hash byte layout. Each is a distinct named
// type: assigning a Hash to an identifier, or an identifier of one
// space to another, takes an explicit conversion. Every type carries
// the same small method set as Hash.

// EntityID identifies a generic content-addressed entity.
type EntityID Hash

// ResourceID identifies a resource by the hash of its canonical
// encoding excluding the id itself.
type ResourceID Hash

// ExprID identifies a compiled expression.
type ExprID Hash

// HandlerID identifies a content-hashed effect handler.
type HandlerID Hash

// IntentID identifies an intent.
type IntentID Hash

// TransactionID identifies a transaction.
type TransactionID Hash

// DomainID identifies an execution domain.
type DomainID Hash

// NullifierID identifies a nullifier in the nullifier set.
type NullifierID Hash

// CircuitID binds a program to the constraint set it is proved
// against: H(program_id || constraint_set_hash).
type CircuitID Hash

// ProgramID is the content hash of a compiled instruction sequence.
type ProgramID Hash

// NodeID identifies a node in a causal-dependency graph.
type NodeID Hash

// EdgeID identifies an edge in a causal-dependency graph.
type EdgeID Hash

func idHex(b []byte) string { return "0x" + hex.EncodeToString(b) }

// Bytes returns the identifier as a byte slice.
func (id EntityID) Bytes() []byte      { return id[:] }
func (id ResourceID) Bytes() []byte    { return id[:] }
func (id ExprID) Bytes() []byte        { return id[:] }
func (id HandlerID) Bytes() []byte     { return id[:] }
func (id IntentID) Bytes() []byte      { return id[:] }
func (id TransactionID) Bytes() []byte { return id[:] }
func (id DomainID) Bytes() []byte      { return id[:] }
func (id NullifierID) Bytes() []byte   { return id[:] }
func (id CircuitID) Bytes() []byte     { return id[:] }
func (id ProgramID) Bytes() []byte     { return id[:] }
func (id NodeID) Bytes() []byte        { return id[:] }
func (id EdgeID) Bytes() []byte        { return id[:] }

// IsZero reports whether the identifier is null.
func (id EntityID) IsZero() bool      { return id == EntityID{} }
func (id ResourceID) IsZero() bool    { return id == ResourceID{} }
func (id ExprID) IsZero() bool        { return id == ExprID{} }
func (id HandlerID) IsZero() bool     { return id == HandlerID{} }
func (id IntentID) IsZero() bool      { return id == IntentID{} }
func (id TransactionID) IsZero() bool { return id == TransactionID{} }
func (id DomainID) IsZero() bool      { return id == DomainID{} }
func (id NullifierID) IsZero() bool   { return id == NullifierID{} }
func (id CircuitID) IsZero() bool     { return id == CircuitID{} }
func (id ProgramID) IsZero() bool     { return id == ProgramID{} }
func (id NodeID) IsZero() bool        { return id == NodeID{} }
func (id EdgeID) IsZero() bool        { return id == EdgeID{} }

// Hex returns the 0x-prefixed hex representation.
func (id EntityID) Hex() string      { return idHex(id[:]) }
func (id ResourceID) Hex() string    { return idHex(id[:]) }
func (id ExprID) Hex() string        { return idHex(id[:]) }
func (id HandlerID) Hex() string     { return idHex(id[:]) }
func (id IntentID) Hex() string      { return idHex(id[:]) }
func (id TransactionID) Hex() string { return idHex(id[:]) }
func (id DomainID) Hex() string      { return idHex(id[:]) }
func (id NullifierID) Hex() string   { return idHex(id[:]) }
func (id CircuitID) Hex() string     { return idHex(id[:]) }
func (id ProgramID) Hex() string     { return idHex(id[:]) }
func (id NodeID) Hex() string        { return idHex(id[:]) }
func (id EdgeID) Hex() string        { return idHex(id[:]) }

// String implements fmt.Stringer.
func (id EntityID) String() string      { return id.Hex() }
func (id ResourceID) String() string    { return id.Hex() }
func (id ExprID) String() string        { return id.Hex() }
func (id HandlerID) String() string     { return id.Hex() }
func (id IntentID) String() string      { return id.Hex() }
func (id TransactionID) String() string { return id.Hex() }
func (id DomainID) String() string      { return id.Hex() }
func (id NullifierID) String() string   { return id.Hex() }
func (id CircuitID) String() string     { return id.Hex() }
func (id ProgramID) String() string     { return id.Hex() }
func (id NodeID) String() string        { return id.Hex() }
func (id EdgeID) String() string        { return id.Hex() }

// Cmp compares two identifiers of the same space lexicographically.
func (id ExprID) Cmp(other ExprID) int         { return Hash(id).Cmp(Hash(other)) }
func (id ResourceID) Cmp(other ResourceID) int { return Hash(id).Cmp(Hash(other)) }
