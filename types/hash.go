package types

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// HashSize is the size in bytes of every content identifier.
const HashSize = 32

// Hash is a 32-byte content hash. All identifier types share this byte
// layout; equality is byte equality and ordering is lexicographic.
type Hash [HashSize]byte

// NullHash is the all-zero hash, used as the null identifier.
var NullHash = Hash{}

// HashFromBytes copies b into a Hash. It returns an error if b is not
// exactly HashSize bytes.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, fmt.Errorf("invalid hash length %d, want %d", len(b), HashSize)
	}
	copy(h[:], b)
	return h, nil
}

// HexToHash parses a hex string (with or without 0x prefix) into a Hash.
func HexToHash(s string) (Hash, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, err
	}
	return HashFromBytes(b)
}

// Bytes returns the hash as a byte slice.
func (h Hash) Bytes() []byte { return h[:] }

// IsZero reports whether the hash is the null identifier.
func (h Hash) IsZero() bool { return h == NullHash }

// Cmp compares two hashes lexicographically.
func (h Hash) Cmp(other Hash) int { return bytes.Compare(h[:], other[:]) }

// Hex returns the 0x-prefixed hex representation, for human-facing
// surfaces only; the wire form is the raw 32 bytes.
func (h Hash) Hex() string { return "0x" + hex.EncodeToString(h[:]) }

// String implements fmt.Stringer.
func (h Hash) String() string { return h.Hex() }

// MarshalJSON renders the hash as a 0x-prefixed hex string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return []byte(`"` + h.Hex() + `"`), nil
}

// UnmarshalJSON parses a 0x-prefixed hex string.
func (h *Hash) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid hash JSON: %s", data)
	}
	parsed, err := HexToHash(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// The identifier types over Hash live in id.go; they are distinct
// named types, so crossing from one identifier space to another takes
// an explicit conversion.
