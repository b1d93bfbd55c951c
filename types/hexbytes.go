package types

import (
	"encoding/hex"
	"fmt"
)

// HexBytes is a byte slice that marshals to and from 0x-prefixed JSON
// hex strings.
type HexBytes []byte

// HexStringToHexBytes parses a hex string (with or without 0x prefix).
// It panics on invalid input, so it is meant for constants and tests.
func HexStringToHexBytes(s string) HexBytes {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(fmt.Sprintf("invalid hex string %q: %v", s, err))
	}
	return b
}

// String returns the 0x-prefixed hex representation.
func (hb HexBytes) String() string {
	return "0x" + hex.EncodeToString(hb)
}

// MarshalJSON implements json.Marshaler.
func (hb HexBytes) MarshalJSON() ([]byte, error) {
	enc := make([]byte, 2*len(hb)+4)
	enc[0] = '"'
	enc[1] = '0'
	enc[2] = 'x'
	hex.Encode(enc[3:], hb)
	enc[len(enc)-1] = '"'
	return enc, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (hb *HexBytes) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid hex JSON string: %s", data)
	}
	data = data[1 : len(data)-1]
	if len(data) >= 2 && data[0] == '0' && (data[1] == 'x' || data[1] == 'X') {
		data = data[2:]
	}
	decoded := make([]byte, hex.DecodedLen(len(data)))
	if _, err := hex.Decode(decoded, data); err != nil {
		return err
	}
	*hb = decoded
	return nil
}
