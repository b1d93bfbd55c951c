package hash

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"

	"github.com/causality-fw/causality/types"
)

// mimcChunk is the number of bytes packed per field element written to
// the MiMC sponge; 31 bytes always fit below the BN254 scalar modulus.
const mimcChunk = 31

// MiMCHasher hashes arbitrary bytes with MiMC over the BN254 scalar
// field. It matches the in-circuit MiMC gadget used by the reference
// proof backend.
type MiMCHasher struct{}

// Name implements Hasher.
func (MiMCHasher) Name() string { return "mimc_bn254" }

// Sum implements Hasher. Data is split into 31-byte chunks, each
// left-padded to a 32-byte field element before entering the sponge.
func (MiMCHasher) Sum(data []byte) types.Hash {
	h := mimc.NewMiMC()
	var elem [mimc.BlockSize]byte
	for start := 0; start < len(data); start += mimcChunk {
		end := start + mimcChunk
		if end > len(data) {
			end = len(data)
		}
		for i := range elem {
			elem[i] = 0
		}
		copy(elem[mimc.BlockSize-(end-start):], data[start:end])
		// Write cannot fail for field-sized blocks.
		if _, err := h.Write(elem[:]); err != nil {
			panic(err)
		}
	}
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

func init() {
	Register(MiMCHasher{})
}
