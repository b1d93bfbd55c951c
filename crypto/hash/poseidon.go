package hash

import (
	"fmt"
	"math/big"

	"github.com/causality-fw/causality/crypto/hash/poseidon"
	"github.com/causality-fw/causality/types"
)

// poseidonChunk is the number of bytes packed per field element; 31
// bytes always fit below the BN254 scalar modulus.
const poseidonChunk = 31

// PoseidonHasher hashes arbitrary bytes with Poseidon over the BN254
// scalar field, for deployments where the digest must be cheap to
// re-compute inside a circuit.
type PoseidonHasher struct{}

// Name implements Hasher.
func (PoseidonHasher) Name() string { return "poseidon" }

// Sum implements Hasher. Data is split into 31-byte big-endian chunks,
// each interpreted as a field element, and folded with MultiPoseidon;
// the digest is the 32-byte big-endian form of the result.
func (PoseidonHasher) Sum(data []byte) types.Hash {
	inputs := []*big.Int{big.NewInt(int64(len(data)))}
	for start := 0; start < len(data); start += poseidonChunk {
		end := start + poseidonChunk
		if end > len(data) {
			end = len(data)
		}
		inputs = append(inputs, new(big.Int).SetBytes(data[start:end]))
	}
	digest, err := poseidon.MultiPoseidon(inputs...)
	if err != nil {
		// MultiPoseidon only fails on empty or oversized input sets;
		// the length prefix rules out empty, so fold oversized inputs
		// pairwise.
		digest = foldPoseidon(inputs)
	}
	var h types.Hash
	digest.FillBytes(h[:])
	return h
}

// foldPoseidon reduces an arbitrarily long input list by hashing
// MultiPoseidon-sized windows and recursing.
func foldPoseidon(inputs []*big.Int) *big.Int {
	const window = 256
	for len(inputs) > 1 {
		var next []*big.Int
		for start := 0; start < len(inputs); start += window {
			end := start + window
			if end > len(inputs) {
				end = len(inputs)
			}
			h, err := poseidon.MultiPoseidon(inputs[start:end]...)
			if err != nil {
				panic(fmt.Sprintf("hash: poseidon fold: %v", err))
			}
			next = append(next, h)
		}
		inputs = next
	}
	return inputs[0]
}

func init() {
	Register(PoseidonHasher{})
}
