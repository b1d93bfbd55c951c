// Package poseidon folds arbitrarily many field elements through the
// fixed-arity iden3 Poseidon permutation.
package poseidon

import (
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/poseidon"
)

const (
	// chunkSize is the widest input set the underlying permutation
	// accepts in one call.
	chunkSize = 16
	// maxInputs caps the two-level fold: chunkSize chunks of chunkSize
	// elements each.
	maxInputs = chunkSize * chunkSize
)

// MultiPoseidon hashes up to 256 field elements by hashing chunks of
// 16 and, when more than one chunk results, hashing the chunk digests.
func MultiPoseidon(inputs ...*big.Int) (*big.Int, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("poseidon: no inputs")
	}
	if len(inputs) > maxInputs {
		return nil, fmt.Errorf("poseidon: %d inputs exceeds the %d limit", len(inputs), maxInputs)
	}
	var hashes []*big.Int
	for start := 0; start < len(inputs); start += chunkSize {
		end := start + chunkSize
		if end > len(inputs) {
			end = len(inputs)
		}
		h, err := poseidon.Hash(inputs[start:end])
		if err != nil {
			return nil, fmt.Errorf("poseidon: hash chunk: %w", err)
		}
		hashes = append(hashes, h)
	}
	if len(hashes) == 1 {
		return hashes[0], nil
	}
	return poseidon.Hash(hashes)
}
