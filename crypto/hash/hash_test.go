package hash

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestRegistry(t *testing.T) {
	c := qt.New(t)

	for _, name := range []string{"sha256", "poseidon", "mimc_bn254"} {
		h, err := ByName(name)
		c.Assert(err, qt.IsNil)
		c.Assert(h.Name(), qt.Equals, name)
	}

	_, err := ByName("whirlpool")
	c.Assert(err, qt.IsNotNil)
}

func TestDigestsAreStable(t *testing.T) {
	c := qt.New(t)

	data := []byte("the causality content addressing payload")
	for _, name := range Names() {
		h, err := ByName(name)
		c.Assert(err, qt.IsNil)
		first := h.Sum(data)
		second := h.Sum(data)
		c.Assert(second, qt.Equals, first, qt.Commentf("hasher %s", name))
		c.Assert(first.IsZero(), qt.IsFalse, qt.Commentf("hasher %s", name))
	}
}

func TestDigestsDiffer(t *testing.T) {
	c := qt.New(t)

	for _, name := range Names() {
		h, err := ByName(name)
		c.Assert(err, qt.IsNil)
		a := h.Sum([]byte("a"))
		b := h.Sum([]byte("b"))
		c.Assert(a, qt.Not(qt.Equals), b, qt.Commentf("hasher %s", name))
	}
}

func TestPoseidonEmptyInput(t *testing.T) {
	c := qt.New(t)

	var p PoseidonHasher
	// The length prefix keeps the empty message well-defined.
	c.Assert(p.Sum(nil).IsZero(), qt.IsFalse)
}
