package types

const (
	// StateTreeMaxLevels is the number of levels in the SMT-backed
	// machine state trees; 32-byte keys need the full 256 levels.
	StateTreeMaxLevels = 256
	// NullifierDomainTag is appended to the resource id and seed when
	// deriving a nullifier.
	NullifierDomainTag = "nullifier"
)
