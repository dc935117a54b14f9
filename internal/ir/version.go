package ir

// Version constants for hashing and the engine.
const (
	// HashVersion is folded into every hash domain. Bump it when the
	// canonical form of a spec changes so old cache entries stop matching.
	HashVersion = "v1"

	// EngineVersion is the skillwave engine version.
	EngineVersion = "0.1.0"
)
