package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
)

// Hash is a content hash: 64 lowercase hex characters of a SHA-256 digest.
type Hash string

// HashLen is the length of a Hash string.
const HashLen = sha256.Size * 2

// String implements fmt.Stringer.
func (h Hash) String() string { return string(h) }

// Short returns the first 12 characters, for logs and text output.
func (h Hash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

// HasPrefix reports whether h starts with prefix (case-insensitive).
func (h Hash) HasPrefix(prefix string) bool {
	return strings.HasPrefix(string(h), strings.ToLower(prefix))
}

// Domain prefixes for content-addressed identity.
// The version suffix enables future algorithm migration.
const (
	DomainSpec  = "skillwave/spec/" + HashVersion
	DomainUnit  = "skillwave/unit/" + HashVersion
	DomainInput = "skillwave/input/" + HashVersion
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) Hash {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return Hash(hex.EncodeToString(h.Sum(nil)))
}

// DependencyHash pairs a dependency's unit id with its content hash.
type DependencyHash struct {
	UnitID string
	Hash   Hash
}

// SpecHash computes the hash of a unit's specification payload.
// Returns an error if the spec cannot be canonically marshaled; an
// unhashable spec is a programming error and must never be ignored.
func SpecHash(spec IRObject) (Hash, error) {
	if spec == nil {
		spec = IRObject{}
	}
	canonical, err := MarshalCanonical(spec)
	if err != nil {
		return "", fmt.Errorf("SpecHash: %w", err)
	}
	return hashWithDomain(DomainSpec, canonical), nil
}

// UnitHash computes the hash of a unit's own inputs: the executor it names
// and its spec payload. Two units with equal specs but different executors
// never share a key.
func UnitHash(executor string, spec IRObject) (Hash, error) {
	if spec == nil {
		spec = IRObject{}
	}
	canonical, err := MarshalCanonical(IRObject{
		"executor": IRString(executor),
		"spec":     spec,
	})
	if err != nil {
		return "", fmt.Errorf("UnitHash: %w", err)
	}
	return hashWithDomain(DomainUnit, canonical), nil
}

// InputHash combines a spec hash with the content hashes of the unit's
// resolved dependencies.
//
// Canonical ordering: dependencies are stably sorted by UnitID before they
// are combined, so the declaration order of `requires` never changes the
// key. Only the hashes enter the digest; two units with identical specs and
// identical dependency hashes (in id order) produce the same key.
func InputHash(specHash Hash, deps []DependencyHash) (Hash, error) {
	if len(specHash) != HashLen {
		return "", fmt.Errorf("InputHash: malformed spec hash %q", specHash)
	}

	sorted := slices.Clone(deps)
	slices.SortStableFunc(sorted, func(a, b DependencyHash) int {
		return strings.Compare(a.UnitID, b.UnitID)
	})

	depHashes := make(IRArray, len(sorted))
	for i, d := range sorted {
		if len(d.Hash) != HashLen {
			return "", fmt.Errorf("InputHash: malformed hash %q for dependency %q", d.Hash, d.UnitID)
		}
		depHashes[i] = IRString(d.Hash)
	}

	canonical, err := MarshalCanonical(IRObject{
		"spec": IRString(specHash),
		"deps": depHashes,
	})
	if err != nil {
		return "", fmt.Errorf("InputHash: %w", err)
	}
	return hashWithDomain(DomainInput, canonical), nil
}

// MustSpecHash is like SpecHash but panics on error.
// Use only in tests or when the spec is known to be valid.
func MustSpecHash(spec IRObject) Hash {
	h, err := SpecHash(spec)
	if err != nil {
		panic(err)
	}
	return h
}

// MustUnitHash is like UnitHash but panics on error.
// Use only in tests or when the spec is known to be valid.
func MustUnitHash(executor string, spec IRObject) Hash {
	h, err := UnitHash(executor, spec)
	if err != nil {
		panic(err)
	}
	return h
}

// MustInputHash is like InputHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustInputHash(specHash Hash, deps []DependencyHash) Hash {
	h, err := InputHash(specHash, deps)
	if err != nil {
		panic(err)
	}
	return h
}
