package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/skillwave/internal/ir"
)

// Status is the terminal status recorded for a cached execution.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Provenance records which unit and run produced an entry.
type Provenance struct {
	UnitID string `json:"unit_id"`
	RunID  string `json:"run_id"`
}

// Entry is a cached execution result keyed by content hash.
//
// Entries are values and are never updated in place: a recomputation
// replaces the entry with a fresh Put. Callers must treat Output as
// read-only.
type Entry struct {
	Hash       ir.Hash     `json:"hash"`
	Status     Status      `json:"status"`
	Output     ir.IRObject `json:"output"`
	Error      string      `json:"error,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	Provenance Provenance  `json:"provenance"`
}

func (e Entry) validate() error {
	if len(e.Hash) != ir.HashLen {
		return fmt.Errorf("cache entry: malformed hash %q", e.Hash)
	}
	if !e.Status.Valid() {
		return fmt.Errorf("cache entry %s: invalid status %q", e.Hash.Short(), e.Status)
	}
	return nil
}

// Selector chooses entries for invalidation. Exactly one field must be set.
type Selector struct {
	// UnitID matches entries whose provenance names this unit.
	UnitID string

	// HashPrefix matches entries whose hash starts with this prefix.
	// Used for bulk invalidation when an upstream spec format changes.
	HashPrefix string
}

// Normalize checks that exactly one criterion is set and returns the
// selector with its hash prefix trimmed and lowercased. A prefix must be
// non-empty hexadecimal no longer than a full hash.
func (s Selector) Normalize() (Selector, error) {
	prefix := strings.ToLower(strings.TrimSpace(s.HashPrefix))
	switch {
	case s.UnitID != "" && s.HashPrefix != "":
		return Selector{}, fmt.Errorf("selector: set either unit id or hash prefix, not both")
	case s.UnitID == "" && s.HashPrefix == "":
		return Selector{}, fmt.Errorf("selector: unit id or hash prefix is required")
	case s.UnitID != "":
		return s, nil
	case prefix == "" || len(prefix) > ir.HashLen:
		return Selector{}, fmt.Errorf("selector: invalid hash prefix %q", s.HashPrefix)
	}
	for _, r := range prefix {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			return Selector{}, fmt.Errorf("selector: invalid hash prefix %q: not hexadecimal", s.HashPrefix)
		}
	}
	return Selector{HashPrefix: prefix}, nil
}

// Validate reports whether the selector is usable. See Normalize.
func (s Selector) Validate() error {
	_, err := s.Normalize()
	return err
}

// Matches reports whether the entry is selected. The selector must be
// normalized; an unnormalized or invalid selector matches nothing.
func (s Selector) Matches(e Entry) bool {
	if s.UnitID != "" {
		return e.Provenance.UnitID == s.UnitID
	}
	return s.HashPrefix != "" && e.Hash.HasPrefix(s.HashPrefix)
}

// Backend is a persistent store behind the same get/put contract, used for
// cache reuse across process restarts.
type Backend interface {
	LoadEntry(ctx context.Context, hash ir.Hash) (Entry, bool, error)
	SaveEntry(ctx context.Context, e Entry) error
	DeleteEntries(ctx context.Context, sel Selector) (int, error)
}
