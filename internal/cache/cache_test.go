package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/skillwave/internal/ir"
)

func hashFor(n int) ir.Hash {
	return ir.MustSpecHash(ir.IRObject{"n": ir.IRInt(n)})
}

func succeeded(n int, unit string) Entry {
	return Entry{
		Hash:       hashFor(n),
		Status:     StatusSucceeded,
		Output:     ir.IRObject{"n": ir.IRInt(n)},
		Provenance: Provenance{UnitID: unit, RunID: "run-1"},
	}
}

// memBackend is an in-memory Backend used to observe read/write-through.
type memBackend struct {
	mu      sync.Mutex
	entries map[ir.Hash]Entry
	loadErr   error
	saveErr   error
	deleteErr error
	loads   int
	saves   int
}

func newMemBackend() *memBackend {
	return &memBackend{entries: make(map[ir.Hash]Entry)}
}

func (b *memBackend) LoadEntry(_ context.Context, hash ir.Hash) (Entry, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loads++
	if b.loadErr != nil {
		return Entry{}, false, b.loadErr
	}
	e, ok := b.entries[hash]
	return e, ok, nil
}

func (b *memBackend) SaveEntry(_ context.Context, e Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saves++
	if b.saveErr != nil {
		return b.saveErr
	}
	b.entries[e.Hash] = e
	return nil
}

func (b *memBackend) DeleteEntries(_ context.Context, sel Selector) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deleteErr != nil {
		return 0, b.deleteErr
	}
	n := 0
	for h, e := range b.entries {
		if sel.Matches(e) {
			delete(b.entries, h)
			n++
		}
	}
	return n, nil
}

func TestNew_RejectsNonPositiveCapacity(t *testing.T) {
	_, err := New(0)
	require.Error(t, err)

	_, err = New(-3)
	require.Error(t, err)
}

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	c, err := New(8)
	require.NoError(t, err)

	_, ok := c.Get(ctx, hashFor(1))
	assert.False(t, ok, "empty cache misses")

	require.NoError(t, c.Put(ctx, succeeded(1, "a")))

	got, ok := c.Get(ctx, hashFor(1))
	require.True(t, ok)
	assert.Equal(t, StatusSucceeded, got.Status)
	assert.Equal(t, ir.IRObject{"n": ir.IRInt(1)}, got.Output)
	assert.Equal(t, "a", got.Provenance.UnitID)
	assert.Equal(t, 1, c.Len())
}

func TestPut_StampsCreatedAtAndDefaultsOutput(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c, err := New(8, WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)

	require.NoError(t, c.Put(ctx, Entry{Hash: hashFor(1), Status: StatusFailed, Error: "boom"}))

	got, ok := c.Get(ctx, hashFor(1))
	require.True(t, ok)
	assert.Equal(t, fixed, got.CreatedAt)
	assert.NotNil(t, got.Output)
	assert.Empty(t, got.Output)
	assert.Equal(t, "boom", got.Error)
}

func TestPut_ReplacesExistingEntry(t *testing.T) {
	ctx := context.Background()
	c, err := New(8)
	require.NoError(t, err)

	require.NoError(t, c.Put(ctx, Entry{Hash: hashFor(1), Status: StatusFailed, Error: "first"}))
	require.NoError(t, c.Put(ctx, succeeded(1, "a")))

	got, ok := c.Get(ctx, hashFor(1))
	require.True(t, ok)
	assert.Equal(t, StatusSucceeded, got.Status)
	assert.Empty(t, got.Error)
	assert.Equal(t, 1, c.Len())
}

func TestPut_RejectsInvalidEntries(t *testing.T) {
	ctx := context.Background()
	c, err := New(8)
	require.NoError(t, err)

	err = c.Put(ctx, Entry{Hash: "abc", Status: StatusSucceeded})
	assert.ErrorContains(t, err, "malformed hash")

	err = c.Put(ctx, Entry{Hash: hashFor(1), Status: "pending"})
	assert.ErrorContains(t, err, "invalid status")

	assert.Equal(t, 0, c.Len())
}

func TestLRUEviction(t *testing.T) {
	ctx := context.Background()
	c, err := New(2)
	require.NoError(t, err)

	require.NoError(t, c.Put(ctx, succeeded(1, "a")))
	require.NoError(t, c.Put(ctx, succeeded(2, "b")))

	// Touch 1 so 2 becomes least recently used.
	_, ok := c.Get(ctx, hashFor(1))
	require.True(t, ok)

	require.NoError(t, c.Put(ctx, succeeded(3, "c")))
	assert.Equal(t, 2, c.Len())

	_, ok = c.Get(ctx, hashFor(2))
	assert.False(t, ok, "least recently used entry evicted")
	_, ok = c.Get(ctx, hashFor(1))
	assert.True(t, ok)
	_, ok = c.Get(ctx, hashFor(3))
	assert.True(t, ok)
}

func TestEvictionDoesNotAffectHeldEntry(t *testing.T) {
	ctx := context.Background()
	c, err := New(1)
	require.NoError(t, err)

	require.NoError(t, c.Put(ctx, succeeded(1, "a")))
	held, ok := c.Get(ctx, hashFor(1))
	require.True(t, ok)

	require.NoError(t, c.Put(ctx, succeeded(2, "b")))

	assert.Equal(t, ir.IRObject{"n": ir.IRInt(1)}, held.Output)
}

func TestUsable(t *testing.T) {
	c, err := New(4)
	require.NoError(t, err)
	replay, err := New(4, WithReplayFailures(true))
	require.NoError(t, err)

	ok := Entry{Status: StatusSucceeded}
	failed := Entry{Status: StatusFailed}

	assert.True(t, c.Usable(ok))
	assert.False(t, c.Usable(failed), "failed entries are retried by default")
	assert.True(t, replay.Usable(ok))
	assert.True(t, replay.Usable(failed))
}

func TestInvalidate_ByUnit(t *testing.T) {
	ctx := context.Background()
	c, err := New(8)
	require.NoError(t, err)

	require.NoError(t, c.Put(ctx, succeeded(1, "a")))
	require.NoError(t, c.Put(ctx, succeeded(2, "a")))
	require.NoError(t, c.Put(ctx, succeeded(3, "b")))

	n, err := c.Invalidate(ctx, Selector{UnitID: "a"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, c.Len())

	_, ok := c.Get(ctx, hashFor(3))
	assert.True(t, ok)
}

func TestInvalidate_ByHashPrefix(t *testing.T) {
	ctx := context.Background()
	c, err := New(8)
	require.NoError(t, err)

	require.NoError(t, c.Put(ctx, succeeded(1, "a")))
	require.NoError(t, c.Put(ctx, succeeded(2, "b")))

	prefix := strings.ToUpper(hashFor(1).String()[:10])
	n, err := c.Invalidate(ctx, Selector{HashPrefix: prefix})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, ok := c.Get(ctx, hashFor(1))
	assert.False(t, ok)
	_, ok = c.Get(ctx, hashFor(2))
	assert.True(t, ok)
}

func TestInvalidate_SelectorValidation(t *testing.T) {
	ctx := context.Background()
	c, err := New(8)
	require.NoError(t, err)

	_, err = c.Invalidate(ctx, Selector{})
	assert.ErrorContains(t, err, "required")

	_, err = c.Invalidate(ctx, Selector{UnitID: "a", HashPrefix: "ab"})
	assert.ErrorContains(t, err, "not both")

	for i := 1; i <= 3; i++ {
		require.NoError(t, c.Put(ctx, succeeded(i, "a")))
	}

	tests := []struct {
		name    string
		prefix  string
		wantErr string
	}{
		{"spaces only", "   ", "invalid hash prefix"},
		{"not hex", "zz", "not hexadecimal"},
		{"wildcard", "ab%", "not hexadecimal"},
		{"too long", strings.Repeat("a", ir.HashLen+1), "invalid hash prefix"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := c.Invalidate(ctx, Selector{HashPrefix: tt.prefix})
			assert.ErrorContains(t, err, tt.wantErr)
			assert.Zero(t, n)
			assert.Equal(t, 3, c.Len(), "a rejected selector removes nothing")
		})
	}
}

func TestSelector_Normalize(t *testing.T) {
	sel, err := Selector{HashPrefix: "  ABcd \n"}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, Selector{HashPrefix: "abcd"}, sel)

	sel, err = Selector{UnitID: "a"}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, Selector{UnitID: "a"}, sel)

	assert.False(t, Selector{HashPrefix: "  "}.Matches(succeeded(1, "a")), "an invalid selector matches nothing")
}

func TestInvalidate_BackendFailureKeepsMemory(t *testing.T) {
	ctx := context.Background()
	backend := newMemBackend()
	c, err := New(8, WithBackend(backend))
	require.NoError(t, err)

	require.NoError(t, c.Put(ctx, succeeded(1, "a")))
	require.NoError(t, c.Put(ctx, succeeded(2, "a")))
	backend.deleteErr = errors.New("database is locked")

	n, err := c.Invalidate(ctx, Selector{UnitID: "a"})
	assert.ErrorContains(t, err, "database is locked")
	assert.Zero(t, n)
	assert.Equal(t, 2, c.Len())
}

func TestBackend_WriteThroughAndReadThrough(t *testing.T) {
	ctx := context.Background()
	backend := newMemBackend()

	first, err := New(8, WithBackend(backend))
	require.NoError(t, err)
	require.NoError(t, first.Put(ctx, succeeded(1, "a")))
	assert.Equal(t, 1, backend.saves)

	// A fresh cache over the same backend sees the entry.
	second, err := New(8, WithBackend(backend))
	require.NoError(t, err)
	assert.Equal(t, 0, second.Len())

	got, ok := second.Get(ctx, hashFor(1))
	require.True(t, ok)
	assert.Equal(t, "a", got.Provenance.UnitID)
	assert.Equal(t, 1, second.Len(), "read-through promotes into memory")

	loads := backend.loads
	_, ok = second.Get(ctx, hashFor(1))
	require.True(t, ok)
	assert.Equal(t, loads, backend.loads, "second lookup served from memory")
}

func TestPeek_LeavesCacheUntouched(t *testing.T) {
	ctx := context.Background()
	backend := newMemBackend()
	backend.entries[hashFor(1)] = succeeded(1, "a")

	c, err := New(2, WithBackend(backend))
	require.NoError(t, err)

	got, ok := c.Peek(ctx, hashFor(1))
	require.True(t, ok)
	assert.Equal(t, "a", got.Provenance.UnitID)
	assert.Equal(t, 0, c.Len(), "backend entry not promoted")

	// Peek does not refresh recency: 2 stays the oldest and is evicted.
	require.NoError(t, c.Put(ctx, succeeded(2, "b")))
	require.NoError(t, c.Put(ctx, succeeded(3, "c")))
	_, ok = c.Peek(ctx, hashFor(2))
	require.True(t, ok)
	require.NoError(t, c.Put(ctx, succeeded(4, "d")))

	delete(backend.entries, hashFor(2))
	_, ok = c.Peek(ctx, hashFor(2))
	assert.False(t, ok)

	_, ok = c.Peek(ctx, hashFor(9))
	assert.False(t, ok)
}

func TestBackend_LoadErrorIsMiss(t *testing.T) {
	ctx := context.Background()
	backend := newMemBackend()
	backend.loadErr = errors.New("disk on fire")

	c, err := New(8, WithBackend(backend))
	require.NoError(t, err)

	_, ok := c.Get(ctx, hashFor(1))
	assert.False(t, ok)
}

func TestBackend_CorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	backend := newMemBackend()
	backend.entries[hashFor(1)] = Entry{Hash: hashFor(1), Status: "garbage"}
	backend.entries[hashFor(2)] = Entry{Hash: hashFor(3), Status: StatusSucceeded}

	c, err := New(8, WithBackend(backend))
	require.NoError(t, err)

	_, ok := c.Get(ctx, hashFor(1))
	assert.False(t, ok, "invalid status")
	_, ok = c.Get(ctx, hashFor(2))
	assert.False(t, ok, "mismatched hash")
	assert.Equal(t, 0, c.Len())
}

func TestBackend_SaveErrorKeepsMemoryEntry(t *testing.T) {
	ctx := context.Background()
	backend := newMemBackend()
	backend.saveErr = errors.New("read-only")

	c, err := New(8, WithBackend(backend))
	require.NoError(t, err)

	err = c.Put(ctx, succeeded(1, "a"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "read-only")

	_, ok := c.Get(ctx, hashFor(1))
	assert.True(t, ok)
}

func TestBackend_InvalidateCountsPersistedEntries(t *testing.T) {
	ctx := context.Background()
	backend := newMemBackend()
	backend.entries[hashFor(1)] = succeeded(1, "a")
	backend.entries[hashFor(2)] = succeeded(2, "a")

	c, err := New(8, WithBackend(backend))
	require.NoError(t, err)
	require.NoError(t, c.Put(ctx, succeeded(3, "a")))

	n, err := c.Invalidate(ctx, Selector{UnitID: "a"})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Empty(t, backend.entries)
}

func TestConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c, err := New(64)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				n := w*1000 + i
				assert.NoError(t, c.Put(ctx, succeeded(n, fmt.Sprintf("u%d", w))))
				c.Get(ctx, hashFor(n))
			}
		}(w)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 64)
}
