package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/skillwave/internal/cache"
	"github.com/roach88/skillwave/internal/graph"
	"github.com/roach88/skillwave/internal/ir"
)

func diamond(t *testing.T) *graph.Graph {
	t.Helper()
	decl := func(id string, requires ...string) ir.UnitDecl {
		return ir.UnitDecl{ID: id, Spec: ir.IRObject{"name": ir.IRString(id)}, Requires: requires}
	}
	g, err := graph.Build([]ir.UnitDecl{
		decl("a"),
		decl("b", "a"),
		decl("c", "a"),
		decl("d", "b", "c"),
	})
	require.NoError(t, err)
	return g
}

func reasons(plans []WavePlan) map[string]Reason {
	out := make(map[string]Reason)
	for _, wp := range plans {
		for _, d := range wp.Decisions {
			out[d.UnitID] = d.Reason
		}
	}
	return out
}

// seed stores a succeeded entry for every unit, computing hashes the way a
// real run would.
func seed(t *testing.T, c *cache.Cache, g *graph.Graph) {
	t.Helper()
	ctx := context.Background()
	hashes := make(map[string]ir.Hash)
	for _, ids := range g.Waves() {
		for _, id := range ids {
			u, _ := g.Unit(id)
			var deps []ir.DependencyHash
			for _, dep := range u.Requires {
				deps = append(deps, ir.DependencyHash{UnitID: dep, Hash: hashes[dep]})
			}
			h := ir.MustInputHash(u.SpecHash, deps)
			hashes[id] = h
			require.NoError(t, c.Put(ctx, cache.Entry{Hash: h, Status: cache.StatusSucceeded}))
		}
	}
}

func TestPreview_ColdCache(t *testing.T) {
	g := diamond(t)
	plans := New(newCache(t)).Preview(context.Background(), g)

	require.Len(t, plans, 3)
	assert.Equal(t, 1, plans[1].Index)
	assert.Len(t, plans[1].Decisions, 2)
	assert.Equal(t, "b", plans[1].Decisions[0].UnitID)

	got := reasons(plans)
	assert.Equal(t, ReasonCacheMiss, got["a"])
	assert.Equal(t, ReasonUpstreamExecuted, got["b"])
	assert.Equal(t, ReasonUpstreamExecuted, got["c"])
	assert.Equal(t, ReasonUpstreamExecuted, got["d"])
}

func TestPreview_WarmCache(t *testing.T) {
	g := diamond(t)
	c := newCache(t)
	seed(t, c, g)

	plans := New(c).Preview(context.Background(), g)
	for id, r := range reasons(plans) {
		assert.Equal(t, ReasonCacheHit, r, "unit %s", id)
	}
}

func TestPreview_ForcedUnitPropagates(t *testing.T) {
	g := diamond(t)
	c := newCache(t)
	seed(t, c, g)

	got := reasons(New(c, WithForced("b")).Preview(context.Background(), g))
	assert.Equal(t, ReasonCacheHit, got["a"])
	assert.Equal(t, ReasonForced, got["b"])
	assert.Equal(t, ReasonCacheHit, got["c"])
	assert.Equal(t, ReasonUpstreamExecuted, got["d"])

	got = reasons(New(c, WithForced("b"), WithRelaxedUpstreamRule(true)).Preview(context.Background(), g))
	assert.Equal(t, ReasonCacheHit, got["d"])
}

// mapBackend is a minimal cache.Backend holding entries in a map.
type mapBackend map[ir.Hash]cache.Entry

func (b mapBackend) LoadEntry(_ context.Context, h ir.Hash) (cache.Entry, bool, error) {
	e, ok := b[h]
	return e, ok, nil
}

func (b mapBackend) SaveEntry(_ context.Context, e cache.Entry) error {
	b[e.Hash] = e
	return nil
}

func (b mapBackend) DeleteEntries(context.Context, cache.Selector) (int, error) {
	return 0, nil
}

func TestPreview_BackendEntriesNotPromoted(t *testing.T) {
	g := diamond(t)
	backend := mapBackend{}
	seed(t, newCache(t, cache.WithBackend(backend)), g)
	require.Len(t, backend, 4)

	c := newCache(t, cache.WithBackend(backend))
	plans := New(c).Preview(context.Background(), g)

	for id, r := range reasons(plans) {
		assert.Equal(t, ReasonCacheHit, r, id)
	}
	assert.Equal(t, 0, c.Len(), "preview reads the backend without filling memory")
}

func TestPreview_DoesNotMutateCache(t *testing.T) {
	g := diamond(t)
	c := newCache(t)

	New(c).Preview(context.Background(), g)
	assert.Equal(t, 0, c.Len())
}
