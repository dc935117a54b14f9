package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/skillwave/internal/graph"
	"github.com/roach88/skillwave/internal/ir"
)

// Decl builds a unit declaration with a spec derived from its id.
func Decl(id string, requires ...string) ir.UnitDecl {
	return ir.UnitDecl{
		ID:       id,
		Spec:     ir.IRObject{"name": ir.IRString(id)},
		Requires: requires,
	}
}

// MustGraph builds a graph or fails the test.
func MustGraph(t testing.TB, decls ...ir.UnitDecl) *graph.Graph {
	t.Helper()
	g, err := graph.Build(decls)
	require.NoError(t, err)
	return g
}

// Diamond returns the declarations a → {b, c} → d.
func Diamond() []ir.UnitDecl {
	return []ir.UnitDecl{
		Decl("a"),
		Decl("b", "a"),
		Decl("c", "a"),
		Decl("d", "b", "c"),
	}
}
