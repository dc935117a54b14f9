package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/skillwave/internal/ir"
)

func decl(id string, requires ...string) ir.UnitDecl {
	return ir.UnitDecl{
		ID:       id,
		Spec:     ir.IRObject{"name": ir.IRString(id)},
		Requires: requires,
	}
}

func TestBuildDiamondWaves(t *testing.T) {
	g, err := Build([]ir.UnitDecl{
		decl("D", "B", "C"),
		decl("B", "A"),
		decl("C", "A"),
		decl("A"),
	})
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"A"}, {"B", "C"}, {"D"}}, g.Waves())
	assert.Equal(t, 0, g.WaveOf("A"))
	assert.Equal(t, 2, g.WaveOf("D"))
	assert.Equal(t, -1, g.WaveOf("nope"))
}

func TestWaveIndexIsLongestChain(t *testing.T) {
	// E depends on A directly and on D (A→B→D), so E lands after D.
	g, err := Build([]ir.UnitDecl{
		decl("A"),
		decl("B", "A"),
		decl("D", "B"),
		decl("E", "A", "D"),
		decl("F"),
	})
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"A", "F"}, {"B"}, {"D"}, {"E"}}, g.Waves())
}

func TestWavesReturnsCopy(t *testing.T) {
	g, err := Build([]ir.UnitDecl{decl("A"), decl("B", "A")})
	require.NoError(t, err)

	w := g.Waves()
	w[0][0] = "mutated"
	assert.Equal(t, [][]string{{"A"}, {"B"}}, g.Waves())
}

func TestEmptyGraph(t *testing.T) {
	g, err := Build(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, g.Len())
	assert.Empty(t, g.Waves())
}

func TestBuildRejectsCycle(t *testing.T) {
	_, err := Build([]ir.UnitDecl{
		decl("A", "B"),
		decl("B", "C"),
		decl("C", "A"),
	})
	require.Error(t, err)
	assert.True(t, IsCycleError(err))

	var ge *Error
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, []string{"A", "B", "C", "A"}, ge.Cycle)
	assert.Contains(t, err.Error(), "A → B → C → A")
}

func TestBuildRejectsSelfLoop(t *testing.T) {
	_, err := Build([]ir.UnitDecl{decl("A", "A")})
	require.Error(t, err)

	var ge *Error
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, ErrCodeCircularDependency, ge.Code)
	assert.Equal(t, []string{"A", "A"}, ge.Cycle)
}

func TestBuildRejectsMissingDependency(t *testing.T) {
	_, err := Build([]ir.UnitDecl{decl("A", "ghost")})
	require.Error(t, err)
	assert.True(t, IsMissingDependencyError(err))

	var ge *Error
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "A", ge.UnitID)
	assert.Equal(t, "ghost", ge.Dependency)
}

func TestBuildRejectsUnsatisfiedRequirement(t *testing.T) {
	writer := decl("writer")
	writer.Needs = []string{"llm"}

	_, err := Build([]ir.UnitDecl{writer})
	require.Error(t, err)
	assert.True(t, IsUnsatisfiedRequirementError(err))
	assert.False(t, IsMissingDependencyError(err), "capability check is distinct from missing id")

	provider := decl("model")
	provider.Provides = []string{"llm"}
	g, err := Build([]ir.UnitDecl{writer, provider})
	require.NoError(t, err)
	u, ok := g.Unit("writer")
	require.True(t, ok)
	assert.Equal(t, []string{"llm"}, u.Needs)
}

func TestBuildRejectsDuplicateAndInvalidIDs(t *testing.T) {
	_, err := Build([]ir.UnitDecl{decl("A"), decl("A")})
	var ge *Error
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, ErrCodeDuplicateUnit, ge.Code)

	_, err = Build([]ir.UnitDecl{decl("")})
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, ErrCodeInvalidUnit, ge.Code)

	_, err = Build([]ir.UnitDecl{decl(" padded")})
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, ErrCodeInvalidUnit, ge.Code)
}

func TestBuildRejectsUnhashableSpec(t *testing.T) {
	bad := ir.UnitDecl{ID: "A", Spec: ir.IRObject{"v": nil}}
	_, err := Build([]ir.UnitDecl{bad})

	var ge *Error
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, ErrCodeUnhashableSpec, ge.Code)
	assert.NotNil(t, ge.Unwrap())
}

func TestValidateCollectsAllErrors(t *testing.T) {
	needy := decl("N")
	needy.Needs = []string{"gpu"}

	errs := Validate([]ir.UnitDecl{
		decl("A", "ghost"),
		decl("B", "C"),
		decl("C", "B"),
		needy,
	})
	require.Len(t, errs, 3)
	assert.True(t, IsMissingDependencyError(errs[0]))
	assert.True(t, IsCycleError(errs[1]))
	assert.True(t, IsUnsatisfiedRequirementError(errs[2]))

	assert.Empty(t, Validate([]ir.UnitDecl{decl("A"), decl("B", "A")}))
}

func TestSpecHashComputedAtBuild(t *testing.T) {
	g, err := Build([]ir.UnitDecl{decl("A"), {ID: "B"}})
	require.NoError(t, err)

	a, _ := g.Unit("A")
	assert.Equal(t, ir.MustUnitHash("", ir.IRObject{"name": ir.IRString("A")}), a.SpecHash)

	b, _ := g.Unit("B")
	assert.Equal(t, ir.IRObject{}, b.Spec, "nil spec normalized to empty object")
	assert.Equal(t, ir.MustUnitHash("", ir.IRObject{}), b.SpecHash)
}

func TestSpecHashIncludesExecutor(t *testing.T) {
	spec := ir.IRObject{"v": ir.IRString("x")}
	g, err := Build([]ir.UnitDecl{
		{ID: "A", Spec: spec, Executor: "upper"},
		{ID: "B", Spec: spec, Executor: "lower"},
		{ID: "C", Spec: spec, Executor: "upper"},
	})
	require.NoError(t, err)

	a, _ := g.Unit("A")
	b, _ := g.Unit("B")
	c, _ := g.Unit("C")
	assert.NotEqual(t, a.SpecHash, b.SpecHash)
	assert.Equal(t, a.SpecHash, c.SpecHash)
}

func TestDependentsAndDescendants(t *testing.T) {
	g, err := Build([]ir.UnitDecl{
		decl("A"),
		decl("B", "A"),
		decl("C", "A"),
		decl("D", "B", "C"),
		decl("E"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"B", "C"}, g.Dependents("A"))
	assert.Equal(t, []string{"B", "C", "D"}, g.Descendants("A"))
	assert.Equal(t, []string{"D"}, g.Descendants("B"))
	assert.Empty(t, g.Descendants("E"))
}

func TestRequiresDeduplicated(t *testing.T) {
	g, err := Build([]ir.UnitDecl{decl("A"), decl("B", "A", "A")})
	require.NoError(t, err)
	b, _ := g.Unit("B")
	assert.Equal(t, []string{"A"}, b.Requires)
	assert.Equal(t, []string{"B"}, g.Dependents("A"))
}
