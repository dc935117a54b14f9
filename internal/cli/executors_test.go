package cli

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/skillwave/internal/graph"
	"github.com/roach88/skillwave/internal/ir"
)

func shellUnit(run string) *graph.Unit {
	return &graph.Unit{ID: "s", Executor: "shell", Spec: ir.IRObject{"run": ir.IRString(run)}}
}

func TestEchoExecute_ReturnsCopyOfSpec(t *testing.T) {
	unit := &graph.Unit{ID: "a", Spec: ir.IRObject{"name": ir.IRString("a")}}

	out, err := echoExecute(context.Background(), unit, nil)
	require.NoError(t, err)
	assert.Equal(t, unit.Spec, out)

	out["name"] = ir.IRString("changed")
	assert.Equal(t, ir.IRString("a"), unit.Spec["name"])
}

func TestShellExecute_JSONStdout(t *testing.T) {
	out, err := shellExecute(context.Background(), shellUnit(`echo '{"count": 2, "ok": true}'`), nil)
	require.NoError(t, err)
	assert.Equal(t, ir.IRObject{"count": ir.IRInt(2), "ok": ir.IRBool(true)}, out)
}

func TestShellExecute_PlainStdout(t *testing.T) {
	out, err := shellExecute(context.Background(), shellUnit("echo hello"), nil)
	require.NoError(t, err)
	assert.Equal(t, ir.IRObject{"stdout": ir.IRString("hello")}, out)
}

func TestShellExecute_DependenciesOnStdin(t *testing.T) {
	deps := map[string]ir.IRObject{"a": {"n": ir.IRInt(1)}}
	out, err := shellExecute(context.Background(), shellUnit("cat"), deps)
	require.NoError(t, err)
	assert.Equal(t, ir.IRObject{"a": ir.IRObject{"n": ir.IRInt(1)}}, out)
}

func TestShellExecute_Failure(t *testing.T) {
	_, err := shellExecute(context.Background(), shellUnit("echo nope >&2; exit 4"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit status 4")
	assert.Contains(t, err.Error(), "nope")
}

func TestShellExecute_MissingRun(t *testing.T) {
	_, err := shellExecute(context.Background(), &graph.Unit{ID: "s", Spec: ir.IRObject{}}, nil)
	assert.ErrorContains(t, err, "spec.run")
}

func TestShellExecute_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := shellExecute(ctx, shellUnit("sleep 5"), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuiltinHandlers(t *testing.T) {
	h := builtinHandlers()
	for _, name := range []string{"", "echo", "shell"} {
		assert.Contains(t, h, name)
	}
}
