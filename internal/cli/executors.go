package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os/exec"
	"strings"

	"github.com/roach88/skillwave/internal/engine"
	"github.com/roach88/skillwave/internal/graph"
	"github.com/roach88/skillwave/internal/ir"
)

// builtinHandlers returns the executors available to graph files. Units
// that name no executor use echo.
func builtinHandlers() engine.Handlers {
	echo := engine.ExecutorFunc(echoExecute)
	return engine.Handlers{
		"":      echo,
		"echo":  echo,
		"shell": engine.ExecutorFunc(shellExecute),
	}
}

// echoExecute returns the unit's spec as its output.
func echoExecute(_ context.Context, unit *graph.Unit, _ map[string]ir.IRObject) (ir.IRObject, error) {
	return maps.Clone(unit.Spec), nil
}

// shellExecute runs spec.run with sh -c. Dependency outputs are written to
// stdin as a JSON object keyed by unit id. A JSON object on stdout becomes
// the output; anything else is returned as {"stdout": ...}.
func shellExecute(ctx context.Context, unit *graph.Unit, deps map[string]ir.IRObject) (ir.IRObject, error) {
	run, ok := unit.Spec["run"].(ir.IRString)
	if !ok || strings.TrimSpace(string(run)) == "" {
		return nil, fmt.Errorf("shell executor: spec.run must be a non-empty string")
	}

	input, err := json.Marshal(deps)
	if err != nil {
		return nil, fmt.Errorf("shell executor: encode dependencies: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "sh", "-c", string(run))
	cmd.Stdin = bytes.NewReader(input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if dir, ok := unit.Spec["dir"].(ir.IRString); ok {
		cmd.Dir = string(dir)
	}

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if bytes.HasPrefix(out, []byte("{")) {
		if v, err := ir.UnmarshalIRValue(out); err == nil {
			if obj, ok := v.(ir.IRObject); ok {
				return obj, nil
			}
		}
	}
	return ir.IRObject{"stdout": ir.IRString(string(out))}, nil
}
