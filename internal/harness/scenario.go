package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/skillwave/internal/engine"
	"github.com/roach88/skillwave/internal/ir"
	"github.com/roach88/skillwave/internal/planner"
)

// Scenario defines a conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Graph is the path to a graph file. Relative paths are resolved
	// against the scenario file's directory by LoadScenario.
	Graph string `yaml:"graph"`

	Relaxed        bool `yaml:"relaxed,omitempty"`
	ReplayFailures bool `yaml:"replay_failures,omitempty"`

	// Runs execute in order over one shared cache.
	Runs []RunStep `yaml:"runs"`
}

// RunStep configures one engine run.
type RunStep struct {
	// Fail lists units whose executor returns an error in this run.
	Fail []string `yaml:"fail,omitempty"`

	// Force lists units the planner must execute regardless of cache.
	Force []string `yaml:"force,omitempty"`

	// Edit replaces unit specs. Edits persist into later runs.
	Edit map[string]map[string]any `yaml:"edit,omitempty"`

	Expect Expect `yaml:"expect"`
}

// Expect declares the expected result of a run. Only the units listed in
// each map are checked.
type Expect struct {
	Outcomes map[string]ir.Outcome         `yaml:"outcomes"`
	Reasons  map[string]planner.Reason     `yaml:"reasons,omitempty"`
	Failures map[string]engine.FailureKind `yaml:"failures,omitempty"`
	Calls    *int                          `yaml:"calls,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Graph != "" && !filepath.IsAbs(scenario.Graph) {
		scenario.Graph = filepath.Join(filepath.Dir(path), scenario.Graph)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Graph == "" {
		return fmt.Errorf("graph is required")
	}
	if _, err := os.Stat(s.Graph); os.IsNotExist(err) {
		return fmt.Errorf("graph file not found: %s", s.Graph)
	}
	if len(s.Runs) == 0 {
		return fmt.Errorf("runs list is required and must be non-empty")
	}

	for i, run := range s.Runs {
		if len(run.Expect.Outcomes) == 0 {
			return fmt.Errorf("runs[%d].expect: outcomes is required", i)
		}
		for id, o := range run.Expect.Outcomes {
			switch o {
			case ir.OutcomeExecuted, ir.OutcomeSkipped, ir.OutcomeFailed:
			default:
				return fmt.Errorf("runs[%d].expect.outcomes[%s]: unknown outcome %q", i, id, o)
			}
		}
		if run.Expect.Calls != nil && *run.Expect.Calls < 0 {
			return fmt.Errorf("runs[%d].expect: calls must be non-negative", i)
		}
	}
	return nil
}
