package compiler

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/roach88/skillwave/internal/ir"
)

type yamlGraph struct {
	Units []yamlUnit `yaml:"units"`
}

type yamlUnit struct {
	ID       string         `yaml:"id"`
	Executor string         `yaml:"executor"`
	Spec     map[string]any `yaml:"spec"`
	Requires []string       `yaml:"requires"`
	Provides []string       `yaml:"provides"`
	Needs    []string       `yaml:"needs"`
}

// CompileYAML parses a YAML (or JSON) graph document. Unknown fields are
// rejected so typos in requires/needs never silently drop edges.
func CompileYAML(data []byte, filename string) ([]ir.UnitDecl, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var doc yamlGraph
	if err := decoder.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &CompileError{Field: "units", Message: "document is empty", File: filename}
		}
		return nil, &CompileError{Field: "yaml", Message: err.Error(), File: filename}
	}
	if len(doc.Units) == 0 {
		return nil, &CompileError{Field: "units", Message: "at least one unit is required", File: filename}
	}

	lines := unitLines(data)
	decls := make([]ir.UnitDecl, 0, len(doc.Units))
	for i, u := range doc.Units {
		field := fmt.Sprintf("units[%d]", i)
		if u.ID != "" {
			field = fmt.Sprintf("units[%d] (%s)", i, u.ID)
		}

		spec, err := ir.ObjectFromGo(u.Spec)
		if err != nil {
			return nil, &CompileError{
				Field:   field + ".spec",
				Message: err.Error(),
				File:    filename,
				Line:    lineAt(lines, i),
			}
		}

		decls = append(decls, ir.UnitDecl{
			ID:       u.ID,
			Spec:     spec,
			Requires: u.Requires,
			Executor: u.Executor,
			Provides: u.Provides,
			Needs:    u.Needs,
		})
	}
	return decls, nil
}

// unitLines returns the source line of each entry in the units sequence.
// Best effort: a document that does not have the expected shape yields nil.
func unitLines(data []byte) []int {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil || len(root.Content) == 0 {
		return nil
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		if doc.Content[i].Value != "units" {
			continue
		}
		seq := doc.Content[i+1]
		lines := make([]int, len(seq.Content))
		for j, item := range seq.Content {
			lines[j] = item.Line
		}
		return lines
	}
	return nil
}

func lineAt(lines []int, i int) int {
	if i < len(lines) {
		return lines[i]
	}
	return 0
}
