package graph

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/skillwave/internal/ir"
)

// Unit is a validated, immutable unit of work inside a Graph.
type Unit struct {
	ID       string
	Spec     ir.IRObject
	Requires []string // Declaration order, duplicates removed
	Executor string
	Provides []string
	Needs    []string

	// SpecHash is the hash of Executor and Spec (ir.UnitHash), computed at
	// build time.
	SpecHash ir.Hash
}

// Graph is a validated dependency graph of units.
//
// INVARIANTS:
//   - acyclic
//   - every Requires id names a unit in the graph
//   - every Needs tag is provided by some unit
//   - read-only after Build returns
type Graph struct {
	units      map[string]*Unit
	ids        []string            // Sorted unit ids
	dependents map[string][]string // unit id → sorted ids of units that require it

	resolveOnce sync.Once
	waves       [][]string
	waveOf      map[string]int
}

// Build validates the declarations and returns a frozen Graph.
//
// Validation happens here, not at use time. Checks run in a fixed order
// and the first failure is returned:
//  1. empty or duplicate ids
//  2. unhashable spec payloads
//  3. missing dependencies
//  4. circular dependencies (full cycle path reported)
//  5. unsatisfied capability requirements
//
// Use Validate to collect every error instead.
func Build(decls []ir.UnitDecl) (*Graph, error) {
	g, errs := build(decls, true)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return g, nil
}

// Validate runs every structural check and returns all errors found.
// An empty result means Build would succeed.
func Validate(decls []ir.UnitDecl) []error {
	_, errs := build(decls, false)
	return errs
}

func build(decls []ir.UnitDecl, failFast bool) (*Graph, []error) {
	var errs []error
	fail := func(err error) bool {
		errs = append(errs, err)
		return failFast
	}

	g := &Graph{
		units:      make(map[string]*Unit, len(decls)),
		dependents: make(map[string][]string, len(decls)),
	}

	for i, d := range decls {
		id := strings.TrimSpace(d.ID)
		if id == "" || id != d.ID {
			if fail(&Error{Code: ErrCodeInvalidUnit, Message: fmt.Sprintf("declaration %d has an empty or padded id %q", i, d.ID)}) {
				return nil, errs
			}
			continue
		}
		if _, dup := g.units[id]; dup {
			if fail(&Error{Code: ErrCodeDuplicateUnit, Message: "unit declared more than once", UnitID: id}) {
				return nil, errs
			}
			continue
		}

		specHash, err := ir.UnitHash(d.Executor, d.Spec)
		if err != nil {
			if fail(&Error{Code: ErrCodeUnhashableSpec, Message: err.Error(), UnitID: id, Err: err}) {
				return nil, errs
			}
			// Keep the unit so dependency checks still see it.
		}

		spec := d.Spec
		if spec == nil {
			spec = ir.IRObject{}
		}
		g.units[id] = &Unit{
			ID:       id,
			Spec:     spec,
			Requires: dedupeStrings(d.Requires),
			Executor: d.Executor,
			Provides: sortedSet(d.Provides),
			Needs:    sortedSet(d.Needs),
			SpecHash: specHash,
		}
		g.ids = append(g.ids, id)
	}
	sort.Strings(g.ids)

	// Missing dependencies, in id order for deterministic reporting.
	for _, id := range g.ids {
		u := g.units[id]
		for _, dep := range u.Requires {
			if _, ok := g.units[dep]; !ok {
				if fail(newMissingDependencyError(id, dep)) {
					return nil, errs
				}
				continue
			}
			g.dependents[dep] = append(g.dependents[dep], id)
		}
	}
	for _, deps := range g.dependents {
		sort.Strings(deps)
	}

	// Cycle detection needs a closed graph; dangling edges are skipped.
	if cycle := g.findCycle(); cycle != nil {
		if fail(newCycleError(cycle)) {
			return nil, errs
		}
	}

	providers := make(map[string]bool)
	for _, id := range g.ids {
		for _, tag := range g.units[id].Provides {
			providers[tag] = true
		}
	}
	for _, id := range g.ids {
		for _, tag := range g.units[id].Needs {
			if !providers[tag] {
				if fail(newUnsatisfiedRequirementError(id, tag)) {
					return nil, errs
				}
			}
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return g, nil
}

// findCycle runs a depth-first traversal over requires edges, tracking the
// in-progress set. Returns the first cycle found as a closed path, or nil.
func (g *Graph) findCycle() []string {
	const (
		unvisited = iota
		inProgress
		done
	)
	state := make(map[string]int, len(g.ids))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		state[id] = inProgress
		stack = append(stack, id)
		for _, dep := range g.units[id].Requires {
			if _, ok := g.units[dep]; !ok {
				continue
			}
			switch state[dep] {
			case inProgress:
				start := slices.Index(stack, dep)
				path := slices.Clone(stack[start:])
				return append(path, dep)
			case unvisited:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return nil
	}

	for _, id := range g.ids {
		if state[id] == unvisited {
			if cycle := visit(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// Len returns the number of units.
func (g *Graph) Len() int {
	return len(g.ids)
}

// IDs returns all unit ids in sorted order.
func (g *Graph) IDs() []string {
	return slices.Clone(g.ids)
}

// Unit returns the unit with the given id.
func (g *Graph) Unit(id string) (*Unit, bool) {
	u, ok := g.units[id]
	return u, ok
}

// Units returns all units in id order.
func (g *Graph) Units() []*Unit {
	out := make([]*Unit, 0, len(g.ids))
	for _, id := range g.ids {
		out = append(out, g.units[id])
	}
	return out
}

// Dependents returns the ids of units that directly require id.
func (g *Graph) Dependents(id string) []string {
	return slices.Clone(g.dependents[id])
}

// Descendants returns every unit that transitively requires id, sorted.
func (g *Graph) Descendants(id string) []string {
	seen := make(map[string]bool)
	queue := slices.Clone(g.dependents[id])
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if seen[next] {
			continue
		}
		seen[next] = true
		queue = append(queue, g.dependents[next]...)
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func dedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func sortedSet(in []string) []string {
	out := dedupeStrings(in)
	sort.Strings(out)
	return out
}
