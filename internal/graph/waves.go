package graph

import "sort"

// Waves resolves the graph into an ordered sequence of waves.
//
// A unit's wave index is one plus the maximum wave index of its
// dependencies (0 for units with no dependencies), i.e. the length of the
// longest dependency chain ending at the unit. Units inside a wave have no
// edges between them and are sorted by id.
//
// Resolution is computed once per graph; callers receive a copy.
func (g *Graph) Waves() [][]string {
	g.resolve()
	out := make([][]string, len(g.waves))
	for i, w := range g.waves {
		out[i] = append([]string(nil), w...)
	}
	return out
}

// WaveOf returns the wave index of a unit, or -1 if the id is unknown.
func (g *Graph) WaveOf(id string) int {
	g.resolve()
	if w, ok := g.waveOf[id]; ok {
		return w
	}
	return -1
}

func (g *Graph) resolve() {
	g.resolveOnce.Do(func() {
		level := make(map[string]int, len(g.ids))

		// Build guarantees acyclicity, so memoized recursion terminates.
		var levelOf func(id string) int
		levelOf = func(id string) int {
			if l, ok := level[id]; ok {
				return l
			}
			l := 0
			for _, dep := range g.units[id].Requires {
				if dl := levelOf(dep) + 1; dl > l {
					l = dl
				}
			}
			level[id] = l
			return l
		}

		maxLevel := -1
		for _, id := range g.ids {
			if l := levelOf(id); l > maxLevel {
				maxLevel = l
			}
		}

		waves := make([][]string, maxLevel+1)
		for _, id := range g.ids {
			waves[level[id]] = append(waves[level[id]], id)
		}
		for _, w := range waves {
			sort.Strings(w)
		}
		g.waves = waves
		g.waveOf = level
	})
}
