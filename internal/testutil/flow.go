package testutil

// FixedRunIDGenerator returns the same run id every time.
//
// Unlike engine.FixedGenerator, which returns ids in sequence and panics
// when exhausted, this generator suits tests that run the same graph an
// unknown number of times and compare rendered output.
//
// Thread-safety: FixedRunIDGenerator is stateless and safe for concurrent use.
type FixedRunIDGenerator struct {
	id string
}

// NewFixedRunIDGenerator creates a generator. An empty id defaults to
// "test-run-default".
func NewFixedRunIDGenerator(id string) *FixedRunIDGenerator {
	if id == "" {
		id = "test-run-default"
	}
	return &FixedRunIDGenerator{id: id}
}

// Generate returns the fixed run id.
func (g *FixedRunIDGenerator) Generate() string {
	return g.id
}
