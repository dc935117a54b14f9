package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/skillwave/internal/ir"
)

// LoadFile reads unit declarations from path, choosing the format by
// extension. A directory is loaded as a CUE package.
func LoadFile(path string) ([]ir.UnitDecl, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("graph file: %w", err)
	}
	if info.IsDir() {
		return LoadCUEDir(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("graph file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml", ".json":
		return CompileYAML(data, path)
	case ".cue":
		return CompileCUEBytes(data, path)
	default:
		return nil, fmt.Errorf("graph file %s: unsupported extension %q (want .yaml, .yml, .json or .cue)", path, ext)
	}
}
