// Package compiler turns graph declaration files into unit declarations.
//
// Two source formats are supported:
//
//	# YAML (.yaml, .yml, .json)
//	units:
//	  - id: fetch
//	    executor: shell
//	    spec: {run: "curl -s https://example.com"}
//	  - id: parse
//	    requires: [fetch]
//	    spec: {format: csv}
//
//	// CUE (.cue file or a directory of .cue files)
//	units: {
//		fetch: {executor: "shell", spec: run: "curl -s https://example.com"}
//		parse: {requires: ["fetch"], spec: format: "csv"}
//	}
//
// Specs must map onto the IR value model: floats and null are rejected at
// load time so every loaded spec is hashable. Structural checks (missing
// dependencies, cycles, capabilities) belong to graph.Build.
package compiler
