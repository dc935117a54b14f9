package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/skillwave/internal/ir"
)

// CompileCUEBytes compiles a single CUE source file.
func CompileCUEBytes(data []byte, filename string) ([]ir.UnitDecl, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileCUE(v)
}

// LoadCUEDir loads every .cue file in dir as one package instance.
func LoadCUEDir(dir string) ([]ir.UnitDecl, error) {
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading CUE files: %w", inst.Err)
	}

	ctx := cuecontext.New()
	v := ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileCUE(v)
}

// CompileCUE extracts unit declarations from the top-level "units" struct.
// Unit ids are the struct labels, in declaration order.
func CompileCUE(v cue.Value) ([]ir.UnitDecl, error) {
	unitsVal := v.LookupPath(cue.ParsePath("units"))
	if !unitsVal.Exists() {
		return nil, &CompileError{Field: "units", Message: "units is required", Pos: v.Pos()}
	}
	if err := unitsVal.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	iter, err := unitsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var decls []ir.UnitDecl
	for iter.Next() {
		decl, err := compileUnit(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		decls = append(decls, decl)
	}
	if len(decls) == 0 {
		return nil, &CompileError{Field: "units", Message: "at least one unit is required", Pos: unitsVal.Pos()}
	}
	return decls, nil
}

func compileUnit(id string, v cue.Value) (ir.UnitDecl, error) {
	decl := ir.UnitDecl{ID: id, Spec: ir.IRObject{}}
	field := "units." + id

	if ex := v.LookupPath(cue.ParsePath("executor")); ex.Exists() {
		s, err := ex.String()
		if err != nil {
			return decl, formatCUEError(err)
		}
		decl.Executor = s
	}

	if specVal := v.LookupPath(cue.ParsePath("spec")); specVal.Exists() {
		raw, err := cueToGo(specVal, field+".spec")
		if err != nil {
			return decl, err
		}
		m, ok := raw.(map[string]any)
		if !ok {
			return decl, &CompileError{Field: field + ".spec", Message: "spec must be a struct", Pos: specVal.Pos()}
		}
		spec, err := ir.ObjectFromGo(m)
		if err != nil {
			return decl, &CompileError{Field: field + ".spec", Message: err.Error(), Pos: specVal.Pos()}
		}
		decl.Spec = spec
	}

	var err error
	if decl.Requires, err = stringList(v, "requires", field); err != nil {
		return decl, err
	}
	if decl.Provides, err = stringList(v, "provides", field); err != nil {
		return decl, err
	}
	if decl.Needs, err = stringList(v, "needs", field); err != nil {
		return decl, err
	}
	return decl, nil
}

func stringList(v cue.Value, name, field string) ([]string, error) {
	lv := v.LookupPath(cue.ParsePath(name))
	if !lv.Exists() {
		return nil, nil
	}
	iter, err := lv.List()
	if err != nil {
		return nil, &CompileError{Field: field + "." + name, Message: "must be a list of strings", Pos: lv.Pos()}
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{Field: field + "." + name, Message: "must be a list of strings", Pos: iter.Value().Pos()}
		}
		out = append(out, s)
	}
	return out, nil
}

// cueToGo converts a concrete CUE value into the Go shapes accepted by
// ir.FromGo. Floats and null are forbidden.
func cueToGo(v cue.Value, field string) (any, error) {
	switch v.Kind() {
	case cue.StringKind:
		return v.String()
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
		}
		return n, nil
	case cue.BoolKind:
		return v.Bool()
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		var out []any
		for i := 0; iter.Next(); i++ {
			elem, err := cueToGo(iter.Value(), fmt.Sprintf("%s[%d]", field, i))
			if err != nil {
				return nil, err
			}
			out = append(out, elem)
		}
		if out == nil {
			out = []any{}
		}
		return out, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out := make(map[string]any)
		for iter.Next() {
			label := iter.Label()
			elem, err := cueToGo(iter.Value(), field+"."+label)
			if err != nil {
				return nil, err
			}
			out[label] = elem
		}
		return out, nil
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{Field: field, Message: "floats are forbidden, use int instead", Pos: v.Pos()}
	case cue.NullKind:
		return nil, &CompileError{Field: field, Message: "null is forbidden", Pos: v.Pos()}
	default:
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("unsupported value kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}
