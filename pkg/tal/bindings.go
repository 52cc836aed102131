package tal

import (
	"fmt"
	"math/big"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Environment holds the variables of one render pass and evaluates the
// raw code escape.
type Environment interface {
	Get(name string) (any, error)
	Set(name string, value any) error
	Unset(name string) error
	EvalRaw(code string) (any, error)
}

// Bindings is the default Environment. Reading a name that was never set
// yields nil. Raw code is HCL: each line is either an expression or an
// assignment of the form "name = expression", and the value of the last
// line is returned.
type Bindings struct {
	vars      map[string]any
	functions map[string]function.Function
}

// NewBindings creates an empty environment. Functions callable from raw
// code are the HCL standard functions plus extra; extra wins on clashes.
func NewBindings(extra map[string]function.Function) *Bindings {
	fns := DefaultFunctions()
	for name, fn := range extra {
		fns[name] = fn
	}
	return &Bindings{vars: make(map[string]any), functions: fns}
}

func (b *Bindings) Get(name string) (any, error) {
	return b.vars[name], nil
}

func (b *Bindings) Set(name string, value any) error {
	b.vars[name] = value
	return nil
}

func (b *Bindings) Unset(name string) error {
	delete(b.vars, name)
	return nil
}

// Has reports whether name is bound, even to nil.
func (b *Bindings) Has(name string) bool {
	_, ok := b.vars[name]
	return ok
}

// Names lists bound names in sorted order.
func (b *Bindings) Names() []string {
	names := make([]string, 0, len(b.vars))
	for k := range b.vars {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

var assignment = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\s*=([^=].*)$`)

func (b *Bindings) EvalRaw(code string) (any, error) {
	var result any
	for _, line := range strings.Split(code, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if m := assignment.FindStringSubmatch(line); m != nil {
			v, err := b.evalHCL(m[2])
			if err != nil {
				return nil, err
			}
			b.vars[m[1]] = v
			result = v
			continue
		}
		v, err := b.evalHCL(line)
		if err != nil {
			return nil, err
		}
		result = v
	}
	return result, nil
}

func (b *Bindings) evalHCL(src string) (any, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(strings.TrimSpace(src)), "raw", hcl.Pos{Line: 1, Column: 1, Byte: 0})
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse: %s", diags.Error())
	}

	vars := make(map[string]cty.Value)
	for _, traversal := range expr.Variables() {
		root := traversal.RootName()
		if _, done := vars[root]; done {
			continue
		}
		v, ok := b.vars[root]
		if !ok {
			continue
		}
		cv, err := toCty(v)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", root, err)
		}
		vars[root] = cv
	}

	val, diags := expr.Value(&hcl.EvalContext{Variables: vars, Functions: b.functions})
	if diags.HasErrors() {
		return nil, fmt.Errorf("%s", diags.Error())
	}
	return fromCty(val)
}

// DefaultFunctions returns the functions available to raw code.
func DefaultFunctions() map[string]function.Function {
	return map[string]function.Function{
		"abs":        stdlib.AbsoluteFunc,
		"ceil":       stdlib.CeilFunc,
		"coalesce":   stdlib.CoalesceFunc,
		"concat":     stdlib.ConcatFunc,
		"floor":      stdlib.FloorFunc,
		"format":     stdlib.FormatFunc,
		"int":        stdlib.IntFunc,
		"join":       stdlib.JoinFunc,
		"jsonencode": stdlib.JSONEncodeFunc,
		"keys":       stdlib.KeysFunc,
		"length":     stdlib.LengthFunc,
		"lower":      stdlib.LowerFunc,
		"max":        stdlib.MaxFunc,
		"min":        stdlib.MinFunc,
		"replace":    stdlib.ReplaceFunc,
		"split":      stdlib.SplitFunc,
		"strlen":     stdlib.StrlenFunc,
		"substr":     stdlib.SubstrFunc,
		"trimspace":  stdlib.TrimSpaceFunc,
		"upper":      stdlib.UpperFunc,
		"values":     stdlib.ValuesFunc,
	}
}

// toCty converts a Go value into its cty counterpart.
func toCty(v any) (cty.Value, error) {
	if isNull(v) {
		return cty.NullVal(cty.DynamicPseudoType), nil
	}
	switch t := v.(type) {
	case cty.Value:
		return t, nil
	case string:
		return cty.StringVal(t), nil
	case bool:
		return cty.BoolVal(t), nil
	case float64:
		return cty.NumberFloatVal(t), nil
	case *Loop:
		return cty.ObjectVal(map[string]cty.Value{
			"index":  cty.NumberIntVal(int64(t.Index())),
			"number": cty.NumberIntVal(int64(t.Number())),
			"even":   cty.BoolVal(t.Even()),
			"odd":    cty.BoolVal(t.Odd()),
			"start":  cty.BoolVal(t.Start()),
			"end":    cty.BoolVal(t.End()),
			"length": cty.NumberIntVal(int64(t.Length())),
		}), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return cty.NumberIntVal(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return cty.NumberUIntVal(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return cty.NumberFloatVal(rv.Float()), nil
	case reflect.String:
		return cty.StringVal(rv.String()), nil
	case reflect.Bool:
		return cty.BoolVal(rv.Bool()), nil
	case reflect.Slice, reflect.Array:
		if rv.Len() == 0 {
			return cty.EmptyTupleVal, nil
		}
		elems := make([]cty.Value, rv.Len())
		for i := range elems {
			ev, err := toCty(rv.Index(i).Interface())
			if err != nil {
				return cty.NilVal, err
			}
			elems[i] = ev
		}
		return cty.TupleVal(elems), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return cty.NilVal, fmt.Errorf("unsupported map key type %s", rv.Type().Key())
		}
		if rv.Len() == 0 {
			return cty.EmptyObjectVal, nil
		}
		attrs := make(map[string]cty.Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			av, err := toCty(iter.Value().Interface())
			if err != nil {
				return cty.NilVal, err
			}
			attrs[iter.Key().String()] = av
		}
		return cty.ObjectVal(attrs), nil
	case reflect.Ptr:
		return toCty(rv.Elem().Interface())
	case reflect.Struct:
		attrs := make(map[string]cty.Value)
		t := rv.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			name := f.Name
			if tag, ok := f.Tag.Lookup("tal"); ok && tag != "" {
				name = tag
			}
			av, err := toCty(rv.Field(i).Interface())
			if err != nil {
				return cty.NilVal, err
			}
			attrs[name] = av
		}
		if len(attrs) == 0 {
			return cty.EmptyObjectVal, nil
		}
		return cty.ObjectVal(attrs), nil
	}
	return cty.NilVal, fmt.Errorf("unsupported type %T", v)
}

// fromCty converts a cty value back into plain Go values. Whole numbers
// that fit become int, other numbers float64.
func fromCty(val cty.Value) (any, error) {
	if val.IsNull() {
		return nil, nil
	}
	if !val.IsKnown() {
		return nil, fmt.Errorf("value is unknown")
	}
	ty := val.Type()
	switch {
	case ty == cty.String:
		return val.AsString(), nil
	case ty == cty.Bool:
		return val.True(), nil
	case ty == cty.Number:
		bf := val.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact && int64(int(i)) == i {
				return int(i), nil
			}
		}
		f, _ := bf.Float64()
		return f, nil
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]any, 0, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			gv, err := fromCty(ev)
			if err != nil {
				return nil, err
			}
			out = append(out, gv)
		}
		return out, nil
	case ty.IsMapType() || ty.IsObjectType():
		out := make(map[string]any)
		for it := val.ElementIterator(); it.Next(); {
			k, ev := it.Element()
			gv, err := fromCty(ev)
			if err != nil {
				return nil, fmt.Errorf("in attribute '%s': %w", k.AsString(), err)
			}
			out[k.AsString()] = gv
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported cty type %s", ty.FriendlyName())
}
