package tal

import (
	"fmt"
	"reflect"
	"strconv"
)

// Kind classifies the values that flow through expression evaluation.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindSequence
	KindMapping
	KindLoop
	KindScript
	KindClass
	KindMacro
	KindFragment
	KindIncludable
	KindDefault
	KindObject
)

var kindNames = [...]string{
	KindNull:       "null",
	KindBool:       "bool",
	KindInt:        "int",
	KindFloat:      "float",
	KindString:     "string",
	KindSequence:   "sequence",
	KindMapping:    "mapping",
	KindLoop:       "loop",
	KindScript:     "script",
	KindClass:      "class",
	KindMacro:      "macro",
	KindFragment:   "fragment",
	KindIncludable: "includable",
	KindDefault:    "default",
	KindObject:     "object",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

type defaultMarker struct{}

func (defaultMarker) String() string { return "default" }

// Default is bound as "default". A content or attribute expression that
// yields it leaves the template's own content or attribute in place.
var Default = defaultMarker{}

// Script is a deferred piece of raw code. When a path resolves to a
// Script, its source is run through the environment's raw evaluator and
// the result takes its place.
type Script struct {
	Source string
	Path   string
}

// NewScript wraps source as a deferred script.
func NewScript(source string) *Script {
	return &Script{Source: source}
}

func (s *Script) String() string {
	return s.Source
}

// KindOf classifies v.
func KindOf(v any) Kind {
	if isNull(v) {
		return KindNull
	}
	switch v.(type) {
	case bool:
		return KindBool
	case string:
		return KindString
	case *Loop:
		return KindLoop
	case *Script:
		return KindScript
	case *Class:
		return KindClass
	case *Macro:
		return KindMacro
	case *Fragment:
		return KindFragment
	case *Includable:
		return KindIncludable
	case defaultMarker:
		return KindDefault
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return KindInt
	case reflect.Float32, reflect.Float64:
		return KindFloat
	case reflect.Bool:
		return KindBool
	case reflect.String:
		return KindString
	case reflect.Slice, reflect.Array:
		return KindSequence
	case reflect.Map:
		return KindMapping
	}
	return KindObject
}

// isNull treats typed nil pointers, maps, slices and funcs like nil.
func isNull(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// IsTruthy is the boolean coercion used by conditions, negation and
// omit-tag: null is false, strings and collections must be non-empty,
// numbers nonzero, everything else is true.
func IsTruthy(v any) bool {
	if isNull(v) {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b != ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.String:
		return rv.Len() > 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Chan:
		return rv.Len() > 0
	}
	return true
}

// FormatValue converts a value to its string representation
func FormatValue(value interface{}) string {
	if isNull(value) {
		return ""
	}

	switch v := value.(type) {
	case string:
		return v
	case int, int8, int16, int32, int64:
		return fmt.Sprintf("%d", v)
	case uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', 10, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', 15, 64)
	case bool:
		return strconv.FormatBool(v)
	case fmt.Stringer:
		return v.String()
	case error:
		return v.Error()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// boxSequence copies a slice or array of any element type into []any.
// It reports false for anything that is not a slice or array.
func boxSequence(v any) ([]any, bool) {
	if s, ok := v.([]any); ok {
		return s, true
	}
	if isNull(v) {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// toInt converts an integral value to int.
func toInt(v any) (int, bool) {
	if isNull(v) {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return int(rv.Uint()), true
	}
	return 0, false
}
