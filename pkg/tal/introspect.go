package tal

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// Introspector gives the evaluator access to properties and methods of
// host values.
type Introspector interface {
	ReadProperty(obj any, name string) (any, error)
	Invoke(target any, name string, args []any) (any, error)
}

var (
	errorType = reflect.TypeOf((*error)(nil)).Elem()
	anySlice  = reflect.TypeOf([]any(nil))
)

// Reflector is the default Introspector. Properties resolve through map
// keys, sequence indexes, zero-argument getter methods and struct fields.
// Methods resolve against the value's own method set and then against a
// table of builtin methods registered per reflect.Kind.
type Reflector struct {
	mu       sync.RWMutex
	builtins map[reflect.Kind]map[string][]reflect.Value
}

// NewReflector returns a Reflector with the builtin string, sequence and
// mapping methods installed.
func NewReflector() *Reflector {
	r := &Reflector{builtins: make(map[reflect.Kind]map[string][]reflect.Value)}
	for name, fn := range stringMethods {
		r.mustRegister(reflect.String, name, fn)
	}
	for _, kind := range []reflect.Kind{reflect.Slice, reflect.Array} {
		for name, fn := range sequenceMethods {
			r.mustRegister(kind, name, fn)
		}
	}
	for name, fn := range mappingMethods {
		r.mustRegister(reflect.Map, name, fn)
	}
	return r
}

func (r *Reflector) mustRegister(kind reflect.Kind, name string, fn any) {
	if err := r.RegisterMethod(kind, name, fn); err != nil {
		panic(err)
	}
}

// RegisterMethod makes fn callable as a method named name on every value
// of the given kind. The first parameter of fn receives the target.
func (r *Reflector) RegisterMethod(kind reflect.Kind, name string, fn any) error {
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func || fv.Type().NumIn() == 0 {
		return fmt.Errorf("method %q must be a function taking the target as first argument", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	table := r.builtins[kind]
	if table == nil {
		table = make(map[string][]reflect.Value)
		r.builtins[kind] = table
	}
	table[name] = append(table[name], fv)
	return nil
}

func (r *Reflector) builtin(kind reflect.Kind, name string) []reflect.Value {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.builtins[kind][name]
}

// ReadProperty implements Introspector.
func (r *Reflector) ReadProperty(obj any, name string) (any, error) {
	if isNull(obj) {
		return nil, &NoSuchPathError{Message: fmt.Sprintf("property '%s' of null", name)}
	}
	rv := reflect.ValueOf(obj)

	switch rv.Kind() {
	case reflect.Map:
		if key, ok := mapKey(rv.Type().Key(), name); ok {
			v := rv.MapIndex(key)
			if !v.IsValid() {
				return nil, nil
			}
			return v.Interface(), nil
		}
	case reflect.Slice, reflect.Array:
		if i, err := strconv.Atoi(name); err == nil && i >= 0 && i < rv.Len() {
			return rv.Index(i).Interface(), nil
		}
	}

	exported := exportName(name)
	for _, candidate := range []string{exported, "Get" + exported, "Is" + exported} {
		m := rv.MethodByName(candidate)
		if !m.IsValid() {
			continue
		}
		if m.Type().NumIn() != 0 || m.Type().NumOut() == 0 {
			return nil, evalErrorf("property '%s' of %T can't be read", name, obj)
		}
		return callFunc(m, nil)
	}

	if v, ok := structField(rv, name); ok {
		return v, nil
	}

	if fns := r.builtin(rv.Kind(), name); len(fns) > 0 {
		for _, fn := range fns {
			if fn.Type().NumIn() == 1 {
				if in, ok := convertArgs(fn.Type(), []any{obj}); ok {
					return callFunc(fn, in)
				}
			}
		}
	}

	return nil, evalErrorf("no such property '%s' on %T", name, obj)
}

// Invoke implements Introspector.
func (r *Reflector) Invoke(target any, name string, args []any) (any, error) {
	if isNull(target) {
		return nil, &NoSuchPathError{Message: fmt.Sprintf("method '%s' called on null", name)}
	}

	if c, ok := target.(*Class); ok {
		for _, fn := range c.functions(name) {
			if in, ok := convertArgs(fn.Type(), args); ok {
				return callFunc(fn, in)
			}
		}
	}

	rv := reflect.ValueOf(target)
	seen := map[string]bool{}
	for _, candidate := range []string{name, exportName(name)} {
		if seen[candidate] {
			continue
		}
		seen[candidate] = true
		m := rv.MethodByName(candidate)
		if !m.IsValid() {
			continue
		}
		if in, ok := convertArgs(m.Type(), args); ok {
			return callFunc(m, in)
		}
	}

	withTarget := append([]any{target}, args...)
	for _, fn := range r.builtin(rv.Kind(), name) {
		if in, ok := convertArgs(fn.Type(), withTarget); ok {
			return callFunc(fn, in)
		}
	}

	return nil, evalErrorf("no such method: %s.%s(%s)", typeName(target), name, signature(args))
}

func typeName(v any) string {
	if c, ok := v.(*Class); ok {
		return c.Name
	}
	return fmt.Sprintf("%T", v)
}

func signature(args []any) string {
	parts := make([]string, len(args))
	for i, a := range args {
		if a == nil {
			parts[i] = "null"
		} else {
			parts[i] = fmt.Sprintf("%T", a)
		}
	}
	return strings.Join(parts, ", ")
}

func exportName(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}

func mapKey(keyType reflect.Type, name string) (reflect.Value, bool) {
	switch {
	case keyType.Kind() == reflect.String:
		return reflect.ValueOf(name).Convert(keyType), true
	case keyType.Kind() == reflect.Interface && reflect.TypeOf(name).Implements(keyType):
		return reflect.ValueOf(name), true
	}
	return reflect.Value{}, false
}

func structField(rv reflect.Value, name string) (any, bool) {
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, false
	}
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if tag, ok := f.Tag.Lookup("tal"); ok && tag == name {
			return rv.Field(i).Interface(), true
		}
	}
	if f, ok := t.FieldByName(exportName(name)); ok && f.IsExported() {
		return rv.FieldByIndex(f.Index).Interface(), true
	}
	return nil, false
}

// convertArgs matches args against the parameters of a function type.
// Null is accepted for every parameter; numbers convert between numeric
// kinds as long as no fraction is lost.
func convertArgs(ft reflect.Type, args []any) ([]reflect.Value, bool) {
	n := ft.NumIn()
	if ft.IsVariadic() {
		if len(args) < n-1 {
			return nil, false
		}
	} else if len(args) != n {
		return nil, false
	}

	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		var pt reflect.Type
		if ft.IsVariadic() && i >= n-1 {
			pt = ft.In(n - 1).Elem()
		} else {
			pt = ft.In(i)
		}
		v, ok := convertArg(arg, pt)
		if !ok {
			return nil, false
		}
		in[i] = v
	}
	return in, true
}

func convertArg(arg any, t reflect.Type) (reflect.Value, bool) {
	if isNull(arg) {
		return reflect.Zero(t), true
	}
	av := reflect.ValueOf(arg)
	if av.Type().AssignableTo(t) {
		return av, true
	}
	switch {
	case isIntKind(av.Kind()) && (isIntKind(t.Kind()) || isFloatKind(t.Kind())):
		return av.Convert(t), true
	case isFloatKind(av.Kind()) && isFloatKind(t.Kind()):
		return av.Convert(t), true
	case isFloatKind(av.Kind()) && isIntKind(t.Kind()):
		f := av.Float()
		if f != float64(int64(f)) {
			return reflect.Value{}, false
		}
		return reflect.ValueOf(int64(f)).Convert(t), true
	case av.Kind() == reflect.String && t.Kind() == reflect.String:
		return av.Convert(t), true
	case t == anySlice:
		if boxed, ok := boxSequence(arg); ok {
			return reflect.ValueOf(boxed), true
		}
	}
	return reflect.Value{}, false
}

func isIntKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func isFloatKind(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

// callFunc calls fn and folds a trailing error result into the returned
// error. Panics inside fn become evaluation errors.
func callFunc(fn reflect.Value, in []reflect.Value) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &EvaluationError{Message: "call failed", Cause: RecoverError(r)}
		}
	}()

	out := fn.Call(in)
	ft := fn.Type()
	if len(out) > 0 && ft.Out(len(out)-1) == errorType {
		if e := out[len(out)-1]; !e.IsNil() {
			return nil, &EvaluationError{Cause: e.Interface().(error)}
		}
		out = out[:len(out)-1]
	}
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return out[0].Interface(), nil
	default:
		vals := make([]any, len(out))
		for i, o := range out {
			vals[i] = o.Interface()
		}
		return vals, nil
	}
}

var stringMethods = map[string]any{
	"length":      utf8.RuneCountInString,
	"size":        utf8.RuneCountInString,
	"isEmpty":     func(s string) bool { return s == "" },
	"toUpperCase": strings.ToUpper,
	"toLowerCase": strings.ToLower,
	"trim":        strings.TrimSpace,
	"contains":    strings.Contains,
	"startsWith":  strings.HasPrefix,
	"endsWith":    strings.HasSuffix,
	"indexOf":     strings.Index,
	"substring":   substring,
	"replace":     strings.ReplaceAll,
	"split":       strings.Split,
	"concat":      func(s, other string) string { return s + other },
	"equals":      func(s string, other any) bool { o, ok := other.(string); return ok && o == s },
}

// substring takes rune offsets; with one bound it runs to the end.
func substring(s string, bounds ...int) (string, error) {
	runes := []rune(s)
	start, end := 0, len(runes)
	switch len(bounds) {
	case 1:
		start = bounds[0]
	case 2:
		start, end = bounds[0], bounds[1]
	default:
		return "", fmt.Errorf("substring takes one or two bounds")
	}
	if start < 0 || end > len(runes) || start > end {
		return "", fmt.Errorf("substring bounds [%d:%d] out of range for length %d", start, end, len(runes))
	}
	return string(runes[start:end]), nil
}

var sequenceMethods = map[string]any{
	"size":    func(s []any) int { return len(s) },
	"length":  func(s []any) int { return len(s) },
	"isEmpty": func(s []any) bool { return len(s) == 0 },
	"get": func(s []any, i int) (any, error) {
		if i < 0 || i >= len(s) {
			return nil, fmt.Errorf("index %d out of range for length %d", i, len(s))
		}
		return s[i], nil
	},
	"contains": func(s []any, v any) bool { return indexOf(s, v) >= 0 },
	"indexOf":  indexOf,
}

func indexOf(s []any, v any) int {
	for i, e := range s {
		if reflect.DeepEqual(e, v) {
			return i
		}
	}
	return -1
}

var mappingMethods = map[string]any{
	"size":    func(m any) int { return reflect.ValueOf(m).Len() },
	"isEmpty": func(m any) bool { return reflect.ValueOf(m).Len() == 0 },
	"get": func(m any, key any) any {
		return mapLookup(m, key)
	},
	"containsKey": func(m any, key any) bool {
		rv := reflect.ValueOf(m)
		k := reflect.ValueOf(key)
		if !k.IsValid() || !k.Type().AssignableTo(rv.Type().Key()) {
			return false
		}
		return rv.MapIndex(k).IsValid()
	},
	"keys": func(m any) []any {
		rv := reflect.ValueOf(m)
		keys := make([]any, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.Interface())
		}
		sort.Slice(keys, func(i, j int) bool { return FormatValue(keys[i]) < FormatValue(keys[j]) })
		return keys
	},
}

func mapLookup(m any, key any) any {
	rv := reflect.ValueOf(m)
	k := reflect.ValueOf(key)
	if !k.IsValid() {
		return nil
	}
	if !k.Type().AssignableTo(rv.Type().Key()) {
		if !k.Type().ConvertibleTo(rv.Type().Key()) || k.Kind() != rv.Type().Key().Kind() {
			return nil
		}
		k = k.Convert(rv.Type().Key())
	}
	v := rv.MapIndex(k)
	if !v.IsValid() {
		return nil
	}
	return v.Interface()
}
