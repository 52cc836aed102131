package tal

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"sync"
)

// ClassSuffix marks a root path token as a class reference, as in
// "math.class/Max(1, 2)".
const ClassSuffix = ".class"

// Class is the value a class reference evaluates to. Calling a method on
// it looks up the static functions defined for the class first.
type Class struct {
	Name string
	Type reflect.Type

	statics map[string][]reflect.Value
}

// NewClass creates a class. t may be nil for a pure function namespace.
func NewClass(name string, t reflect.Type) *Class {
	return &Class{Name: name, Type: t, statics: make(map[string][]reflect.Value)}
}

// Define adds a static function and returns c for chaining.
func (c *Class) Define(name string, fn any) *Class {
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func {
		panic(fmt.Sprintf("tal: static %s.%s is not a function", c.Name, name))
	}
	c.statics[name] = append(c.statics[name], fv)
	return c
}

func (c *Class) functions(name string) []reflect.Value {
	if fns, ok := c.statics[name]; ok {
		return fns
	}
	return c.statics[exportName(name)]
}

func (c *Class) GetName() string {
	return c.Name
}

// IsInstance reports whether v has exactly the class's type.
func (c *Class) IsInstance(v any) bool {
	if c.Type == nil || v == nil {
		return false
	}
	t := reflect.TypeOf(v)
	if c.Type.Kind() == reflect.Interface {
		return t.Implements(c.Type)
	}
	return t == c.Type
}

// IsAssignableFrom reports whether values of other can be assigned to c.
func (c *Class) IsAssignableFrom(other *Class) bool {
	if c.Type == nil || other == nil || other.Type == nil {
		return false
	}
	return other.Type.AssignableTo(c.Type)
}

func (c *Class) String() string {
	return "class " + c.Name
}

// ClassRegistry resolves class references by name.
type ClassRegistry struct {
	mu      sync.RWMutex
	classes map[string]*Class
}

// NewClassRegistry returns a registry holding the default classes.
func NewClassRegistry() *ClassRegistry {
	r := &ClassRegistry{classes: make(map[string]*Class)}
	for _, c := range defaultClasses() {
		r.Register(c)
	}
	return r
}

// Register adds or replaces a class.
func (r *ClassRegistry) Register(c *Class) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classes[c.Name] = c
}

func (r *ClassRegistry) Lookup(name string) (*Class, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.classes[name]
	return c, ok
}

func defaultClasses() []*Class {
	str := NewClass("strings", nil).
		Define("ToUpper", strings.ToUpper).
		Define("ToLower", strings.ToLower).
		Define("TrimSpace", strings.TrimSpace).
		Define("Contains", strings.Contains).
		Define("HasPrefix", strings.HasPrefix).
		Define("HasSuffix", strings.HasSuffix).
		Define("Repeat", strings.Repeat).
		Define("ReplaceAll", strings.ReplaceAll).
		Define("Split", strings.Split).
		Define("Join", func(elems []any, sep string) string {
			parts := make([]string, len(elems))
			for i, e := range elems {
				parts[i] = FormatValue(e)
			}
			return strings.Join(parts, sep)
		})

	conv := NewClass("strconv", nil).
		Define("Itoa", strconv.Itoa).
		Define("Quote", strconv.Quote).
		Define("FormatInt", strconv.FormatInt).
		Define("ParseInt", func(s string) (int, error) { return strconv.Atoi(s) }).
		Define("ParseFloat", func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })

	m := NewClass("math", nil).
		Define("Abs", math.Abs).
		Define("Max", math.Max).
		Define("Min", math.Min).
		Define("Floor", math.Floor).
		Define("Ceil", math.Ceil).
		Define("Sqrt", math.Sqrt).
		Define("Pow", math.Pow).
		Define("Round", math.Round)

	return []*Class{
		str, conv, m,
		NewClass("int", reflect.TypeOf(0)),
		NewClass("int64", reflect.TypeOf(int64(0))),
		NewClass("float32", reflect.TypeOf(float32(0))),
		NewClass("float64", reflect.TypeOf(float64(0))),
		NewClass("string", reflect.TypeOf("")),
		NewClass("bool", reflect.TypeOf(false)),
	}
}
