package tal

import (
	"fmt"
	"iter"
	"strings"
)

// RepeatBinding is the reserved name under which active loops are
// published as a RepeatMap keyed by loop variable.
const RepeatBinding = "repeat"

// RepeatMap maps loop variable names to their active loops.
type RepeatMap map[string]*Loop

// Iterator is a source of repeat values whose length is not known in advance.
type Iterator interface {
	Next() (any, bool)
}

const romanOverflow = "<overflow>"

var (
	romanOnes      = [...]string{"", "i", "ii", "iii", "iv", "v", "vi", "vii", "viii", "ix"}
	romanTens      = [...]string{"", "x", "xx", "xxx", "xl", "l", "lx", "lxx", "lxxx", "xc"}
	romanHundreds  = [...]string{"", "c", "cc", "ccc", "cd", "d", "dc", "dcc", "dccc", "cm"}
	romanThousands = [...]string{"", "m", "mm", "mmm"}
)

// Loop tracks one active repetition. While the loop runs it is published
// in the repeat binding so expressions such as repeat/item/number can
// query it.
type Loop struct {
	name   string
	noop   bool
	next   func() (any, bool)
	stop   func()
	index  int
	length int

	peeked  bool
	peekVal any
	peekOK  bool

	prevLoop  *Loop
	prevValue any
	hadPrev   bool
	done      bool
}

// newLoop builds the loop for a repeat directive of the form
// "name expression". An empty directive gives a loop that runs once
// without binding anything.
func newLoop(directive string, env Environment, ev *Evaluator) (*Loop, error) {
	directive = strings.TrimSpace(directive)
	if directive == "" {
		return &Loop{noop: true, index: -1, length: 1}, nil
	}

	name, source, ok := strings.Cut(directive, " ")
	if !ok || strings.TrimSpace(source) == "" {
		return nil, &SyntaxError{Expression: directive, Message: "repeat requires a variable name and an expression"}
	}

	value, err := ev.Evaluate(strings.TrimSpace(source))
	if err != nil {
		return nil, err
	}

	l := &Loop{name: name, index: -1, length: -1}
	switch src := value.(type) {
	case Iterator:
		l.next = src.Next
	case iter.Seq[any]:
		l.next, l.stop = iter.Pull(src)
	case func(func(any) bool):
		l.next, l.stop = iter.Pull(iter.Seq[any](src))
	default:
		items, ok := boxSequence(value)
		if !ok {
			return nil, &EvaluationError{
				Expression: source,
				Message:    fmt.Sprintf("cannot repeat over %s", describe(value)),
			}
		}
		pos := 0
		l.length = len(items)
		l.next = func() (any, bool) {
			if pos >= len(items) {
				return nil, false
			}
			v := items[pos]
			pos++
			return v, true
		}
	}

	if err := l.register(env); err != nil {
		l.release()
		return nil, err
	}
	return l, nil
}

func describe(v any) string {
	if isNull(v) {
		return "null"
	}
	return fmt.Sprintf("%s (%T)", KindOf(v), v)
}

func (l *Loop) register(env Environment) error {
	prev, err := env.Get(l.name)
	if err != nil {
		return err
	}
	l.prevValue = prev
	if b, ok := env.(*Bindings); ok {
		l.hadPrev = b.Has(l.name)
	} else {
		l.hadPrev = prev != nil
	}

	repeat, err := repeatMap(env)
	if err != nil {
		return err
	}
	if repeat == nil {
		repeat = RepeatMap{}
		if err := env.Set(RepeatBinding, repeat); err != nil {
			return err
		}
	}
	l.prevLoop = repeat[l.name]
	repeat[l.name] = l
	return nil
}

func repeatMap(env Environment) (RepeatMap, error) {
	v, err := env.Get(RepeatBinding)
	if err != nil {
		return nil, err
	}
	repeat, _ := v.(RepeatMap)
	return repeat, nil
}

// Advance moves to the next item and binds it. Once the source is
// exhausted the loop restores the variable and the repeat entry it
// shadowed and reports false.
func (l *Loop) Advance(env Environment) (bool, error) {
	if l.done {
		return false, nil
	}
	if l.noop {
		if l.index < 0 {
			l.index = 0
			return true, nil
		}
		l.done = true
		return false, nil
	}

	v, ok := l.pull()
	if ok {
		l.index++
		if err := env.Set(l.name, v); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, l.Close(env)
}

// Close ends the loop early, restoring what it shadowed. It is safe to
// call more than once.
func (l *Loop) Close(env Environment) error {
	if l.done {
		return nil
	}
	l.done = true
	l.release()
	if l.noop {
		return nil
	}

	var err error
	if l.hadPrev {
		err = env.Set(l.name, l.prevValue)
	} else {
		err = env.Unset(l.name)
	}
	if err != nil {
		return err
	}

	repeat, err := repeatMap(env)
	if err != nil || repeat == nil {
		return err
	}
	if l.prevLoop != nil {
		repeat[l.name] = l.prevLoop
		return nil
	}
	delete(repeat, l.name)
	if len(repeat) == 0 {
		return env.Unset(RepeatBinding)
	}
	return nil
}

func (l *Loop) release() {
	if l.stop != nil {
		l.stop()
		l.stop = nil
	}
}

func (l *Loop) pull() (any, bool) {
	if l.peeked {
		l.peeked = false
		v := l.peekVal
		l.peekVal = nil
		return v, l.peekOK
	}
	return l.next()
}

// Name is the loop variable, empty for a loop that runs once.
func (l *Loop) Name() string {
	return l.name
}

// Index is zero-based.
func (l *Loop) Index() int {
	return l.index
}

// Number is one-based.
func (l *Loop) Number() int {
	return l.index + 1
}

func (l *Loop) Even() bool {
	return l.index%2 == 0
}

func (l *Loop) Odd() bool {
	return l.index%2 != 0
}

// Start reports whether the current item is the first.
func (l *Loop) Start() bool {
	return l.index == 0
}

// End reports whether the current item is the last. For sources of unknown
// length it peeks at the next item.
func (l *Loop) End() bool {
	if l.noop {
		return true
	}
	if l.done {
		return true
	}
	if !l.peeked {
		l.peekVal, l.peekOK = l.next()
		l.peeked = true
	}
	return !l.peekOK
}

// Length is the number of items, or -1 when the source did not say.
func (l *Loop) Length() int {
	return l.length
}

// Letter encodes Number like a spreadsheet column: a..z, aa, ab, ...
func (l *Loop) Letter() string {
	return letters(l.Number(), 'a')
}

func (l *Loop) CapitalLetter() string {
	return letters(l.Number(), 'A')
}

// Roman renders Number as a lower case roman numeral.
func (l *Loop) Roman() string {
	return roman(l.Number())
}

func (l *Loop) CapitalRoman() string {
	r := roman(l.Number())
	if r == romanOverflow {
		return r
	}
	return strings.ToUpper(r)
}

func letters(n int, base byte) string {
	if n <= 0 {
		return ""
	}
	var buf []byte
	for n > 0 {
		n--
		buf = append(buf, base+byte(n%26))
		n /= 26
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}

func roman(n int) string {
	if n >= 4000 {
		return romanOverflow
	}
	if n <= 0 {
		return ""
	}
	return romanThousands[n/1000] + romanHundreds[n/100%10] + romanTens[n/10%10] + romanOnes[n%10]
}
