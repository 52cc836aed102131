package tal

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Expression prefixes, checked in this order before falling back to a path.
const (
	PrefixString = "string:"
	PrefixExists = "exists:"
	PrefixNot    = "not:"
	PrefixCode   = "code:"
	PrefixPath   = "path:"
)

var numericLiteral = regexp.MustCompile(`^-?(\d*?\.)?\d+[fFdDlL]?$`)

// Evaluator evaluates expressions against one environment.
type Evaluator struct {
	env          Environment
	introspector Introspector
	classes      *ClassRegistry
	logger       *Logger
}

// NewEvaluator returns an evaluator over env. A nil introspector or class
// registry is replaced by the defaults.
func NewEvaluator(env Environment, introspector Introspector, classes *ClassRegistry) *Evaluator {
	if introspector == nil {
		introspector = NewReflector()
	}
	if classes == nil {
		classes = NewClassRegistry()
	}
	return &Evaluator{
		env:          env,
		introspector: introspector,
		classes:      classes,
		logger:       GetLogger(),
	}
}

// Environment returns the environment the evaluator reads and writes.
func (e *Evaluator) Environment() Environment {
	return e.env
}

// Evaluate evaluates expr. Failures are *SyntaxError, *NoSuchPathError or
// *EvaluationError, carrying the expression they were raised for.
func (e *Evaluator) Evaluate(expr string) (any, error) {
	result, err := e.dispatch(expr)
	if err != nil {
		return nil, attachExpression(err, expr)
	}
	if e.logger.IsDebugMode() {
		e.logger.DebugExpression(expr, result)
	}
	return result, nil
}

// EvaluateBool evaluates expr and coerces the result with IsTruthy.
func (e *Evaluator) EvaluateBool(expr string) (bool, error) {
	v, err := e.Evaluate(expr)
	if err != nil {
		return false, err
	}
	return IsTruthy(v), nil
}

func (e *Evaluator) dispatch(expr string) (any, error) {
	expr = strings.TrimLeftFunc(expr, unicode.IsSpace)
	switch {
	case strings.HasPrefix(expr, PrefixString):
		return e.interpolate(expr[len(PrefixString):])
	case strings.HasPrefix(expr, PrefixExists):
		return e.exists(expr[len(PrefixExists):])
	case strings.HasPrefix(expr, PrefixNot):
		b, err := e.EvaluateBool(expr[len(PrefixNot):])
		if err != nil {
			return nil, err
		}
		return !b, nil
	case strings.HasPrefix(expr, PrefixCode):
		return e.raw(expr[len(PrefixCode):])
	default:
		return e.path(expr)
	}
}

const (
	stateText = iota
	stateDollar
	stateBareword
	stateBraced
)

// interpolate expands $name, ${expr} and $$ in s.
func (e *Evaluator) interpolate(s string) (string, error) {
	var out, sub strings.Builder
	state := stateText

	for _, ch := range s {
		switch state {
		case stateText:
			if ch == '$' {
				state = stateDollar
			} else {
				out.WriteRune(ch)
			}
		case stateDollar:
			switch ch {
			case '$':
				out.WriteByte('$')
				state = stateText
			case '{':
				sub.Reset()
				state = stateBraced
			default:
				sub.Reset()
				sub.WriteRune(ch)
				state = stateBareword
			}
		case stateBareword, stateBraced:
			if (state == stateBraced && ch == '}') || (state == stateBareword && unicode.IsSpace(ch)) {
				v, err := e.Evaluate(sub.String())
				if err != nil {
					return "", err
				}
				out.WriteString(FormatValue(v))
				if state == stateBareword {
					out.WriteRune(ch)
				}
				state = stateText
			} else {
				sub.WriteRune(ch)
			}
		}
	}

	switch state {
	case stateBraced:
		return "", &SyntaxError{Message: "unclosed left curly brace"}
	case stateBareword:
		v, err := e.Evaluate(sub.String())
		if err != nil {
			return "", err
		}
		out.WriteString(FormatValue(v))
	}
	return out.String(), nil
}

func (e *Evaluator) exists(expr string) (bool, error) {
	v, err := e.Evaluate(expr)
	if err != nil {
		if IsNoSuchPathError(err) {
			return false, nil
		}
		return false, err
	}
	return !isNull(v), nil
}

func (e *Evaluator) raw(code string) (any, error) {
	v, err := e.env.EvalRaw(code)
	if err != nil {
		return nil, &EvaluationError{Message: "raw code failed", Cause: err}
	}
	return v, nil
}

// path evaluates alternatives separated by '|', returning the first
// non-null one. A not-found error is raised only when the last
// alternative raised it.
func (e *Evaluator) path(expr string) (any, error) {
	if strings.TrimSpace(expr) == "" {
		return "", nil
	}
	expr = strings.TrimPrefix(expr, PrefixPath)

	segments, err := Split(expr, '|', false)
	if err != nil {
		return nil, err
	}
	if len(segments) == 1 {
		return e.segment(expr)
	}

	var notFound error
	for _, seg := range segments {
		notFound = nil
		v, err := e.Evaluate(strings.TrimSpace(seg))
		if err != nil {
			if IsNoSuchPathError(err) {
				notFound = err
				continue
			}
			return nil, err
		}
		if !isNull(v) {
			return v, nil
		}
	}
	if notFound != nil {
		return nil, notFound
	}
	return nil, nil
}

// segment resolves a single '/' separated path.
func (e *Evaluator) segment(expr string) (any, error) {
	if expr == "" {
		return "", nil
	}
	tokens, err := Split(expr, '/', false)
	if err != nil {
		return nil, err
	}

	token := strings.TrimSpace(tokens[0])
	result, err := e.rootToken(token)
	if err != nil {
		return nil, err
	}
	for _, next := range tokens[1:] {
		if isNull(result) {
			return nil, &NoSuchPathError{Expression: expr, Message: fmt.Sprintf("%s in '%s' is null", token, expr)}
		}
		token = strings.TrimSpace(next)
		if result, err = e.chainedToken(result, token); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (e *Evaluator) rootToken(token string) (any, error) {
	token, accessor := splitAccessor(token)

	result, err := e.literal(token)
	if err != nil {
		return nil, err
	}
	if result == nil {
		if result, err = e.env.Get(token); err != nil {
			return nil, wrapEnvError(err)
		}
	}

	if accessor != "" {
		if result, err = e.arrayAccess(token, result, accessor); err != nil {
			return nil, err
		}
	}
	return e.runScript(result)
}

// literal returns nil when token is not a literal.
func (e *Evaluator) literal(token string) (any, error) {
	if len(token) >= 2 && token[0] == '\'' && token[len(token)-1] == '\'' {
		return token[1 : len(token)-1], nil
	}
	if v, ok := parseNumber(token); ok {
		return v, nil
	}
	if strings.EqualFold(token, "true") {
		return true, nil
	}
	if strings.EqualFold(token, "false") {
		return false, nil
	}
	if name, ok := strings.CutSuffix(token, ClassSuffix); ok {
		if c, found := e.classes.Lookup(name); found {
			return c, nil
		}
	}
	return nil, nil
}

// parseNumber reads integer (int), long (int64, suffix l), float (float32,
// suffix f) and double (float64, suffix d or none) literals.
func parseNumber(token string) (any, bool) {
	m := numericLiteral.FindStringSubmatch(token)
	if m == nil {
		return nil, false
	}
	decimal := m[1] != ""
	last := token[len(token)-1]
	body := token
	suffix := byte(0)
	if strings.ContainsRune("fFdDlL", rune(last)) {
		suffix = last | 0x20
		body = token[:len(token)-1]
	}

	switch {
	case !decimal && suffix == 'l':
		if v, err := strconv.ParseInt(body, 10, 64); err == nil {
			return v, true
		}
	case !decimal && suffix == 0:
		if v, err := strconv.Atoi(body); err == nil {
			return v, true
		}
	case decimal && suffix == 'f':
		if v, err := strconv.ParseFloat(body, 32); err == nil {
			return float32(v), true
		}
	case decimal && (suffix == 'd' || suffix == 0):
		if v, err := strconv.ParseFloat(body, 64); err == nil {
			return v, true
		}
	}
	return nil, false
}

func (e *Evaluator) chainedToken(parent any, token string) (any, error) {
	token, accessor := splitAccessor(token)

	var result any
	var err error
	switch {
	case strings.HasPrefix(token, "?"):
		var name any
		if name, err = e.rootToken(token[1:]); err != nil {
			return nil, err
		}
		return e.chainedToken(parent, FormatValue(name)+accessor)

	case strings.Contains(token, "("):
		if !strings.HasSuffix(token, ")") {
			return nil, evalErrorf("bad method call: %s", token)
		}
		open := strings.IndexByte(token, '(')
		result, err = e.methodCall(parent, strings.TrimSpace(token[:open]), token[open+1:len(token)-1])

	default:
		result, err = e.introspector.ReadProperty(parent, token)
	}
	if err != nil {
		return nil, err
	}

	if accessor != "" {
		if result, err = e.arrayAccess(token, result, accessor); err != nil {
			return nil, err
		}
	}
	return e.runScript(result)
}

func (e *Evaluator) methodCall(target any, name, argString string) (any, error) {
	var args []any
	if strings.TrimSpace(argString) != "" {
		parts, err := Split(argString, ',', false)
		if err != nil {
			return nil, err
		}
		args = make([]any, len(parts))
		for i, p := range parts {
			if args[i], err = e.Evaluate(strings.TrimSpace(p)); err != nil {
				return nil, err
			}
		}
	}
	return e.introspector.Invoke(target, name, args)
}

// splitAccessor separates a trailing "[...]" group from token, skipping
// brackets inside parentheses or quotes.
func splitAccessor(token string) (string, string) {
	depth := 0
	quoted := false
	for i := 0; i < len(token); i++ {
		switch c := token[i]; {
		case quoted:
			if c == '\'' {
				quoted = false
			}
		case c == '\'':
			quoted = true
		case c == '(':
			depth++
		case c == ')':
			depth--
		case c == '[' && depth == 0:
			return strings.TrimSpace(token[:i]), strings.TrimSpace(token[i:])
		}
	}
	return token, ""
}

// arrayAccess applies one or more "[expr]" groups to value.
func (e *Evaluator) arrayAccess(token string, value any, accessor string) (any, error) {
	end := matchingBracket(accessor)
	if accessor == "" || accessor[0] != '[' || end < 0 {
		return nil, evalErrorf("bad array accessor for %s: %s", token, accessor)
	}
	if isNull(value) {
		return nil, evalErrorf("%s is null", token)
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, evalErrorf("%s is not an array: %T", token, value)
	}
	idx, err := e.Evaluate(accessor[1:end])
	if err != nil {
		return nil, err
	}
	i, ok := toInt(idx)
	if !ok {
		return nil, evalErrorf("array index must be an integer, got %s", describe(idx))
	}
	if i < 0 || i >= rv.Len() {
		return nil, evalErrorf("array index %d out of bounds for %s of length %d", i, token, rv.Len())
	}

	result := rv.Index(i).Interface()
	if rest := strings.TrimSpace(accessor[end+1:]); rest != "" {
		return e.arrayAccess(token+accessor[:end+1], result, rest)
	}
	return result, nil
}

// matchingBracket finds the ']' closing the '[' at s[0], or -1.
func matchingBracket(s string) int {
	depth := 0
	quoted := false
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case quoted:
			if c == '\'' {
				quoted = false
			}
		case c == '\'':
			quoted = true
		case c == '[':
			depth++
		case c == ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func (e *Evaluator) runScript(v any) (any, error) {
	s, ok := v.(*Script)
	if !ok || s == nil {
		return v, nil
	}
	result, err := e.env.EvalRaw(s.Source)
	if err != nil {
		return nil, &EvaluationError{Message: "problem evaluating script " + s.Source, Cause: err}
	}
	return result, nil
}

func wrapEnvError(err error) error {
	if _, ok := err.(expressionError); ok {
		return err
	}
	return &EvaluationError{Cause: err}
}
