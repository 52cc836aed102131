package tal

import (
	"errors"
	"fmt"
	"strings"

	"github.com/benjaminschreck/go-tal/pkg/tal/markup"
)

// Reserved bindings set for every render.
const (
	HereBinding     = "here"
	TemplateBinding = "template"
	ResolverBinding = "resolver"
	DefaultBinding  = "default"
	NothingBinding  = "nothing"
	AttrsBinding    = "attrs"
)

// Content prefixes.
const (
	structurePrefix = "structure "
	textPrefix      = "text "
)

type loopFrame struct {
	loop *Loop
	env  Environment
}

// renderer carries the state of one render pass. It is never shared
// between goroutines.
type renderer struct {
	tmpl  *Template
	env   Environment
	eval  *Evaluator
	out   markup.Writer
	slots []map[string]*Slot
	loops []loopFrame
	depth int
}

func newRenderer(t *Template, env Environment, out markup.Writer) *renderer {
	return &renderer{
		tmpl: t,
		env:  env,
		eval: t.engine.evaluator(env),
		out:  out,
	}
}

func (r *renderer) config() *Config {
	return r.tmpl.config
}

// document renders the whole template, with the declaration and doctype
// first when declare is set.
func (r *renderer) document(declare bool) error {
	if declare {
		if err := r.write(r.out.StartDocument()); err != nil {
			return err
		}
		if dt := r.tmpl.doc.DocType; dt != nil {
			if err := r.write(r.out.DTD(dt)); err != nil {
				return err
			}
		}
	}
	if err := r.child(r.tmpl.doc.Root); err != nil {
		r.unwind(0, 0)
		return err
	}
	return r.write(r.out.EndDocument())
}

// child renders el. Expression faults raised while rendering it are
// reported and swallowed unless strict mode is on, so rendering resumes
// with the next sibling.
func (r *renderer) child(el *markup.Element) error {
	loopMark, slotMark := len(r.loops), len(r.slots)
	err := r.element(el)
	if err == nil {
		return nil
	}
	r.unwind(loopMark, slotMark)
	if !IsRecoverable(err) || r.config().StrictMode {
		return err
	}
	r.fault(el, err)
	return nil
}

func (r *renderer) unwind(loopMark, slotMark int) {
	for i := len(r.loops) - 1; i >= loopMark; i-- {
		f := r.loops[i]
		if err := f.loop.Close(f.env); err != nil {
			r.tmpl.engine.logger.WithError(err).Warn("could not restore bindings of loop %q", f.loop.Name())
		}
	}
	r.loops = r.loops[:loopMark]
	if len(r.slots) > slotMark {
		r.slots = r.slots[:slotMark]
	}
}

func (r *renderer) fault(el *markup.Element, err error) {
	f := Fault{Element: el.Name.Qualified(), Expression: faultExpression(err), Err: err}
	entry := r.tmpl.engine.logger.WithFields(Fields{
		"element":    f.Element,
		"expression": f.Expression,
	})
	if r.config().LogFaultsAsWarn {
		entry.Warn("skipping element: %v", err)
	} else {
		entry.Error("skipping element: %v", err)
	}
	if h := r.tmpl.engine.faultHandler(); h != nil {
		h(f)
	}
}

func faultExpression(err error) string {
	var se *SyntaxError
	if errors.As(err, &se) {
		return se.Expression
	}
	var np *NoSuchPathError
	if errors.As(err, &np) {
		return np.Expression
	}
	var ee *EvaluationError
	if errors.As(err, &ee) {
		return ee.Expression
	}
	return ""
}

func (r *renderer) element(el *markup.Element) error {
	ds, passthrough, err := parseDirectives(el)
	if err != nil {
		return err
	}

	attrs := make(map[string]any, len(passthrough))
	for _, a := range passthrough {
		attrs[a.Name.Local] = a.Value
	}
	if err := r.env.Set(AttrsBinding, attrs); err != nil {
		return wrapEnvError(err)
	}

	if expr, ok := ds.get(dirEvaluate); ok {
		if _, err := r.eval.Evaluate(expr); err != nil {
			return err
		}
	}

	if expr, ok := ds.get(dirUseMacro); ok {
		return r.useMacro(el, expr)
	}

	if name, ok := ds.get(dirDefineSlot); ok {
		filled, err := r.defineSlot(el, strings.TrimSpace(name))
		if err != nil || filled {
			return err
		}
	}

	if expr, ok := ds.get(dirDefine); ok {
		if err := r.define(expr); err != nil {
			return err
		}
	}

	if expr, ok := ds.get(dirCondition); ok {
		ok, err := r.eval.EvaluateBool(expr)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	repeat, _ := ds.get(dirRepeat)
	loop, err := newLoop(repeat, r.env, r.eval)
	if err != nil {
		return err
	}
	r.loops = append(r.loops, loopFrame{loop: loop, env: r.env})
	for {
		more, err := loop.Advance(r.env)
		if err != nil {
			return err
		}
		if !more {
			break
		}
		if err := r.iteration(el, &ds, passthrough); err != nil {
			return err
		}
	}
	r.loops = r.loops[:len(r.loops)-1]
	return nil
}

func (r *renderer) iteration(el *markup.Element, ds *directiveSet, passthrough []markup.Attr) error {
	var content any = Default
	if expr, ok := ds.get(dirContent); ok {
		var err error
		if content, err = r.content(expr); err != nil {
			return err
		}
	}

	attrs := append([]markup.Attr(nil), passthrough...)
	if expr, ok := ds.get(dirAttributes); ok {
		var err error
		if attrs, err = r.attributes(expr, attrs); err != nil {
			return err
		}
	}

	omit := false
	if expr, ok := ds.get(dirOmitTag); ok {
		if strings.TrimSpace(expr) == "" {
			omit = true
		} else {
			var err error
			if omit, err = r.eval.EvaluateBool(expr); err != nil {
				return err
			}
		}
	}

	if !omit {
		if err := r.startTag(el, attrs); err != nil {
			return err
		}
	}

	if content != Default {
		if err := r.writeContent(content); err != nil {
			return err
		}
	} else if err := r.children(el); err != nil {
		return err
	}

	if !omit {
		return r.write(r.out.EndElement(el.Name))
	}
	return nil
}

// content evaluates a content or replace expression. The result is Default,
// a *Fragment, an *Includable or a string.
func (r *renderer) content(expr string) (any, error) {
	expr = strings.TrimLeft(expr, " \t\r\n")

	if rest, ok := strings.CutPrefix(expr, structurePrefix); ok {
		v, err := r.eval.Evaluate(rest)
		if err != nil {
			return nil, err
		}
		switch v.(type) {
		case defaultMarker, *Fragment, *Includable:
			return v, nil
		}
		return newStructure(FormatValue(v), r.config()), nil
	}

	expr = strings.TrimPrefix(expr, textPrefix)
	v, err := r.eval.Evaluate(expr)
	if err != nil {
		return nil, err
	}
	if v == Default {
		return v, nil
	}
	return FormatValue(v), nil
}

func (r *renderer) writeContent(v any) error {
	switch c := v.(type) {
	case *Fragment:
		return r.write(c.write(r.out))
	case *Includable:
		return c.process(r)
	case string:
		return r.write(r.out.Characters(c))
	default:
		return r.write(r.out.Characters(FormatValue(c)))
	}
}

// define binds each "name expression" entry in order, so later entries
// see earlier ones.
func (r *renderer) define(expr string) error {
	entries, err := Split(expr, ';', true)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, value, ok := strings.Cut(entry, " ")
		if !ok {
			return &SyntaxError{Expression: entry, Message: "define requires a name and an expression"}
		}
		v, err := r.eval.Evaluate(strings.TrimSpace(value))
		if err != nil {
			return err
		}
		if err := r.env.Set(name, v); err != nil {
			return wrapEnvError(err)
		}
	}
	return nil
}

func (r *renderer) attributes(expr string, attrs []markup.Attr) ([]markup.Attr, error) {
	entries, err := Split(expr, ';', true)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		qname, value, ok := strings.Cut(entry, " ")
		if !ok {
			return nil, &SyntaxError{Expression: entry, Message: "attributes requires a name and an expression"}
		}
		v, err := r.eval.Evaluate(strings.TrimSpace(value))
		if err != nil {
			return nil, err
		}
		if v == Default {
			continue
		}
		name := r.tmpl.attrName(qname)
		kept := attrs[:0]
		for _, a := range attrs {
			if a.Name.Space != name.Space || a.Name.Local != name.Local {
				kept = append(kept, a)
			}
		}
		attrs = kept
		if !isNull(v) {
			attrs = append(attrs, markup.Attr{Name: name, Value: FormatValue(v)})
		}
	}
	return attrs, nil
}

func (r *renderer) startTag(el *markup.Element, attrs []markup.Attr) error {
	if err := r.write(r.out.StartElement(el.Name)); err != nil {
		return err
	}
	for _, ns := range el.Namespaces {
		if ns.URI == TALNamespace || ns.URI == METALNamespace {
			continue
		}
		if err := r.write(r.out.Namespace(ns)); err != nil {
			return err
		}
	}
	for _, a := range attrs {
		if err := r.write(r.out.Attribute(a)); err != nil {
			return err
		}
	}
	return nil
}

func (r *renderer) children(el *markup.Element) error {
	for _, n := range el.Children {
		var err error
		switch c := n.(type) {
		case *markup.Element:
			err = r.child(c)
		case *markup.Text:
			err = r.write(r.out.Characters(c.Data))
		case *markup.Comment:
			err = r.write(r.out.Comment(c.Data))
		case *markup.ProcInst:
			err = r.write(r.out.ProcInst(c.Target, c.Inst))
		case *markup.CData:
			err = r.write(r.out.CData(c.Data))
		case *markup.EntityRef:
			err = r.write(r.out.EntityRef(c.Name))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *renderer) useMacro(el *markup.Element, expr string) error {
	v, err := r.eval.Evaluate(expr)
	if err != nil {
		return err
	}
	if isNull(v) {
		return NewTemplateError(fmt.Sprintf("could not find macro: %s", strings.TrimSpace(expr)), el.Name.Qualified())
	}
	m, ok := v.(*Macro)
	if !ok {
		return &EvaluationError{Expression: expr, Message: fmt.Sprintf("expected a macro, got %s", describe(v))}
	}

	slots := findSlots(r.tmpl, el)
	if n := len(r.slots); n > 0 {
		slots = mergeSlots(slots, r.slots[n-1])
	}
	r.slots = append(r.slots, slots)
	defer func() { r.slots = r.slots[:len(r.slots)-1] }()

	return r.enter(m.tmpl, func() error {
		if m.include == nil {
			return r.child(m.element)
		}
		return r.within(m.include.environment(), func() error {
			return r.child(m.element)
		})
	})
}

// defineSlot renders the caller's fill for name. It reports false when the
// caller left the slot unfilled and the element's own content applies.
func (r *renderer) defineSlot(el *markup.Element, name string) (bool, error) {
	n := len(r.slots)
	if n == 0 {
		return false, NewTemplateError(fmt.Sprintf("slot %q defined outside of a macro call", name), el.Name.Qualified())
	}
	top := r.slots[n-1]
	slot, ok := top[name]
	if !ok {
		return false, nil
	}

	r.slots = r.slots[:n-1]
	defer func() { r.slots = append(r.slots, top) }()
	return true, r.enter(slot.tmpl, func() error {
		return r.child(slot.element)
	})
}

// enter runs fn with t as the current template, bounding the nesting of
// macro calls and includes.
func (r *renderer) enter(t *Template, fn func() error) error {
	r.depth++
	defer func() { r.depth-- }()
	if limit := r.config().MaxRenderDepth; limit > 0 && r.depth > limit {
		return NewTemplateError(fmt.Sprintf("maximum render depth %d exceeded", limit), "")
	}

	prev := r.tmpl
	r.tmpl = t
	defer func() { r.tmpl = prev }()
	return fn()
}

// within runs fn against env instead of the current environment.
func (r *renderer) within(env Environment, fn func() error) error {
	prevEnv, prevEval := r.env, r.eval
	r.env, r.eval = env, r.tmpl.engine.evaluator(env)
	defer func() { r.env, r.eval = prevEnv, prevEval }()
	return fn()
}

func (r *renderer) write(err error) error {
	if err == nil {
		return nil
	}
	if IsDocumentError(err) {
		return err
	}
	return NewDocumentError("write", r.tmpl.path, err)
}
