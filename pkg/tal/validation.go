package tal

import (
	"fmt"
	"strings"

	"github.com/benjaminschreck/go-tal/pkg/tal/markup"
)

// Validate checks the template without rendering it: directive names,
// expression nesting, the shape of define, attributes and repeat entries,
// and slot placement. It returns a *ValidationError listing every issue.
func (t *Template) Validate() error {
	v := &validator{tmpl: t}
	v.element(t.doc.Root, t.doc.Root.Name.Qualified(), false)
	if len(v.issues) == 0 {
		return nil
	}
	return &ValidationError{Issues: v.issues}
}

type validator struct {
	tmpl   *Template
	issues []ValidationIssue
}

func (v *validator) add(field, format string, args ...any) {
	v.issues = append(v.issues, ValidationIssue{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) element(el *markup.Element, path string, inMacro bool) {
	if _, ok := el.Attr(METALNamespace, defineMacro); ok {
		inMacro = true
	}

	ds, _, err := parseDirectives(el)
	if err != nil {
		v.add(path, "%v", err)
	} else {
		v.directives(&ds, path, inMacro)
	}

	counts := make(map[string]int)
	for _, c := range el.ChildElements() {
		name := c.Name.Qualified()
		counts[name]++
		v.element(c, fmt.Sprintf("%s/%s[%d]", path, name, counts[name]), inMacro)
	}
}

func (v *validator) directives(ds *directiveSet, path string, inMacro bool) {
	field := func(name string) string { return path + "@" + name }

	for _, d := range []struct {
		kind directive
		name string
	}{
		{dirCondition, "tal:condition"},
		{dirContent, "tal:content"},
		{dirEvaluate, "tal:evaluate"},
		{dirUseMacro, "metal:use-macro"},
	} {
		if expr, ok := ds.get(d.kind); ok {
			v.expression(field(d.name), expr)
		}
	}

	if expr, ok := ds.get(dirOmitTag); ok && strings.TrimSpace(expr) != "" {
		v.expression(field("tal:omit-tag"), expr)
	}
	if expr, ok := ds.get(dirUseMacro); ok && strings.TrimSpace(expr) == "" {
		v.add(field("metal:use-macro"), "empty macro expression")
	}
	if name, ok := ds.get(dirDefineSlot); ok {
		if strings.TrimSpace(name) == "" {
			v.add(field("metal:define-slot"), "empty slot name")
		}
		if !inMacro {
			v.add(field("metal:define-slot"), "slot %q is not inside a macro definition", name)
		}
	}
	if expr, ok := ds.get(dirRepeat); ok && strings.TrimSpace(expr) != "" {
		_, source, found := strings.Cut(strings.TrimSpace(expr), " ")
		if !found || strings.TrimSpace(source) == "" {
			v.add(field("tal:repeat"), "expected \"name expression\", got %q", expr)
		} else {
			v.expression(field("tal:repeat"), source)
		}
	}
	if expr, ok := ds.get(dirDefine); ok {
		v.entries(field("tal:define"), expr)
	}
	if expr, ok := ds.get(dirAttributes); ok {
		v.entries(field("tal:attributes"), expr)
	}
}

func (v *validator) entries(field, expr string) {
	entries, err := Split(expr, ';', true)
	if err != nil {
		v.add(field, "%v", err)
		return
	}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		_, value, ok := strings.Cut(entry, " ")
		if !ok {
			v.add(field, "expected \"name expression\", got %q", entry)
			continue
		}
		v.expression(field, value)
	}
}

// expression checks nesting the way the evaluator would see it.
func (v *validator) expression(field, expr string) {
	expr = strings.TrimSpace(expr)
	for _, p := range []string{structurePrefix, textPrefix} {
		expr = strings.TrimPrefix(expr, p)
	}

	switch {
	case strings.HasPrefix(expr, PrefixString):
		if err := checkInterpolation(expr[len(PrefixString):]); err != nil {
			v.add(field, "%v", err)
		}
	case strings.HasPrefix(expr, PrefixCode):
	case strings.HasPrefix(expr, PrefixExists):
		v.expression(field, expr[len(PrefixExists):])
	case strings.HasPrefix(expr, PrefixNot):
		v.expression(field, expr[len(PrefixNot):])
	default:
		segments, err := Split(expr, '|', false)
		if err != nil {
			v.add(field, "%v", err)
			return
		}
		for _, seg := range segments {
			if _, err := Split(seg, '/', false); err != nil {
				v.add(field, "%v", err)
			}
		}
	}
}

func checkInterpolation(s string) error {
	for i := 0; i < len(s); i++ {
		if s[i] != '$' || i+1 >= len(s) {
			continue
		}
		switch s[i+1] {
		case '$':
			i++
		case '{':
			end := strings.IndexByte(s[i+2:], '}')
			if end < 0 {
				return &SyntaxError{Expression: s, Message: "unclosed left curly brace"}
			}
			i += end + 2
		}
	}
	return nil
}
