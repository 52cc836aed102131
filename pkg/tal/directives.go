package tal

import (
	"fmt"

	"github.com/benjaminschreck/go-tal/pkg/tal/markup"
)

// Directive namespaces.
const (
	TALNamespace   = "http://xml.zope.org/namespaces/tal"
	METALNamespace = "http://xml.zope.org/namespaces/metal"
)

type directive int

const (
	dirDefine directive = iota
	dirCondition
	dirRepeat
	dirContent
	dirAttributes
	dirOmitTag
	dirEvaluate
	dirUseMacro
	dirDefineSlot
	dirCount
)

var talDirectives = map[string]directive{
	"define":     dirDefine,
	"condition":  dirCondition,
	"repeat":     dirRepeat,
	"content":    dirContent,
	"attributes": dirAttributes,
	"omit-tag":   dirOmitTag,
	"evaluate":   dirEvaluate,
}

var metalDirectives = map[string]directive{
	"use-macro":   dirUseMacro,
	"define-slot": dirDefineSlot,
}

// Markers consumed while building the macro table. The processor ignores them.
const (
	defineMacro = "define-macro"
	fillSlot    = "fill-slot"
)

type directiveSet struct {
	values  [dirCount]string
	present [dirCount]bool
}

func (d *directiveSet) get(k directive) (string, bool) {
	return d.values[k], d.present[k]
}

func (d *directiveSet) set(k directive, v string) {
	d.values[k] = v
	d.present[k] = true
}

// parseDirectives splits the attributes of el into its directive set and
// the attributes that pass through to the output.
func parseDirectives(el *markup.Element) (directiveSet, []markup.Attr, error) {
	var ds directiveSet
	var rest []markup.Attr
	replaced := false

	for _, a := range el.Attrs {
		switch a.Name.Space {
		case TALNamespace:
			if a.Name.Local == "replace" {
				ds.set(dirContent, a.Value)
				replaced = true
				continue
			}
			k, ok := talDirectives[a.Name.Local]
			if !ok {
				return ds, nil, NewTemplateError(fmt.Sprintf("unknown tal attribute: %s", a.Name.Local), el.Name.Qualified())
			}
			ds.set(k, a.Value)
		case METALNamespace:
			if a.Name.Local == defineMacro || a.Name.Local == fillSlot {
				continue
			}
			k, ok := metalDirectives[a.Name.Local]
			if !ok {
				return ds, nil, NewTemplateError(fmt.Sprintf("unknown metal attribute: %s", a.Name.Local), el.Name.Qualified())
			}
			ds.set(k, a.Value)
		default:
			rest = append(rest, a)
		}
	}

	if replaced && !ds.present[dirOmitTag] {
		ds.set(dirOmitTag, "")
	}
	return ds, rest, nil
}
