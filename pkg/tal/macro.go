package tal

import (
	"github.com/benjaminschreck/go-tal/pkg/tal/markup"
)

// Macro is a subtree marked with metal:define-macro. It renders with the
// settings of the template that owns it.
type Macro struct {
	Name    string
	tmpl    *Template
	element *markup.Element
	include *Includable
}

// Template returns the template the macro was defined in.
func (m *Macro) Template() *Template {
	return m.tmpl
}

// Element returns the defining element.
func (m *Macro) Element() *markup.Element {
	return m.element
}

func (m *Macro) String() string {
	return "macro " + m.Name
}

// Slot is caller content marked with metal:fill-slot.
type Slot struct {
	Name    string
	tmpl    *Template
	element *markup.Element
}

func findMacros(t *Template, root *markup.Element) map[string]*Macro {
	macros := make(map[string]*Macro)
	root.Walk(func(el *markup.Element) bool {
		if name, ok := el.Attr(METALNamespace, defineMacro); ok {
			if _, dup := macros[name]; !dup {
				macros[name] = &Macro{Name: name, tmpl: t, element: el}
			}
		}
		return true
	})
	return macros
}

// findSlots collects the fill-slot elements at or below el. The first
// occurrence of a name wins.
func findSlots(t *Template, el *markup.Element) map[string]*Slot {
	slots := make(map[string]*Slot)
	el.Walk(func(e *markup.Element) bool {
		if name, ok := e.Attr(METALNamespace, fillSlot); ok {
			if _, dup := slots[name]; !dup {
				slots[name] = &Slot{Name: name, tmpl: t, element: e}
			}
		}
		return true
	})
	return slots
}

// mergeSlots layers the slots of a new macro call under the map already on
// top of the stack. Entries from the outer call win.
func mergeSlots(inner map[string]*Slot, outer map[string]*Slot) map[string]*Slot {
	merged := make(map[string]*Slot, len(inner)+len(outer))
	for k, v := range inner {
		merged[k] = v
	}
	for k, v := range outer {
		merged[k] = v
	}
	return merged
}

// bindMacros returns copies of macros that render inside inc's environment.
func bindMacros(macros map[string]*Macro, inc *Includable) map[string]*Macro {
	bound := make(map[string]*Macro, len(macros))
	for k, m := range macros {
		bound[k] = &Macro{Name: m.Name, tmpl: m.tmpl, element: m.element, include: inc}
	}
	return bound
}
