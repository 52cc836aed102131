// Package markup holds the element tree consumed by the template processor,
// together with the strict and lenient parsers that build it and the
// streaming writer that serializes processed output.
package markup

import "strings"

// XMLNamespace is the namespace bound to the reserved "xml" prefix.
const XMLNamespace = "http://www.w3.org/XML/1998/namespace"

// Name is a namespace-qualified element or attribute name. Prefix is kept
// as written in the source so output can reproduce it.
type Name struct {
	Space  string
	Prefix string
	Local  string
}

// Qualified returns the name as it appears in markup, prefix included.
func (n Name) Qualified() string {
	if n.Prefix == "" {
		return n.Local
	}
	return n.Prefix + ":" + n.Local
}

// Node is one of *Element, *Text, *Comment, *ProcInst, *CData or *EntityRef.
type Node interface {
	node()
}

// Attr is a single attribute.
type Attr struct {
	Name  Name
	Value string
}

// Namespace is a namespace declaration made on an element.
type Namespace struct {
	Prefix string
	URI    string
}

// Element is a markup element with its attributes, the namespaces it
// declares and its children in document order.
type Element struct {
	Name       Name
	Attrs      []Attr
	Namespaces []Namespace
	Children   []Node
}

type Text struct{ Data string }

type Comment struct{ Data string }

type ProcInst struct {
	Target string
	Inst   string
}

type CData struct{ Data string }

type EntityRef struct{ Name string }

func (*Element) node()   {}
func (*Text) node()      {}
func (*Comment) node()   {}
func (*ProcInst) node()  {}
func (*CData) node()     {}
func (*EntityRef) node() {}

// DocType is a document type declaration.
type DocType struct {
	Name     string
	PublicID string
	SystemID string
}

// Document is a parsed template source.
type Document struct {
	DocType *DocType
	Root    *Element
}

// Attr returns the value of the attribute with the given namespace and
// local name.
func (e *Element) Attr(space, local string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name.Space == space && a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

// ChildElements returns the direct element children of e.
func (e *Element) ChildElements() []*Element {
	var out []*Element
	for _, c := range e.Children {
		if el, ok := c.(*Element); ok {
			out = append(out, el)
		}
	}
	return out
}

// Walk visits e and its descendant elements depth first. Returning false
// from fn skips the children of the visited element.
func (e *Element) Walk(fn func(*Element) bool) {
	if !fn(e) {
		return
	}
	for _, c := range e.Children {
		if el, ok := c.(*Element); ok {
			el.Walk(fn)
		}
	}
}

// TextContent concatenates all text below e.
func (e *Element) TextContent() string {
	var sb strings.Builder
	var walk func(nodes []Node)
	walk = func(nodes []Node) {
		for _, n := range nodes {
			switch v := n.(type) {
			case *Text:
				sb.WriteString(v.Data)
			case *CData:
				sb.WriteString(v.Data)
			case *Element:
				walk(v.Children)
			}
		}
	}
	walk(e.Children)
	return sb.String()
}
