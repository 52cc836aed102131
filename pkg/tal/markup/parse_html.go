package markup

import (
	"bytes"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ParseHTML reads markup leniently using an HTML5 parser. Sources that
// start with a doctype or an <html> tag are parsed as full documents;
// anything else is parsed as a body fragment whose first element becomes
// the root. Prefixes in predeclared are bound even when the source does not
// declare them; other undeclared prefixes are kept as part of the local name.
func ParseHTML(r io.Reader, predeclared map[string]string) (*Document, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, &ParseError{Message: "read failed", Err: err}
	}

	doc := &Document{}
	var root *html.Node

	head := strings.ToLower(string(bytes.TrimSpace(src[:min(len(src), 512)])))
	if strings.HasPrefix(head, "<!doctype") || strings.HasPrefix(head, "<html") {
		n, err := html.Parse(bytes.NewReader(src))
		if err != nil {
			return nil, &ParseError{Message: err.Error(), Err: err}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.DoctypeNode:
				doc.DocType = htmlDocType(c)
			case html.ElementNode:
				if root == nil {
					root = c
				}
			}
		}
	} else {
		body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
		nodes, err := html.ParseFragment(bytes.NewReader(src), body)
		if err != nil {
			return nil, &ParseError{Message: err.Error(), Err: err}
		}
		for _, n := range nodes {
			if n.Type == html.ElementNode {
				root = n
				break
			}
		}
	}
	if root == nil {
		return nil, &ParseError{Message: "no root element"}
	}

	ns := newScope(predeclared)
	doc.Root = convertHTML(root, &ns)
	return doc, nil
}

func htmlDocType(n *html.Node) *DocType {
	dt := &DocType{Name: n.Data}
	for _, a := range n.Attr {
		switch a.Key {
		case "public":
			dt.PublicID = a.Val
		case "system":
			dt.SystemID = a.Val
		}
	}
	return dt
}

func convertHTML(n *html.Node, ns *scope) *Element {
	el := &Element{}
	frame := map[string]string{}
	var rest []html.Attribute
	for _, a := range n.Attr {
		key := a.Key
		if a.Namespace != "" {
			key = a.Namespace + ":" + a.Key
		}
		switch {
		case key == "xmlns":
			frame[""] = a.Val
			el.Namespaces = append(el.Namespaces, Namespace{URI: a.Val})
		case strings.HasPrefix(key, "xmlns:"):
			prefix := key[len("xmlns:"):]
			frame[prefix] = a.Val
			el.Namespaces = append(el.Namespaces, Namespace{Prefix: prefix, URI: a.Val})
		default:
			a.Key = key
			rest = append(rest, a)
		}
	}
	*ns = append(*ns, frame)
	defer ns.pop()

	el.Name = looseName(*ns, n.Data, true)
	for _, a := range rest {
		el.Attrs = append(el.Attrs, Attr{Name: looseName(*ns, a.Key, false), Value: a.Val})
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.ElementNode:
			el.Children = append(el.Children, convertHTML(c, ns))
		case html.TextNode:
			el.Children = append(el.Children, &Text{Data: c.Data})
		case html.CommentNode:
			el.Children = append(el.Children, &Comment{Data: c.Data})
		}
	}
	return el
}

func looseName(ns scope, raw string, element bool) Name {
	if prefix, local, ok := strings.Cut(raw, ":"); ok {
		if uri, found := ns.lookup(prefix); found {
			return Name{Space: uri, Prefix: prefix, Local: local}
		}
		return Name{Local: raw}
	}
	if element {
		uri, _ := ns.lookup("")
		return Name{Space: uri, Local: raw}
	}
	return Name{Local: raw}
}
