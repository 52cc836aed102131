package markup

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ParseError reports malformed markup.
type ParseError struct {
	Line    int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("markup error at line %d: %s", e.Line, e.Message)
	}
	return fmt.Sprintf("markup error: %s", e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// scope is a stack of prefix to URI bindings. Index 0 holds the
// predeclared bindings.
type scope []map[string]string

func newScope(predeclared map[string]string) scope {
	base := map[string]string{"xml": XMLNamespace}
	for k, v := range predeclared {
		base[k] = v
	}
	return scope{base}
}

func (s scope) lookup(prefix string) (string, bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if uri, ok := s[i][prefix]; ok {
			return uri, true
		}
	}
	return "", false
}

// declare splits namespace declarations out of attrs, pushes a new frame
// and returns the remaining attributes with the declarations made.
func (s *scope) declare(attrs []xml.Attr) ([]xml.Attr, []Namespace) {
	frame := map[string]string{}
	var rest []xml.Attr
	var decls []Namespace
	for _, a := range attrs {
		switch {
		case a.Name.Space == "xmlns":
			frame[a.Name.Local] = a.Value
			decls = append(decls, Namespace{Prefix: a.Name.Local, URI: a.Value})
		case a.Name.Space == "" && a.Name.Local == "xmlns":
			frame[""] = a.Value
			decls = append(decls, Namespace{URI: a.Value})
		default:
			rest = append(rest, a)
		}
	}
	*s = append(*s, frame)
	return rest, decls
}

func (s *scope) pop() {
	*s = (*s)[:len(*s)-1]
}

// Parse reads well-formed XML into a Document. Prefixes must be declared;
// HTML named entities are accepted.
func Parse(r io.Reader) (*Document, error) {
	d := xml.NewDecoder(r)
	d.Strict = true
	d.Entity = xml.HTMLEntity

	ns := newScope(nil)
	doc := &Document{}
	var stack []*Element

	fail := func(msg string, err error) error {
		line, _ := d.InputPos()
		return &ParseError{Line: line, Message: msg, Err: err}
	}

	for {
		tok, err := d.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			var syn *xml.SyntaxError
			if errors.As(err, &syn) {
				return nil, &ParseError{Line: syn.Line, Message: syn.Msg, Err: err}
			}
			return nil, fail(err.Error(), err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if len(stack) == 0 && doc.Root != nil {
				return nil, fail("multiple root elements", nil)
			}
			rest, decls := ns.declare(t.Attr)
			el := &Element{Namespaces: decls}
			name, err := resolveName(ns, t.Name, true)
			if err != nil {
				return nil, fail(err.Error(), err)
			}
			el.Name = name
			for _, a := range rest {
				an, err := resolveName(ns, a.Name, false)
				if err != nil {
					return nil, fail(err.Error(), err)
				}
				el.Attrs = append(el.Attrs, Attr{Name: an, Value: a.Value})
			}
			if len(stack) == 0 {
				doc.Root = el
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, el)
			}
			stack = append(stack, el)

		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fail("unexpected end element </"+rawName(t.Name)+">", nil)
			}
			top := stack[len(stack)-1]
			if top.Name.Prefix != t.Name.Space || top.Name.Local != t.Name.Local {
				return nil, fail(fmt.Sprintf("element <%s> closed by </%s>", top.Name.Qualified(), rawName(t.Name)), nil)
			}
			stack = stack[:len(stack)-1]
			ns.pop()

		case xml.CharData:
			if len(stack) == 0 {
				if strings.TrimSpace(string(t)) != "" {
					return nil, fail("text outside of root element", nil)
				}
				continue
			}
			appendChild(stack, &Text{Data: string(t)})

		case xml.Comment:
			if len(stack) > 0 {
				appendChild(stack, &Comment{Data: string(t)})
			}

		case xml.ProcInst:
			if t.Target == "xml" || len(stack) == 0 {
				continue
			}
			appendChild(stack, &ProcInst{Target: t.Target, Inst: string(t.Inst)})

		case xml.Directive:
			if dt, ok := parseDocType(string(t)); ok && len(stack) == 0 {
				doc.DocType = dt
			}
		}
	}

	if len(stack) > 0 {
		return nil, fail("unclosed element <"+stack[len(stack)-1].Name.Qualified()+">", nil)
	}
	if doc.Root == nil {
		return nil, fail("no root element", nil)
	}
	return doc, nil
}

func appendChild(stack []*Element, n Node) {
	parent := stack[len(stack)-1]
	// adjacent text is merged so entity expansion does not split runs
	if t, ok := n.(*Text); ok && len(parent.Children) > 0 {
		if prev, ok := parent.Children[len(parent.Children)-1].(*Text); ok {
			prev.Data += t.Data
			return
		}
	}
	parent.Children = append(parent.Children, n)
}

func rawName(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

// resolveName binds a raw prefix to its namespace. Unprefixed attributes
// are never in a namespace; unprefixed elements take the default one.
func resolveName(ns scope, n xml.Name, element bool) (Name, error) {
	if n.Space == "" {
		if !element {
			return Name{Local: n.Local}, nil
		}
		uri, _ := ns.lookup("")
		return Name{Space: uri, Local: n.Local}, nil
	}
	uri, ok := ns.lookup(n.Space)
	if !ok {
		return Name{}, fmt.Errorf("undeclared namespace prefix %q", n.Space)
	}
	return Name{Space: uri, Prefix: n.Space, Local: n.Local}, nil
}

// parseDocType reads the body of a <!DOCTYPE ...> directive.
func parseDocType(directive string) (*DocType, bool) {
	rest := strings.TrimSpace(directive)
	if len(rest) < 7 || !strings.EqualFold(rest[:7], "DOCTYPE") {
		return nil, false
	}
	rest = strings.TrimSpace(rest[7:])
	if i := strings.IndexByte(rest, '['); i >= 0 {
		rest = rest[:i]
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return nil, false
	}
	dt := &DocType{Name: fields[0]}
	rest = strings.TrimSpace(rest[len(fields[0]):])

	ids := quoted(rest)
	switch {
	case strings.HasPrefix(strings.ToUpper(rest), "PUBLIC"):
		if len(ids) > 0 {
			dt.PublicID = ids[0]
		}
		if len(ids) > 1 {
			dt.SystemID = ids[1]
		}
	case strings.HasPrefix(strings.ToUpper(rest), "SYSTEM"):
		if len(ids) > 0 {
			dt.SystemID = ids[0]
		}
	}
	return dt, true
}

// quoted returns the single- or double-quoted strings found in s.
func quoted(s string) []string {
	var out []string
	for {
		i := strings.IndexAny(s, `"'`)
		if i < 0 {
			return out
		}
		q := s[i]
		j := strings.IndexByte(s[i+1:], q)
		if j < 0 {
			return out
		}
		out = append(out, s[i+1:i+1+j])
		s = s[i+j+2:]
	}
}
