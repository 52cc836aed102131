package markup

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// Declaration is written by StartDocument.
const Declaration = "<?xml version='1.0' encoding='UTF-8'?>"

// Writer receives processed output as an ordered stream of events.
type Writer interface {
	StartDocument() error
	EndDocument() error
	DTD(dt *DocType) error
	StartElement(name Name) error
	Namespace(ns Namespace) error
	Attribute(attr Attr) error
	EndElement(name Name) error
	Characters(text string) error
	Comment(text string) error
	ProcInst(target, inst string) error
	CData(text string) error
	EntityRef(name string) error
	// Raw writes pre-rendered markup without escaping.
	Raw(markup string) error
	Flush() error
}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
)

// ErrNoOpenTag is returned when a namespace or attribute is written after
// the start tag has been closed.
var ErrNoOpenTag = errors.New("markup: no open start tag")

// StreamWriter serializes events as markup text. Start tags are closed
// lazily so elements without content are written as <name/>. The first
// write error is sticky and returned by every later call.
type StreamWriter struct {
	w       *bufio.Writer
	pending bool
	err     error
}

func NewStreamWriter(w io.Writer) *StreamWriter {
	return &StreamWriter{w: bufio.NewWriter(w)}
}

func (s *StreamWriter) write(parts ...string) error {
	if s.err != nil {
		return s.err
	}
	for _, p := range parts {
		if _, err := s.w.WriteString(p); err != nil {
			s.err = err
			return err
		}
	}
	return nil
}

func (s *StreamWriter) closeStart() error {
	if !s.pending {
		return s.err
	}
	s.pending = false
	return s.write(">")
}

func (s *StreamWriter) StartDocument() error {
	return s.write(Declaration, "\n")
}

func (s *StreamWriter) EndDocument() error {
	if err := s.closeStart(); err != nil {
		return err
	}
	return s.Flush()
}

func (s *StreamWriter) DTD(dt *DocType) error {
	if dt == nil {
		return s.err
	}
	switch {
	case dt.PublicID != "":
		return s.write("<!DOCTYPE ", dt.Name, ` PUBLIC "`, dt.PublicID, `" "`, dt.SystemID, "\">\n")
	case dt.SystemID != "":
		return s.write("<!DOCTYPE ", dt.Name, ` SYSTEM "`, dt.SystemID, "\">\n")
	default:
		return s.write("<!DOCTYPE ", dt.Name, ">\n")
	}
}

func (s *StreamWriter) StartElement(name Name) error {
	if err := s.closeStart(); err != nil {
		return err
	}
	if err := s.write("<", name.Qualified()); err != nil {
		return err
	}
	s.pending = true
	return nil
}

func (s *StreamWriter) Namespace(ns Namespace) error {
	if !s.pending {
		return ErrNoOpenTag
	}
	if ns.Prefix == "" {
		return s.write(` xmlns="`, attrEscaper.Replace(ns.URI), `"`)
	}
	return s.write(" xmlns:", ns.Prefix, `="`, attrEscaper.Replace(ns.URI), `"`)
}

func (s *StreamWriter) Attribute(attr Attr) error {
	if !s.pending {
		return ErrNoOpenTag
	}
	return s.write(" ", attr.Name.Qualified(), `="`, attrEscaper.Replace(attr.Value), `"`)
}

func (s *StreamWriter) EndElement(name Name) error {
	if s.pending {
		s.pending = false
		return s.write("/>")
	}
	return s.write("</", name.Qualified(), ">")
}

// Characters writes escaped text. An empty string still closes a pending
// start tag, which keeps <i></i> from collapsing to <i/>.
func (s *StreamWriter) Characters(text string) error {
	if err := s.closeStart(); err != nil {
		return err
	}
	return s.write(textEscaper.Replace(text))
}

func (s *StreamWriter) Comment(text string) error {
	if err := s.closeStart(); err != nil {
		return err
	}
	return s.write("<!--", text, "-->")
}

func (s *StreamWriter) ProcInst(target, inst string) error {
	if err := s.closeStart(); err != nil {
		return err
	}
	if inst == "" {
		return s.write("<?", target, "?>")
	}
	return s.write("<?", target, " ", inst, "?>")
}

func (s *StreamWriter) CData(text string) error {
	if err := s.closeStart(); err != nil {
		return err
	}
	return s.write("<![CDATA[", text, "]]>")
}

func (s *StreamWriter) EntityRef(name string) error {
	if err := s.closeStart(); err != nil {
		return err
	}
	return s.write("&", name, ";")
}

func (s *StreamWriter) Raw(markup string) error {
	if err := s.closeStart(); err != nil {
		return err
	}
	return s.write(markup)
}

func (s *StreamWriter) Flush() error {
	if s.err != nil {
		return s.err
	}
	if err := s.w.Flush(); err != nil {
		s.err = err
	}
	return s.err
}

// WriteNode serializes n and its descendants to w without any processing.
func WriteNode(w Writer, n Node) error {
	switch v := n.(type) {
	case *Element:
		if err := w.StartElement(v.Name); err != nil {
			return err
		}
		for _, ns := range v.Namespaces {
			if err := w.Namespace(ns); err != nil {
				return err
			}
		}
		for _, a := range v.Attrs {
			if err := w.Attribute(a); err != nil {
				return err
			}
		}
		for _, c := range v.Children {
			if err := WriteNode(w, c); err != nil {
				return err
			}
		}
		return w.EndElement(v.Name)
	case *Text:
		return w.Characters(v.Data)
	case *Comment:
		return w.Comment(v.Data)
	case *ProcInst:
		return w.ProcInst(v.Target, v.Inst)
	case *CData:
		return w.CData(v.Data)
	case *EntityRef:
		return w.EntityRef(v.Name)
	}
	return nil
}
