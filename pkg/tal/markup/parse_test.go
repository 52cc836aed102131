package markup

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const talNS = "http://xml.zope.org/namespaces/tal"

func TestParse(t *testing.T) {
	src := `<?xml version="1.0"?>
<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.0 Strict//EN" "http://www.w3.org/TR/xhtml1/DTD/xhtml1-strict.dtd">
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:tal="http://xml.zope.org/namespaces/tal">
<p class="a" tal:content="here/name">x &amp; y</p><!-- note --><?php echo 1 ?>
</html>`

	doc, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	wantDT := &DocType{
		Name:     "html",
		PublicID: "-//W3C//DTD XHTML 1.0 Strict//EN",
		SystemID: "http://www.w3.org/TR/xhtml1/DTD/xhtml1-strict.dtd",
	}
	if diff := cmp.Diff(wantDT, doc.DocType); diff != "" {
		t.Errorf("DocType mismatch (-want +got):\n%s", diff)
	}

	root := doc.Root
	if root.Name != (Name{Space: "http://www.w3.org/1999/xhtml", Local: "html"}) {
		t.Errorf("root name = %+v", root.Name)
	}
	wantNS := []Namespace{
		{URI: "http://www.w3.org/1999/xhtml"},
		{Prefix: "tal", URI: talNS},
	}
	if diff := cmp.Diff(wantNS, root.Namespaces); diff != "" {
		t.Errorf("Namespaces mismatch (-want +got):\n%s", diff)
	}

	p := root.ChildElements()[0]
	wantAttrs := []Attr{
		{Name: Name{Local: "class"}, Value: "a"},
		{Name: Name{Space: talNS, Prefix: "tal", Local: "content"}, Value: "here/name"},
	}
	if diff := cmp.Diff(wantAttrs, p.Attrs); diff != "" {
		t.Errorf("Attrs mismatch (-want +got):\n%s", diff)
	}
	if got := p.TextContent(); got != "x & y" {
		t.Errorf("TextContent() = %q, want %q", got, "x & y")
	}
	if v, ok := p.Attr(talNS, "content"); !ok || v != "here/name" {
		t.Errorf("Attr(tal, content) = %q, %v", v, ok)
	}

	var kinds []string
	for _, c := range root.Children {
		switch c.(type) {
		case *Element:
			kinds = append(kinds, "element")
		case *Comment:
			kinds = append(kinds, "comment")
		case *ProcInst:
			kinds = append(kinds, "pi")
		case *Text:
			kinds = append(kinds, "text")
		}
	}
	if diff := cmp.Diff([]string{"text", "element", "comment", "pi", "text"}, kinds); diff != "" {
		t.Errorf("child kinds mismatch (-want +got):\n%s", diff)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{name: "mismatched end tag", src: `<a><b></a></b>`},
		{name: "unclosed element", src: `<a><b></b>`},
		{name: "undeclared prefix", src: `<a tal:content="x"/>`},
		{name: "text outside root", src: `<a/>junk`},
		{name: "two roots", src: `<a/><b/>`},
		{name: "empty", src: ``},
		{name: "bare ampersand", src: `<a>fish & chips</a>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.src))
			if err == nil {
				t.Fatal("Parse() error = nil, want error")
			}
			if _, ok := err.(*ParseError); !ok {
				t.Errorf("Parse() error type = %T, want *ParseError", err)
			}
		})
	}
}

func TestParseHTML(t *testing.T) {
	predeclared := map[string]string{"tal": talNS}

	t.Run("fragment", func(t *testing.T) {
		doc, err := ParseHTML(strings.NewReader(`<div tal:content="x">a <br> b & c</div>`), predeclared)
		if err != nil {
			t.Fatalf("ParseHTML() error = %v", err)
		}
		if doc.Root.Name.Local != "div" {
			t.Fatalf("root = %q, want div", doc.Root.Name.Local)
		}
		want := []Attr{{Name: Name{Space: talNS, Prefix: "tal", Local: "content"}, Value: "x"}}
		if diff := cmp.Diff(want, doc.Root.Attrs); diff != "" {
			t.Errorf("Attrs mismatch (-want +got):\n%s", diff)
		}
		if got := doc.Root.TextContent(); got != "a  b & c" {
			t.Errorf("TextContent() = %q", got)
		}
	})

	t.Run("document", func(t *testing.T) {
		doc, err := ParseHTML(strings.NewReader(`<!DOCTYPE html><html><body><p>hi</p></body></html>`), nil)
		if err != nil {
			t.Fatalf("ParseHTML() error = %v", err)
		}
		if doc.DocType == nil || doc.DocType.Name != "html" {
			t.Errorf("DocType = %+v", doc.DocType)
		}
		if doc.Root.Name.Local != "html" {
			t.Errorf("root = %q, want html", doc.Root.Name.Local)
		}
	})

	t.Run("declared prefix", func(t *testing.T) {
		doc, err := ParseHTML(strings.NewReader(`<div xmlns:x="urn:x" x:y="1" z:w="2"></div>`), nil)
		if err != nil {
			t.Fatalf("ParseHTML() error = %v", err)
		}
		want := []Attr{
			{Name: Name{Space: "urn:x", Prefix: "x", Local: "y"}, Value: "1"},
			{Name: Name{Local: "z:w"}, Value: "2"},
		}
		if diff := cmp.Diff(want, doc.Root.Attrs); diff != "" {
			t.Errorf("Attrs mismatch (-want +got):\n%s", diff)
		}
	})
}
