package tal

import (
	"bytes"
	"regexp"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"

	"github.com/benjaminschreck/go-tal/pkg/tal/markup"
)

// Fragment is pre-rendered markup. Content that evaluates to a Fragment is
// written to the output without escaping.
type Fragment struct {
	html             string
	allowHTML        bool
	escapeAmpersands bool
}

// NewFragment wraps html. XHTML falls back to lenient parsing when the
// markup is not well-formed.
func NewFragment(html string) *Fragment {
	return &Fragment{html: html, allowHTML: true}
}

// newStructure builds the fragment for structure content, sanitizing it
// first when the configuration asks for that.
func newStructure(html string, cfg *Config) *Fragment {
	if cfg.SanitizeStructure {
		html = structureSanitizer().Sanitize(html)
	}
	return &Fragment{html: html, allowHTML: cfg.AllowHTML, escapeAmpersands: cfg.EscapeAmpersands}
}

// HTML returns the markup as given.
func (f *Fragment) HTML() string {
	return f.html
}

func (f *Fragment) String() string {
	return f.html
}

func (f *Fragment) source() string {
	if f.escapeAmpersands {
		return EscapeAmpersands(f.html)
	}
	return f.html
}

// XHTML parses the markup as the body of an XHTML document and serializes
// it back, which yields well-formed output for loosely written HTML.
func (f *Fragment) XHTML() (string, error) {
	wrapped := "<html><body>" + f.source() + "</body></html>"
	doc, err := markup.Parse(strings.NewReader(wrapped))
	if err != nil {
		if !f.allowHTML {
			return "", NewParseError("fragment is not well-formed", 0, err)
		}
		if doc, err = markup.ParseHTML(strings.NewReader(wrapped), nil); err != nil {
			return "", NewParseError("fragment could not be parsed", 0, err)
		}
	}

	var body *markup.Element
	doc.Root.Walk(func(el *markup.Element) bool {
		if body == nil && el.Name.Local == "body" {
			body = el
		}
		return body == nil
	})
	if body == nil {
		return "", nil
	}

	var buf bytes.Buffer
	w := markup.NewStreamWriter(&buf)
	for _, c := range body.Children {
		if err := markup.WriteNode(w, c); err != nil {
			return "", err
		}
	}
	if err := w.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (f *Fragment) write(w markup.Writer) error {
	return w.Raw(f.source())
}

var (
	structurePolicyOnce sync.Once
	structurePolicy     *bluemonday.Policy
)

func structureSanitizer() *bluemonday.Policy {
	structurePolicyOnce.Do(func() {
		policy := bluemonday.UGCPolicy()
		policy.AllowAttrs("class", "id", "title").Globally()
		structurePolicy = policy
	})
	return structurePolicy
}

var entityRef = regexp.MustCompile(`^(?:\w+|#\d+|#[xX][0-9a-fA-F]+);`)

// EscapeAmpersands replaces every '&' that does not start an entity or
// character reference with "&amp;".
func EscapeAmpersands(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s) + 16)
	for i := 0; i < len(s); i++ {
		if s[i] == '&' && !entityRef.MatchString(s[i+1:]) {
			sb.WriteString("&amp;")
			continue
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}
