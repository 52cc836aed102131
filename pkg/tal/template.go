package tal

import (
	"bytes"
	"io"
	"strings"
	"sync"

	"github.com/benjaminschreck/go-tal/pkg/tal/markup"
)

// Template is a parsed page template. Its tree and macro table are
// read-only after construction, so one Template may be rendered by many
// goroutines at once; each render gets its own environment.
type Template struct {
	doc      *markup.Document
	engine   *Engine
	config   *Config
	resolver Resolver
	path     string
	prefixes map[string]string

	macrosOnce sync.Once
	macros     map[string]*Macro
}

func newTemplate(doc *markup.Document, engine *Engine, path string) *Template {
	t := &Template{
		doc:      doc,
		engine:   engine,
		config:   engine.config,
		resolver: engine.resolver,
		path:     path,
		prefixes: map[string]string{"xml": markup.XMLNamespace},
	}
	doc.Root.Walk(func(el *markup.Element) bool {
		for _, ns := range el.Namespaces {
			if _, seen := t.prefixes[ns.Prefix]; !seen && ns.Prefix != "" {
				t.prefixes[ns.Prefix] = ns.URI
			}
		}
		return true
	})
	return t
}

// parseSource parses src strictly and, when the configuration allows it,
// retries leniently as HTML.
func parseSource(src []byte, cfg *Config) (*markup.Document, error) {
	doc, err := markup.Parse(bytes.NewReader(src))
	if err == nil {
		return doc, nil
	}
	if !cfg.AllowHTML {
		return nil, wrapMarkupError(err)
	}
	GetLogger().Debug("strict parse failed, retrying as HTML: %v", err)

	predeclared := map[string]string{"tal": TALNamespace, "metal": METALNamespace}
	doc, looseErr := markup.ParseHTML(bytes.NewReader(src), predeclared)
	if looseErr != nil {
		return nil, wrapMarkupError(err)
	}
	return doc, nil
}

func wrapMarkupError(err error) error {
	if pe, ok := err.(*markup.ParseError); ok {
		return NewParseError(pe.Message, pe.Line, err)
	}
	return NewParseError(err.Error(), 0, err)
}

// Path is the path the template was resolved from, empty for templates
// prepared from a reader or string.
func (t *Template) Path() string {
	return t.path
}

// Document returns the parsed tree.
func (t *Template) Document() *markup.Document {
	return t.doc
}

// Resolver returns the resolver used for the resolver binding.
func (t *Template) Resolver() Resolver {
	return t.resolver
}

// SetResolver replaces the resolver bound during rendering.
func (t *Template) SetResolver(r Resolver) {
	t.resolver = r
}

// Macros returns the macros defined anywhere in the template, keyed by name.
func (t *Template) Macros() map[string]*Macro {
	t.macrosOnce.Do(func() {
		t.macros = findMacros(t, t.doc.Root)
	})
	return t.macros
}

// Include binds the template to context so it can be rendered as the
// content of another template.
func (t *Template) Include(context any) *Includable {
	return NewIncludable(t, context, nil)
}

// Process renders the template to w. context is bound as "here" and the
// dictionary entries as top level variables.
func (t *Template) Process(w io.Writer, context any, dictionary map[string]any) error {
	return t.ProcessMarkup(markup.NewStreamWriter(w), context, dictionary)
}

// Render renders the template to a string.
func (t *Template) Render(context any, dictionary map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := t.Process(&buf, context, dictionary); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ProcessMarkup renders the template as events on w.
func (t *Template) ProcessMarkup(w markup.Writer, context any, dictionary map[string]any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = RecoverError(r)
		}
	}()

	logger := t.engine.logger.WithField("template", t.name())
	logger.Debug("rendering")

	r := newRenderer(t, t.environment(context, dictionary), w)
	if err := r.document(!t.config.SuppressDeclaration); err != nil {
		logger.WithError(err).Debug("render failed")
		return err
	}
	return nil
}

func (t *Template) environment(context any, dictionary map[string]any) Environment {
	env := NewBindings(t.engine.functionTable())
	for k, v := range dictionary {
		env.Set(k, v)
	}
	env.Set(HereBinding, context)
	env.Set(TemplateBinding, t)
	if t.resolver != nil {
		env.Set(ResolverBinding, t.resolver)
	} else {
		env.Set(ResolverBinding, nil)
	}
	env.Set(DefaultBinding, Default)
	env.Set(NothingBinding, nil)
	return env
}

func (t *Template) name() string {
	if t.path != "" {
		return t.path
	}
	return t.doc.Root.Name.Qualified()
}

// attrName resolves a qualified attribute name against the namespaces
// declared in the template.
func (t *Template) attrName(qname string) markup.Name {
	prefix, local, ok := strings.Cut(qname, ":")
	if !ok {
		return markup.Name{Local: qname}
	}
	if uri, known := t.prefixes[prefix]; known {
		return markup.Name{Space: uri, Prefix: prefix, Local: local}
	}
	return markup.Name{Local: qname}
}

func (t *Template) String() string {
	return "template " + t.name()
}
