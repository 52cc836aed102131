package tal

import "fmt"

// Includable is a template bound to its own context and dictionary. Used
// as content it renders in a fresh environment, without a declaration,
// into the caller's output.
type Includable struct {
	tmpl       *Template
	context    any
	dictionary map[string]any
}

func NewIncludable(t *Template, context any, dictionary map[string]any) *Includable {
	return &Includable{tmpl: t, context: context, dictionary: dictionary}
}

// Template returns the wrapped template.
func (i *Includable) Template() *Template {
	return i.tmpl
}

// Context returns the object bound as "here" when the includable renders.
func (i *Includable) Context() any {
	return i.context
}

// Macros returns the template's macros bound to this includable, so they
// evaluate against its context instead of the caller's.
func (i *Includable) Macros() map[string]*Macro {
	return bindMacros(i.tmpl.Macros(), i)
}

func (i *Includable) environment() Environment {
	return i.tmpl.environment(i.context, i.dictionary)
}

func (i *Includable) String() string {
	return fmt.Sprintf("includable %s", i.tmpl.name())
}

func (i *Includable) process(caller *renderer) error {
	return caller.enter(i.tmpl, func() error {
		r := newRenderer(i.tmpl, i.environment(), caller.out)
		r.depth = caller.depth
		if err := r.child(i.tmpl.doc.Root); err != nil {
			r.unwind(0, 0)
			return err
		}
		return nil
	})
}
