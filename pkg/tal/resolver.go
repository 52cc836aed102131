package tal

import (
	"io/fs"
	"path"
	"sync"
)

// Resolver loads templates and scripts referenced from a template, e.g.
// resolver/template('layout.html')/macros/page.
type Resolver interface {
	Template(path string) (*Template, error)
	Script(path string) (*Script, error)
}

// FSResolver resolves paths against a file system. Templates are cached
// according to the engine's configuration; scripts are kept for the
// lifetime of the resolver.
type FSResolver struct {
	fsys    fs.FS
	engine  *Engine
	cache   *TemplateCache
	scripts sync.Map
}

func newFSResolver(fsys fs.FS, engine *Engine) *FSResolver {
	return &FSResolver{
		fsys:   fsys,
		engine: engine,
		cache: NewTemplateCacheWithConfig(CacheConfig{
			MaxSize: engine.config.CacheMaxSize,
			TTL:     engine.config.CacheTTL,
		}),
	}
}

// Template parses the template at p. Templates it returns use this
// resolver for their own resolver binding.
func (r *FSResolver) Template(p string) (*Template, error) {
	p = path.Clean(p)
	if t, ok := r.cache.Get(p); ok {
		return t, nil
	}

	src, err := fs.ReadFile(r.fsys, p)
	if err != nil {
		return nil, NewDocumentError("resolve", p, err)
	}
	doc, err := parseSource(src, r.engine.config)
	if err != nil {
		return nil, WithContext(err, "resolve", map[string]interface{}{"path": p})
	}

	t := newTemplate(doc, r.engine, p)
	t.resolver = r
	r.engine.logger.WithField("path", p).Debug("resolved template")
	return r.cache.Add(p, t), nil
}

// Script reads the script at p.
func (r *FSResolver) Script(p string) (*Script, error) {
	p = path.Clean(p)
	if s, ok := r.scripts.Load(p); ok {
		return s.(*Script), nil
	}

	src, err := fs.ReadFile(r.fsys, p)
	if err != nil {
		return nil, NewDocumentError("resolve", p, err)
	}
	s, _ := r.scripts.LoadOrStore(p, &Script{Source: string(src), Path: p})
	return s.(*Script), nil
}

// Cache returns the template cache.
func (r *FSResolver) Cache() *TemplateCache {
	return r.cache
}
