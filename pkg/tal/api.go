package tal

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"reflect"
	"strings"
	"sync"

	"github.com/zclconf/go-cty/cty/function"
)

// Fault describes an expression error that was reported and skipped
// during rendering.
type Fault struct {
	Element    string
	Expression string
	Err        error
}

// FaultHandler receives every skipped fault in addition to the log entry.
type FaultHandler func(Fault)

// Engine provides the main API for working with templates.
// Use New() to create a new engine instance.
type Engine struct {
	mu           sync.RWMutex
	config       *Config
	cache        *TemplateCache
	introspector Introspector
	classes      *ClassRegistry
	functions    map[string]function.Function
	resolver     Resolver
	faults       FaultHandler
	logger       *Logger
}

// New creates a new template engine with the global configuration.
func New() *Engine {
	return newEngine(GetGlobalConfig(), GetLogger())
}

// NewWithConfig creates a new template engine with custom configuration.
// An empty log level or render depth takes its default, and a nil config
// means all defaults. The logger writes to stderr at the configured level.
func NewWithConfig(config *Config) *Engine {
	config = NewConfigWithDefaults(config)
	return newEngine(config, NewLogger(os.Stderr, parseLogLevel(config.LogLevel)))
}

func newEngine(config *Config, logger *Logger) *Engine {
	return &Engine{
		config: config,
		cache: NewTemplateCacheWithConfig(CacheConfig{
			MaxSize: config.CacheMaxSize,
			TTL:     config.CacheTTL,
		}),
		introspector: NewReflector(),
		classes:      NewClassRegistry(),
		functions:    make(map[string]function.Function),
		logger:       logger,
	}
}

// Prepare parses a template from r.
func (e *Engine) Prepare(r io.Reader) (*Template, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, NewDocumentError("read", "", err)
	}
	return e.prepare(src, "")
}

// PrepareString parses a template from src.
func (e *Engine) PrepareString(src string) (*Template, error) {
	return e.prepare([]byte(src), "")
}

// PrepareFile parses the template at path.
// The template is cached if caching is enabled in the configuration.
func (e *Engine) PrepareFile(path string) (*Template, error) {
	if t, ok := e.cache.Get(path); ok {
		return t, nil
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, NewDocumentError("open", path, err)
	}
	t, err := e.prepare(src, path)
	if err != nil {
		return nil, err
	}
	return e.cache.Add(path, t), nil
}

func (e *Engine) prepare(src []byte, path string) (*Template, error) {
	if len(bytes.TrimSpace(src)) == 0 {
		return nil, NewParseError("empty template", 0, nil)
	}
	doc, err := parseSource(src, e.config)
	if err != nil {
		return nil, err
	}
	return newTemplate(doc, e, path), nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() *Config {
	return e.config
}

// Logger returns the engine's logger.
func (e *Engine) Logger() *Logger {
	return e.logger
}

// SetLogger replaces the engine's logger.
func (e *Engine) SetLogger(l *Logger) {
	e.logger = l
}

// SetResolver sets the resolver given to templates prepared afterwards.
func (e *Engine) SetResolver(r Resolver) {
	e.resolver = r
}

// NewFSResolver returns a resolver over fsys whose templates are prepared
// by this engine.
func (e *Engine) NewFSResolver(fsys fs.FS) *FSResolver {
	return newFSResolver(fsys, e)
}

// SetIntrospector replaces the property and method lookup used by
// expressions.
func (e *Engine) SetIntrospector(i Introspector) {
	e.introspector = i
}

// RegisterClass makes c available as name.class in path expressions.
func (e *Engine) RegisterClass(c *Class) {
	e.classes.Register(c)
}

// RegisterMethod adds a builtin method for values of the given kind. It
// fails when a custom introspector that has no builtin table is installed.
func (e *Engine) RegisterMethod(kind reflect.Kind, name string, fn any) error {
	r, ok := e.introspector.(*Reflector)
	if !ok {
		return NewTemplateError("introspector does not support builtin methods", "")
	}
	return r.RegisterMethod(kind, name, fn)
}

// RegisterFunction adds a function callable from code: expressions.
func (e *Engine) RegisterFunction(name string, fn function.Function) error {
	if name == "" || strings.ContainsAny(name, " \t./") {
		return &ValidationError{Issues: []ValidationIssue{{Field: "function", Message: "invalid function name: " + name}}}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.functions[name] = fn
	return nil
}

// SetFaultHandler installs h to receive skipped faults.
func (e *Engine) SetFaultHandler(h FaultHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.faults = h
}

func (e *Engine) faultHandler() FaultHandler {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.faults
}

func (e *Engine) functionTable() map[string]function.Function {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fns := make(map[string]function.Function, len(e.functions))
	for k, v := range e.functions {
		fns[k] = v
	}
	return fns
}

func (e *Engine) evaluator(env Environment) *Evaluator {
	ev := NewEvaluator(env, e.introspector, e.classes)
	ev.logger = e.logger
	return ev
}

// ClearCache removes all templates from the cache.
func (e *Engine) ClearCache() {
	e.cache.Clear()
}

var (
	defaultEngine     *Engine
	defaultEngineOnce sync.Once
)

// DefaultEngine returns the engine used by the package-level functions.
// It is created on first use from the global configuration.
func DefaultEngine() *Engine {
	defaultEngineOnce.Do(func() {
		defaultEngine = New()
	})
	return defaultEngine
}

// Prepare parses a template from r using the default engine.
func Prepare(r io.Reader) (*Template, error) {
	return DefaultEngine().Prepare(r)
}

// PrepareString parses a template from src using the default engine.
func PrepareString(src string) (*Template, error) {
	return DefaultEngine().PrepareString(src)
}

// PrepareFile parses the template at path using the default engine.
func PrepareFile(path string) (*Template, error) {
	return DefaultEngine().PrepareFile(path)
}
