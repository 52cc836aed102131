package tal

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testNS = `xmlns:tal="http://xml.zope.org/namespaces/tal" xmlns:metal="http://xml.zope.org/namespaces/metal"`

func newTestEngine(opts ...func(*Config)) *Engine {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	e := NewWithConfig(cfg)
	e.SetLogger(NewLogger(io.Discard, LogOff))
	return e
}

func strict(c *Config) { c.StrictMode = true }

func renderString(t *testing.T, e *Engine, src string, context any, dict map[string]any) (string, error) {
	t.Helper()
	tmpl, err := e.PrepareString(src)
	require.NoError(t, err)
	return tmpl.Render(context, dict)
}

func TestProcessor(t *testing.T) {
	here := map[string]any{
		"list": []int{1, 2, 3},
		"name": "Ann",
		"html": "<b>hi</b>",
		"rows": []map[string]any{{"id": "a"}, {"id": "b"}},
	}

	tests := []struct {
		name string
		src  string
		dict map[string]any
		want string
	}{
		{
			name: "false condition drops element",
			src:  `<div ` + testNS + `><p tal:condition="false">X</p></div>`,
			want: `<div/>`,
		},
		{
			name: "true condition keeps element",
			src:  `<div ` + testNS + `><p tal:condition="here/name">X</p></div>`,
			want: `<div><p>X</p></div>`,
		},
		{
			name: "repeat with content",
			src:  `<div ` + testNS + `><p tal:repeat="x here/list" tal:content="x">Y</p></div>`,
			want: `<div><p>1</p><p>2</p><p>3</p></div>`,
		},
		{
			name: "repeat over empty list",
			src:  `<div ` + testNS + `><p tal:repeat="x empty" tal:content="x">Y</p></div>`,
			dict: map[string]any{"empty": []string{}},
			want: `<div/>`,
		},
		{
			name: "nothing empties content",
			src:  `<div ` + testNS + `><i tal:content="nothing">x</i></div>`,
			want: `<div><i></i></div>`,
		},
		{
			name: "default keeps content",
			src:  `<div ` + testNS + `><i tal:content="default">x</i></div>`,
			want: `<div><i>x</i></div>`,
		},
		{
			name: "text is escaped",
			src:  `<div ` + testNS + `><p tal:content="string:a &lt; b">x</p></div>`,
			want: `<div><p>a &lt; b</p></div>`,
		},
		{
			name: "text prefix",
			src:  `<div ` + testNS + `><p tal:content="text here/html">x</p></div>`,
			want: `<div><p>&lt;b&gt;hi&lt;/b&gt;</p></div>`,
		},
		{
			name: "structure is raw",
			src:  `<div ` + testNS + `><p tal:content="structure here/html">x</p></div>`,
			want: `<div><p><b>hi</b></p></div>`,
		},
		{
			name: "structure default keeps children",
			src:  `<div ` + testNS + `><p tal:content="structure default">x</p></div>`,
			want: `<div><p>x</p></div>`,
		},
		{
			name: "replace drops tag",
			src:  `<div ` + testNS + `><p tal:replace="string:hi">x</p></div>`,
			want: `<div>hi</div>`,
		},
		{
			name: "replace respects explicit omit-tag",
			src:  `<div ` + testNS + `><p tal:replace="string:hi" tal:omit-tag="false">x</p></div>`,
			want: `<div><p>hi</p></div>`,
		},
		{
			name: "empty omit-tag",
			src:  `<div ` + testNS + `><span tal:omit-tag="">in</span></div>`,
			want: `<div>in</div>`,
		},
		{
			name: "omit-tag expression",
			src:  `<div ` + testNS + `><span tal:omit-tag="not:here/name">in</span></div>`,
			want: `<div><span>in</span></div>`,
		},
		{
			name: "attributes replace and add",
			src:  `<div ` + testNS + `><a href="old" class="c" tal:attributes="href string:new; title string:I am fine;; How are you?">x</a></div>`,
			want: `<div><a class="c" href="new" title="I am fine; How are you?">x</a></div>`,
		},
		{
			name: "attributes null removes and default keeps",
			src:  `<div ` + testNS + `><a href="h" class="c" tal:attributes="class nothing; href default">x</a></div>`,
			want: `<div><a href="h">x</a></div>`,
		},
		{
			name: "attributes are escaped",
			src:  `<div ` + testNS + `><a tal:attributes="title here/html">x</a></div>`,
			want: `<div><a title="&lt;b&gt;hi&lt;/b&gt;">x</a></div>`,
		},
		{
			name: "attributes per iteration",
			src:  `<ul ` + testNS + `><li tal:repeat="row here/rows" tal:attributes="id row/id" tal:content="repeat/row/number">x</li></ul>`,
			want: `<ul><li id="a">1</li><li id="b">2</li></ul>`,
		},
		{
			name: "define left to right",
			src:  `<div ` + testNS + `><p tal:define="a string:x; b string:${a}y" tal:content="b">x</p></div>`,
			want: `<div><p>xy</p></div>`,
		},
		{
			name: "define before condition",
			src:  `<div ` + testNS + `><p tal:define="show here/list" tal:condition="show" tal:content="show/size()">x</p></div>`,
			want: `<div><p>3</p></div>`,
		},
		{
			name: "attrs binding",
			src:  `<div ` + testNS + `><p title="t" tal:content="attrs/title">x</p></div>`,
			want: `<div><p title="t">t</p></div>`,
		},
		{
			name: "evaluate side effect",
			src:  `<div ` + testNS + `><p tal:evaluate="code: n = 5" tal:content="n">x</p></div>`,
			want: `<div><p>5</p></div>`,
		},
		{
			name: "dictionary bindings",
			src:  `<div ` + testNS + `><p tal:content="greeting">x</p></div>`,
			dict: map[string]any{"greeting": "hey"},
			want: `<div><p>hey</p></div>`,
		},
		{
			name: "reserved bindings win over dictionary",
			src:  `<div ` + testNS + `><p tal:content="here/name">x</p></div>`,
			dict: map[string]any{"here": "shadowed"},
			want: `<div><p>Ann</p></div>`,
		},
		{
			name: "nested repeat",
			src:  `<div ` + testNS + `><p tal:repeat="a pair"><i tal:repeat="b pair" tal:content="string:${repeat/a/index}${b}">x</i></p></div>`,
			dict: map[string]any{"pair": []int{1, 2}},
			want: `<div><p><i>01</i><i>02</i></p><p><i>11</i><i>12</i></p></div>`,
		},
		{
			name: "other nodes forwarded",
			src:  `<div ` + testNS + `><!-- c --><?pi x?>text</div>`,
			want: `<div><!-- c --><?pi x?>text</div>`,
		},
		{
			name: "foreign namespaces kept",
			src:  `<x:doc xmlns:x="urn:x" ` + testNS + `><x:i tal:attributes="x:id string:1"/></x:doc>`,
			want: `<x:doc xmlns:x="urn:x"><x:i x:id="1"/></x:doc>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := renderString(t, newTestEngine(), tt.src, here, tt.dict)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProcessorFatalErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		check func(error) bool
	}{
		{
			name:  "unknown tal attribute",
			src:   `<div ` + testNS + `><p tal:contents="x">x</p></div>`,
			check: IsTemplateError,
		},
		{
			name:  "unknown metal attribute",
			src:   `<div ` + testNS + `><p metal:use-macros="x">x</p></div>`,
			check: IsTemplateError,
		},
		{
			name:  "slot outside macro",
			src:   `<div ` + testNS + `><p metal:define-slot="s">x</p></div>`,
			check: IsTemplateError,
		},
		{
			name:  "missing macro",
			src:   `<div ` + testNS + `><p metal:use-macro="template/macros/none">x</p></div>`,
			check: IsTemplateError,
		},
		{
			name:  "render depth",
			src:   `<div ` + testNS + `><div tal:condition="false"><div metal:define-macro="r"><div metal:use-macro="template/macros/r"/></div></div><div metal:use-macro="template/macros/r"/></div>`,
			check: IsTemplateError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := renderString(t, newTestEngine(), tt.src, nil, nil)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error %T: %v", err, err)
		})
	}
}

func TestProcessorRecovers(t *testing.T) {
	here := map[string]any{"name": "Ann", "ann": person{Name: "Ann"}}

	tests := []struct {
		name      string
		body      string
		want      string
		elements  []string
		lastCheck func(error) bool
	}{
		{
			name:      "missing path and non-macro value",
			body:      `<p tal:content="here/missing/x">a</p><p>b</p><q metal:use-macro="here/name">c</q>`,
			want:      `<div><p>b</p></div>`,
			elements:  []string{"p", "q"},
			lastCheck: IsEvaluationError,
		},
		{
			name:     "resolver cannot find template",
			body:     `<p tal:content="resolver/template('missing.html')">x</p><b>after</b>`,
			want:     `<div><b>after</b></div>`,
			elements: []string{"p"},
			lastCheck: func(err error) bool {
				return IsEvaluationError(err) && IsDocumentError(err)
			},
		},
		{
			name:      "exists does not hide failing calls",
			body:      `<i tal:content="exists:resolver/template('missing.html')">x</i><b>after</b>`,
			want:      `<div><b>after</b></div>`,
			elements:  []string{"i"},
			lastCheck: IsEvaluationError,
		},
		{
			name:     "method returning an error",
			body:     `<p tal:content="here/ann/fail()">x</p><b tal:content="here/ann/name">n</b>`,
			want:     `<div><b>Ann</b></div>`,
			elements: []string{"p"},
			lastCheck: func(err error) bool {
				return IsEvaluationError(err) && IsTemplateError(err)
			},
		},
		{
			name:      "macro from a missing template",
			body:      `<q metal:use-macro="resolver/template('missing.html')/macros/page">x</q><b>after</b>`,
			want:      `<div><b>after</b></div>`,
			elements:  []string{"q"},
			lastCheck: IsDocumentError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine()
			e.SetResolver(e.NewFSResolver(testFS()))
			var faults []Fault
			e.SetFaultHandler(func(f Fault) { faults = append(faults, f) })

			got, err := renderString(t, e, `<div `+testNS+`>`+tt.body+`</div>`, here, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			require.Len(t, faults, len(tt.elements))
			for i, el := range tt.elements {
				assert.Equal(t, el, faults[i].Element)
			}
			last := faults[len(faults)-1]
			assert.True(t, tt.lastCheck(last.Err), "unexpected fault %T: %v", last.Err, last.Err)
		})
	}
}

func TestProcessorFaultExpression(t *testing.T) {
	e := newTestEngine()
	var faults []Fault
	e.SetFaultHandler(func(f Fault) { faults = append(faults, f) })

	_, err := renderString(t, e, `<div `+testNS+`><p tal:content="here/missing/x">a</p></div>`, map[string]any{}, nil)
	require.NoError(t, err)
	require.Len(t, faults, 1)
	assert.Equal(t, "here/missing/x", faults[0].Expression)
	assert.True(t, IsNoSuchPathError(faults[0].Err))
}

func TestProcessorStrictMode(t *testing.T) {
	here := map[string]any{"ann": person{Name: "Ann"}}

	tests := []struct {
		name  string
		body  string
		check func(error) bool
	}{
		{"missing path", `<p tal:content="here/missing/x">a</p><p>b</p>`, IsNoSuchPathError},
		{"resolver cannot find template", `<p tal:content="resolver/template('missing.html')">x</p>`, IsDocumentError},
		{"method returning an error", `<p tal:content="here/ann/fail()">x</p>`, IsEvaluationError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(strict)
			e.SetResolver(e.NewFSResolver(testFS()))

			_, err := renderString(t, e, `<div `+testNS+`>`+tt.body+`</div>`, here, nil)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error %T: %v", err, err)
			assert.True(t, IsRecoverable(err))
		})
	}
}

func TestProcessorUnwindsLoopsOnFault(t *testing.T) {
	src := `<div ` + testNS + `><p tal:repeat="x here/list" tal:content="x/missing">a</p><i tal:content="exists:x">b</i><b tal:content="exists:repeat">c</b></div>`
	got, err := renderString(t, newTestEngine(), src, map[string]any{"list": []int{1, 2}}, nil)
	require.NoError(t, err)
	assert.Equal(t, `<div><i>false</i><b>false</b></div>`, got)
}

func TestDeclaration(t *testing.T) {
	src := `<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.0 Strict//EN" "http://www.w3.org/TR/xhtml1/DTD/xhtml1-strict.dtd">
<html ` + testNS + `><body tal:content="here">x</body></html>`

	e := newTestEngine(func(c *Config) { c.SuppressDeclaration = false })
	got, err := renderString(t, e, src, "hi", nil)
	require.NoError(t, err)
	want := "<?xml version='1.0' encoding='UTF-8'?>\n" +
		`<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.0 Strict//EN" "http://www.w3.org/TR/xhtml1/DTD/xhtml1-strict.dtd">` + "\n" +
		`<html><body>hi</body></html>`
	assert.Equal(t, want, got)

	got, err = renderString(t, newTestEngine(), src, "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, `<html><body>hi</body></html>`, got)
}

func TestStructureOptions(t *testing.T) {
	src := `<div ` + testNS + `><p tal:content="structure html">x</p></div>`

	t.Run("sanitized", func(t *testing.T) {
		e := newTestEngine(func(c *Config) { c.SanitizeStructure = true })
		got, err := renderString(t, e, src, nil, map[string]any{"html": `<b>ok</b><script>alert(1)</script>`})
		require.NoError(t, err)
		assert.Equal(t, `<div><p><b>ok</b></p></div>`, got)
	})

	t.Run("ampersands escaped", func(t *testing.T) {
		e := newTestEngine(func(c *Config) { c.EscapeAmpersands = true })
		got, err := renderString(t, e, src, nil, map[string]any{"html": `a & b &amp; c &#38; d`})
		require.NoError(t, err)
		assert.Equal(t, `<div><p>a &amp; b &amp; c &#38; d</p></div>`, got)
	})

	t.Run("fragment passes through", func(t *testing.T) {
		got, err := renderString(t, newTestEngine(), src, nil, map[string]any{"html": NewFragment("<em>f</em>")})
		require.NoError(t, err)
		assert.Equal(t, `<div><p><em>f</em></p></div>`, got)
	})
}

func TestIncludable(t *testing.T) {
	e := newTestEngine()
	part, err := e.PrepareString(`<span ` + testNS + ` tal:content="here/name">n</span>`)
	require.NoError(t, err)

	got, err := renderString(t, e, `<div `+testNS+` tal:content="structure inc">x</div>`, nil,
		map[string]any{"inc": part.Include(map[string]any{"name": "Bo"})})
	require.NoError(t, err)
	assert.Equal(t, `<div><span>Bo</span></div>`, got)
}

func TestLenientParsing(t *testing.T) {
	src := `<div tal:content="here/name">x<br></div>`

	got, err := renderString(t, newTestEngine(), src, map[string]any{"name": "Ann"}, nil)
	require.NoError(t, err)
	assert.Equal(t, `<div>Ann</div>`, got)

	_, err = newTestEngine(func(c *Config) { c.AllowHTML = false }).PrepareString(src)
	require.Error(t, err)
	assert.True(t, IsParseError(err))
}

func TestConcurrentRenders(t *testing.T) {
	tmpl, err := newTestEngine().PrepareString(`<ul ` + testNS + `><li tal:repeat="x here" tal:content="x">y</li></ul>`)
	require.NoError(t, err)

	done := make(chan string, 8)
	for i := 0; i < 8; i++ {
		go func(n int) {
			items := make([]int, n)
			out, err := tmpl.Render(items, nil)
			if err != nil {
				out = err.Error()
			}
			done <- out
		}(i + 1)
	}
	for i := 0; i < 8; i++ {
		out := <-done
		assert.True(t, strings.HasPrefix(out, "<ul><li>0</li>"), out)
	}
}
