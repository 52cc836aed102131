package tal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		field   string
		message string
	}{
		{"valid", `<p tal:repeat="x here/list" tal:content="x">x</p>`, "", ""},
		{"unknown tal attribute", `<p tal:bogus="x">x</p>`, "div/p[1]", "unknown tal attribute: bogus"},
		{"unknown metal attribute", `<p metal:bogus="x">x</p>`, "div/p[1]", "unknown metal attribute: bogus"},
		{"unbalanced parenthesis", `<p tal:content="a/(b">x</p>`, "div/p[1]@tal:content", "unmatched left parenthesis"},
		{"runaway quote in alternation", `<p tal:condition="a | 'b">x</p>`, "div/p[1]@tal:condition", "runaway quotation"},
		{"unclosed interpolation", `<p tal:content="string:${name">x</p>`, "div/p[1]@tal:content", "unclosed left curly brace"},
		{"escaped dollar", `<p tal:content="string:$${name">x</p>`, "", ""},
		{"repeat without source", `<p tal:repeat="x">x</p>`, "div/p[1]@tal:repeat", "expected \"name expression\""},
		{"define without expression", `<p tal:define="x 1; y">x</p>`, "div/p[1]@tal:define", "got \"y\""},
		{"attributes checked", `<p tal:attributes="href a/(b">x</p>`, "div/p[1]@tal:attributes", "unmatched left parenthesis"},
		{"empty macro expression", `<p metal:use-macro=" ">x</p>`, "div/p[1]@metal:use-macro", "empty macro expression"},
		{"slot outside macro", `<p metal:define-slot="s">x</p>`, "div/p[1]@metal:define-slot", "not inside a macro definition"},
		{"slot inside macro", `<section metal:define-macro="m"><p metal:define-slot="s">x</p></section>`, "", ""},
		{"second sibling", `<p>a</p><p tal:omit-tag="a/(">b</p>`, "div/p[2]@tal:omit-tag", "unmatched left parenthesis"},
		{"nested path", `<ul><li><b tal:content="exists:a/(">x</b></li></ul>`, "div/ul[1]/li[1]/b[1]@tal:content", "unmatched left parenthesis"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := newTestEngine().PrepareString(`<div ` + testNS + `>` + tt.body + `</div>`)
			require.NoError(t, err)

			err = tmpl.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}

			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			require.Len(t, ve.Issues, 1)
			assert.Equal(t, tt.field, ve.Issues[0].Field)
			assert.Contains(t, ve.Issues[0].Message, tt.message)
		})
	}
}

func TestValidateCollectsAllIssues(t *testing.T) {
	tmpl, err := newTestEngine().PrepareString(`<div ` + testNS + `><p tal:content="(">a</p><p tal:bogus="">b</p></div>`)
	require.NoError(t, err)

	var ve *ValidationError
	require.True(t, errors.As(tmpl.Validate(), &ve))
	assert.Len(t, ve.Issues, 2)
}
