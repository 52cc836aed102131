package tal

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name   string
		expr   string
		delim  byte
		escape bool
		want   []string
	}{
		{"single token", "here/name", '|', false, []string{"here/name"}},
		{"alternation", "a | b | c", '|', false, []string{"a ", " b ", " c"}},
		{"trailing delimiter", "a/", '/', false, []string{"a", ""}},
		{"empty", "", ';', true, []string{""}},
		{"inside parentheses", "f(a/b)/c", '/', false, []string{"f(a/b)", "c"}},
		{"inside quotes", "'a/b'/c", '/', false, []string{"'a/b'", "c"}},
		{"quote inside parentheses", "f(')')/x", '/', false, []string{"f(')')", "x"}},
		{"escaped delimiter", "title string:a;;b;href x", ';', true, []string{"title string:a;b", "href x"}},
		{"doubled without escape", "a;;b", ';', false, []string{"a", "", "b"}},
		{"escaped inside nesting stays", "f(a;;b);c", ';', true, []string{"f(a;;b)", "c"}},
		{"arguments", "1, 'x,y', f(2,3)", ',', false, []string{"1", " 'x,y'", " f(2,3)"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Split(tt.expr, tt.delim, tt.escape)
			if err != nil {
				t.Fatalf("Split(%q) error = %v", tt.expr, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Split(%q) mismatch (-want +got):\n%s", tt.expr, diff)
			}
		})
	}
}

func TestSplitErrors(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want string
	}{
		{"unmatched right", "a)/b", "unmatched right parenthesis"},
		{"unmatched left", "f(a/b", "unmatched left parenthesis"},
		{"runaway quote", "'abc/d", "runaway quotation"},
		{"quote hides parenthesis", "'a)", "runaway quotation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Split(tt.expr, '/', false)
			if !IsSyntaxError(err) {
				t.Fatalf("Split(%q) error = %v, want *SyntaxError", tt.expr, err)
			}
			se := err.(*SyntaxError)
			if se.Message != tt.want {
				t.Errorf("message = %q, want %q", se.Message, tt.want)
			}
		})
	}
}

func TestTokenizer(t *testing.T) {
	tok, err := NewTokenizer("a/b/c", '/', false)
	if err != nil {
		t.Fatal(err)
	}
	if tok.Count() != 3 {
		t.Errorf("Count() = %d, want 3", tok.Count())
	}

	var got []string
	for tok.HasMore() {
		got = append(got, tok.Next())
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, got); diff != "" {
		t.Errorf("tokens mismatch (-want +got):\n%s", diff)
	}
	if tok.HasMore() {
		t.Error("HasMore() = true after exhausting tokens")
	}
}

func TestSplitCountsUnguardedDelimiters(t *testing.T) {
	exprs := []string{
		"a|b",
		"a|(b|c)|d",
		"'|'|x",
		"f(g(1|2)|3)",
		"|||",
	}
	for _, expr := range exprs {
		want := 1
		depth, quoted := 0, false
		for i := 0; i < len(expr); i++ {
			switch c := expr[i]; {
			case c == '\'':
				quoted = !quoted
			case quoted:
			case c == '(':
				depth++
			case c == ')':
				depth--
			case c == '|' && depth == 0:
				want++
			}
		}
		got, err := Split(expr, '|', false)
		if err != nil {
			t.Fatalf("Split(%q) error = %v", expr, err)
		}
		if len(got) != want {
			t.Errorf("Split(%q) gave %d tokens, want %d", expr, len(got), want)
		}
	}
}
