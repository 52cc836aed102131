package tal

import "strings"

// Tokenizer splits an expression on a delimiter, ignoring delimiters that
// appear inside parentheses or single-quoted spans. When escaping is on, a
// doubled delimiter outside any nesting stands for one literal delimiter.
//
// The whole expression is scanned when the tokenizer is created, so the
// number of tokens is known up front. Tokens are handed out once each.
type Tokenizer struct {
	tokens []string
	next   int
}

// NewTokenizer scans expr. It fails with a *SyntaxError on unbalanced
// parentheses or an unterminated quote.
func NewTokenizer(expr string, delim byte, escape bool) (*Tokenizer, error) {
	var tokens []string
	var current strings.Builder
	depth := 0
	quoted := false

	for i := 0; i < len(expr); i++ {
		c := expr[i]
		switch {
		case c == '\'':
			quoted = !quoted
		case quoted:
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth < 0 {
				return nil, &SyntaxError{Expression: expr, Message: "unmatched right parenthesis"}
			}
		case c == delim && depth == 0:
			if escape && i+1 < len(expr) && expr[i+1] == delim {
				current.WriteByte(delim)
				i++
				continue
			}
			tokens = append(tokens, current.String())
			current.Reset()
			continue
		}
		current.WriteByte(c)
	}

	if depth > 0 {
		return nil, &SyntaxError{Expression: expr, Message: "unmatched left parenthesis"}
	}
	if quoted {
		return nil, &SyntaxError{Expression: expr, Message: "runaway quotation"}
	}
	tokens = append(tokens, current.String())
	return &Tokenizer{tokens: tokens}, nil
}

// HasMore reports whether Next has tokens left to return.
func (t *Tokenizer) HasMore() bool {
	return t.next < len(t.tokens)
}

// Next returns the next token, or "" once the tokens are exhausted.
func (t *Tokenizer) Next() string {
	if t.next >= len(t.tokens) {
		return ""
	}
	tok := t.tokens[t.next]
	t.next++
	return tok
}

// Count is the total number of tokens, consumed or not.
func (t *Tokenizer) Count() int {
	return len(t.tokens)
}

// Split tokenizes expr and returns all tokens.
func Split(expr string, delim byte, escape bool) ([]string, error) {
	t, err := NewTokenizer(expr, delim, escape)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, t.Count())
	for t.HasMore() {
		out = append(out, t.Next())
	}
	return out, nil
}
