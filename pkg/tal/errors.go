// Package tal provides custom error types for better error handling and reporting.
package tal

import (
	"errors"
	"fmt"
	"strings"
)

// SyntaxError reports a malformed expression: unbalanced parentheses or
// quotes, an unclosed interpolation brace, or a malformed directive entry.
type SyntaxError struct {
	Expression string
	Message    string
}

func (e *SyntaxError) Error() string {
	if e.Expression != "" {
		return fmt.Sprintf("syntax error in expression '%s': %s", e.Expression, e.Message)
	}
	return fmt.Sprintf("syntax error: %s", e.Message)
}

func (e *SyntaxError) setExpression(expr string) {
	if e.Expression == "" {
		e.Expression = expr
	}
}

// NewSyntaxError creates a new syntax error
func NewSyntaxError(expression, message string) error {
	return &SyntaxError{Expression: expression, Message: message}
}

// NoSuchPathError signals a path that cannot be followed: a chained token
// applied to a null value, or a binding that is provably absent.
type NoSuchPathError struct {
	Expression string
	Message    string
}

func (e *NoSuchPathError) Error() string {
	if e.Expression != "" {
		return fmt.Sprintf("no such path in expression '%s': %s", e.Expression, e.Message)
	}
	return fmt.Sprintf("no such path: %s", e.Message)
}

func (e *NoSuchPathError) setExpression(expr string) {
	if e.Expression == "" {
		e.Expression = expr
	}
}

// NewNoSuchPathError creates a new no-such-path error
func NewNoSuchPathError(expression, message string) error {
	return &NoSuchPathError{Expression: expression, Message: message}
}

// EvaluationError represents an error during expression evaluation
type EvaluationError struct {
	Expression string
	Message    string
	Cause      error
}

func (e *EvaluationError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		if msg == "" {
			msg = e.Cause.Error()
		} else {
			msg = msg + ": " + e.Cause.Error()
		}
	}
	if e.Expression != "" {
		return fmt.Sprintf("evaluation error for expression '%s': %s", e.Expression, msg)
	}
	return fmt.Sprintf("evaluation error: %s", msg)
}

func (e *EvaluationError) Unwrap() error {
	return e.Cause
}

func (e *EvaluationError) setExpression(expr string) {
	if e.Expression == "" {
		e.Expression = expr
	}
}

// NewEvaluationError creates a new evaluation error
func NewEvaluationError(expression string, cause error) error {
	return &EvaluationError{Expression: expression, Cause: cause}
}

func evalErrorf(format string, args ...interface{}) error {
	return &EvaluationError{Message: fmt.Sprintf(format, args...)}
}

// expressionError is implemented by errors that remember the expression
// they were raised for.
type expressionError interface {
	error
	setExpression(expr string)
}

// attachExpression records expr on err unless an earlier evaluation
// already attached one.
func attachExpression(err error, expr string) error {
	var ee expressionError
	if errors.As(err, &ee) {
		ee.setExpression(expr)
	}
	return err
}

// TemplateError represents an error in the template structure that aborts
// rendering: unknown directives, misplaced slots, unresolved macros.
type TemplateError struct {
	Message string
	Element string
}

func (e *TemplateError) Error() string {
	if e.Element != "" {
		return fmt.Sprintf("template error at <%s>: %s", e.Element, e.Message)
	}
	return fmt.Sprintf("template error: %s", e.Message)
}

// NewTemplateError creates a new template error for the named element
func NewTemplateError(message, element string) error {
	return &TemplateError{Message: message, Element: element}
}

// ParseError represents an error while parsing template markup
type ParseError struct {
	Message string
	Line    int
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error at line %d: %s", e.Line, e.Message)
	}
	return fmt.Sprintf("parse error: %s", e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// NewParseError creates a new parse error
func NewParseError(message string, line int, cause error) error {
	return &ParseError{Message: message, Line: line, Cause: cause}
}

// DocumentError represents an error during document operations
type DocumentError struct {
	Operation string
	Path      string
	Cause     error
}

func (e *DocumentError) Error() string {
	if e.Path != "" && e.Cause != nil {
		return fmt.Sprintf("document error during %s of '%s': %v", e.Operation, e.Path, e.Cause)
	} else if e.Path != "" {
		return fmt.Sprintf("document error during %s of '%s'", e.Operation, e.Path)
	} else if e.Cause != nil {
		return fmt.Sprintf("document error during %s: %v", e.Operation, e.Cause)
	}
	return fmt.Sprintf("document error during %s", e.Operation)
}

func (e *DocumentError) Unwrap() error {
	return e.Cause
}

// NewDocumentError creates a new document error
func NewDocumentError(operation, path string, cause error) error {
	return &DocumentError{
		Operation: operation,
		Path:      path,
		Cause:     cause,
	}
}

// ValidationIssue represents a single validation problem
type ValidationIssue struct {
	Field   string
	Message string
}

// ValidationError represents multiple validation issues
type ValidationError struct {
	Issues []ValidationIssue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "validation error"
	}

	if len(e.Issues) == 1 {
		return fmt.Sprintf("validation error: %s - %s", e.Issues[0].Field, e.Issues[0].Message)
	}

	var parts []string
	parts = append(parts, fmt.Sprintf("%d validation issues:", len(e.Issues)))
	for _, issue := range e.Issues {
		parts = append(parts, fmt.Sprintf("  %s: %s", issue.Field, issue.Message))
	}
	return strings.Join(parts, "\n")
}

// MultiError collects multiple errors
type MultiError struct {
	errors []error
}

// NewMultiError creates a new multi-error collector
func NewMultiError() *MultiError {
	return &MultiError{
		errors: make([]error, 0),
	}
}

// Add adds an error to the collection (ignores nil errors)
func (m *MultiError) Add(err error) {
	if err != nil {
		m.errors = append(m.errors, err)
	}
}

// Len returns the number of errors
func (m *MultiError) Len() int {
	return len(m.errors)
}

// Errors returns the collected errors
func (m *MultiError) Errors() []error {
	return m.errors
}

// Err returns the multi-error or nil if empty
func (m *MultiError) Err() error {
	if len(m.errors) == 0 {
		return nil
	}
	if len(m.errors) == 1 {
		return m.errors[0]
	}
	return m
}

func (m *MultiError) Error() string {
	if len(m.errors) == 0 {
		return "no errors"
	}

	if len(m.errors) == 1 {
		return m.errors[0].Error()
	}

	var parts []string
	parts = append(parts, fmt.Sprintf("%d errors occurred:", len(m.errors)))
	for i, err := range m.errors {
		parts = append(parts, fmt.Sprintf("  [%d] %v", i+1, err))
	}
	return strings.Join(parts, "\n")
}

// Unwrap exposes the collected errors to errors.Is and errors.As
func (m *MultiError) Unwrap() []error {
	return m.errors
}

// ContextError adds context to an existing error
type ContextError struct {
	Operation string
	Context   map[string]interface{}
	Cause     error
}

func (e *ContextError) Error() string {
	var contextParts []string
	for k, v := range e.Context {
		contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
	}

	if len(contextParts) > 0 {
		return fmt.Sprintf("%s [%s]: %v", e.Operation, strings.Join(contextParts, ", "), e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Operation, e.Cause)
}

func (e *ContextError) Unwrap() error {
	return e.Cause
}

// WithContext wraps an error with additional context
func WithContext(err error, operation string, context map[string]interface{}) error {
	if err == nil {
		return nil
	}
	return &ContextError{
		Operation: operation,
		Context:   context,
		Cause:     err,
	}
}

// RecoverError converts a panic recovery value to an error
func RecoverError(r interface{}) error {
	switch v := r.(type) {
	case error:
		return fmt.Errorf("panic recovered: %w", v)
	case string:
		return fmt.Errorf("panic recovered: %s", v)
	default:
		return fmt.Errorf("panic recovered: %v", v)
	}
}

// IsSyntaxError checks if an error is a syntax error
func IsSyntaxError(err error) bool {
	var target *SyntaxError
	return errors.As(err, &target)
}

// IsNoSuchPathError checks if an error is a no-such-path error
func IsNoSuchPathError(err error) bool {
	var target *NoSuchPathError
	return errors.As(err, &target)
}

// IsEvaluationError checks if an error is an evaluation error
func IsEvaluationError(err error) bool {
	var target *EvaluationError
	return errors.As(err, &target)
}

// IsTemplateError checks if an error is a template error
func IsTemplateError(err error) bool {
	var target *TemplateError
	return errors.As(err, &target)
}

// IsParseError checks if an error is a parse error
func IsParseError(err error) bool {
	var target *ParseError
	return errors.As(err, &target)
}

// IsDocumentError checks if an error is a document error
func IsDocumentError(err error) bool {
	var target *DocumentError
	return errors.As(err, &target)
}

// IsRecoverable reports whether err is an expression fault that the
// processor may log and skip past instead of aborting the render. The
// outermost typed error decides, so an expression that failed because a
// host call returned a template or document error is still a fault.
func IsRecoverable(err error) bool {
	for err != nil {
		switch err.(type) {
		case *SyntaxError, *NoSuchPathError, *EvaluationError:
			return true
		case *TemplateError, *DocumentError, *ParseError:
			return false
		}
		err = errors.Unwrap(err)
	}
	return false
}
