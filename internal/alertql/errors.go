package alertql

import "fmt"

// Position represents a position in the source text
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// ParseError is returned for any invalid expression. Parsing never returns a
// partial AST together with a ParseError.
type ParseError struct {
	Code     string    `json:"code"`
	Message  string    `json:"message"`
	Fragment string    `json:"fragment,omitempty"`
	Position *Position `json:"position,omitempty"`
}

func (e *ParseError) Error() string {
	switch {
	case e.Position != nil && e.Fragment != "":
		return fmt.Sprintf("invalid expression at line %d, column %d near %q: %s", e.Position.Line, e.Position.Column, e.Fragment, e.Message)
	case e.Fragment != "":
		return fmt.Sprintf("invalid expression near %q: %s", e.Fragment, e.Message)
	default:
		return "invalid expression: " + e.Message
	}
}

// Error codes for parse errors
const (
	ErrUnterminatedString = "UNTERMINATED_STRING"
	ErrUnexpectedEnd      = "UNEXPECTED_END"
	ErrUnexpectedToken    = "UNEXPECTED_TOKEN"
	ErrUnexpectedChar     = "UNEXPECTED_CHARACTER"
	ErrUnknownAggregator  = "UNKNOWN_AGGREGATOR"
	ErrUnknownOperator    = "UNKNOWN_OPERATOR"
	ErrInvalidWindow      = "INVALID_WINDOW"
	ErrInvalidNumber      = "INVALID_NUMBER"
	ErrInvalidThreshold   = "INVALID_THRESHOLD"
	ErrTypeMismatch       = "TYPE_MISMATCH"
	ErrInvalidNull        = "INVALID_NULL"
	ErrEmptyExpression    = "EMPTY_EXPRESSION"
)
