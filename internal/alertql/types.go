// Package alertql provides parsing, formatting and JSON encoding for alert expressions.
// An alert expression applies an aggregator to a metric of a dataset over a time window
// and compares the result against an absolute threshold or against a baseline window,
// for example:
//
//	avg(jvm-metrics.cpu{appName = 'a'})[5m] > 1[-7m]
package alertql

import (
	"fmt"
	"strings"
	"time"
)

// NodeKind is the discriminator of an expression node.
type NodeKind string

const (
	NodeLiteral    NodeKind = "literal"
	NodeIdentifier NodeKind = "identifier"
	NodeMapAccess  NodeKind = "map_access"
	NodeBinary     NodeKind = "binary"
	NodeFunction   NodeKind = "function"
	NodeList       NodeKind = "list"
	NodeAlert      NodeKind = "alert"
)

// Expression is the interface for all AST node types.
type Expression interface {
	Kind() NodeKind
	// String returns the DSL text of the node.
	String() string
}

// LiteralKind identifies the type of a literal value.
type LiteralKind string

const (
	LitString     LiteralKind = "string"
	LitLong       LiteralKind = "long"
	LitDouble     LiteralKind = "double"
	LitBool       LiteralKind = "bool"
	LitNull       LiteralKind = "null"
	LitTimestamp  LiteralKind = "timestamp"
	LitDuration   LiteralKind = "duration"
	LitNumber     LiteralKind = "number"
	LitPercentage LiteralKind = "percentage"
	LitAsterisk   LiteralKind = "asterisk"
)

// Literal is a constant value. Value holds a string, int64, float64, bool, nil,
// time.Time, Duration, HumanNumber or Percentage depending on Type.
type Literal struct {
	Type  LiteralKind
	Value any
}

func (l *Literal) Kind() NodeKind { return NodeLiteral }
func (l *Literal) String() string { return Format(l) }

func (i *Identifier) Kind() NodeKind { return NodeIdentifier }
func (i *Identifier) String() string { return Format(i) }

func (m *MapAccess) Kind() NodeKind { return NodeMapAccess }
func (m *MapAccess) String() string { return Format(m) }

func (b *Binary) Kind() NodeKind { return NodeBinary }
func (b *Binary) String() string { return Format(b) }

func (f *FunctionCall) Kind() NodeKind { return NodeFunction }
func (f *FunctionCall) String() string { return Format(f) }

func (e *ExpressionList) Kind() NodeKind { return NodeList }
func (e *ExpressionList) String() string { return Format(e) }

func (a *AlertExpression) Kind() NodeKind { return NodeAlert }
func (a *AlertExpression) String() string { return Format(a) }

// Compile-time verification that all node types implement Expression
var (
	_ Expression = (*Literal)(nil)
	_ Expression = (*Identifier)(nil)
	_ Expression = (*MapAccess)(nil)
	_ Expression = (*Binary)(nil)
	_ Expression = (*FunctionCall)(nil)
	_ Expression = (*ExpressionList)(nil)
	_ Expression = (*AlertExpression)(nil)
)

// NewString returns a string literal.
func NewString(s string) *Literal { return &Literal{Type: LitString, Value: s} }

// NewLong returns an integer literal.
func NewLong(v int64) *Literal { return &Literal{Type: LitLong, Value: v} }

// NewDouble returns a floating point literal.
func NewDouble(v float64) *Literal { return &Literal{Type: LitDouble, Value: v} }

// NewBool returns a boolean literal.
func NewBool(v bool) *Literal { return &Literal{Type: LitBool, Value: v} }

// NewNull returns the null literal.
func NewNull() *Literal { return &Literal{Type: LitNull} }

// NewTimestamp returns a timestamp literal normalized to UTC.
func NewTimestamp(t time.Time) *Literal { return &Literal{Type: LitTimestamp, Value: t.UTC()} }

// NewDurationLiteral returns a duration literal.
func NewDurationLiteral(d Duration) *Literal { return &Literal{Type: LitDuration, Value: d} }

// NewAsterisk returns the '*' literal.
func NewAsterisk() *Literal { return &Literal{Type: LitAsterisk} }

// IsNumeric reports whether the literal holds a number of any representation.
func (l *Literal) IsNumeric() bool {
	switch l.Type {
	case LitLong, LitDouble, LitNumber, LitPercentage:
		return true
	default:
		return false
	}
}

// Float64 returns the numeric magnitude of the literal. Percentages yield their
// fraction and durations their length in seconds.
func (l *Literal) Float64() (float64, bool) {
	switch v := l.Value.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case HumanNumber:
		return v.Value, true
	case Percentage:
		return v.Fraction, true
	case Duration:
		return float64(v.Seconds()), true
	default:
		return 0, false
	}
}

// StringValue returns the value of a string literal.
func (l *Literal) StringValue() (string, bool) {
	s, ok := l.Value.(string)
	return s, ok
}

// Identifier references a column of the dataset.
type Identifier struct {
	Name string
}

// MapAccess reads a key of a map-typed column, e.g. tags['env'].
type MapAccess struct {
	Map *Identifier
	Key string
}

// Operator is a comparison or logical operator of a Binary node.
type Operator string

const (
	OpEQ         Operator = "="
	OpNE         Operator = "<>"
	OpGT         Operator = ">"
	OpGTE        Operator = ">="
	OpLT         Operator = "<"
	OpLTE        Operator = "<="
	OpLike       Operator = "like"
	OpNotLike    Operator = "not like"
	OpIn         Operator = "in"
	OpNotIn      Operator = "not in"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "startswith"
	OpEndsWith   Operator = "endswith"
	OpIs         Operator = "is"
	OpIsNot      Operator = "is not"
	OpAnd        Operator = "and"
	OpOr         Operator = "or"
)

// IsLogical reports whether the operator combines two predicates.
func (o Operator) IsLogical() bool { return o == OpAnd || o == OpOr }

// IsOrdering reports whether the operator compares by order.
func (o Operator) IsOrdering() bool {
	return o == OpGT || o == OpGTE || o == OpLT || o == OpLTE
}

// ParseOperator converts a comparison token to an Operator, returning ok=false if invalid
func ParseOperator(s string) (Operator, bool) {
	switch strings.ToLower(s) {
	case "=", "==":
		return OpEQ, true
	case "<>", "!=":
		return OpNE, true
	case ">":
		return OpGT, true
	case ">=":
		return OpGTE, true
	case "<":
		return OpLT, true
	case "<=":
		return OpLTE, true
	case "like":
		return OpLike, true
	case "contains":
		return OpContains, true
	case "startswith":
		return OpStartsWith, true
	case "endswith":
		return OpEndsWith, true
	default:
		return "", false
	}
}

// Binary is a comparison (lhs op rhs) or a logical combination of two predicates.
type Binary struct {
	Op  Operator
	LHS Expression
	RHS Expression
}

// FunctionCall is a call such as lower(appName) or count().
type FunctionCall struct {
	Name string
	Args []Expression
}

// ExpressionList is the parenthesized right-hand side of IN.
type ExpressionList struct {
	Items []Expression
}

// Aggregator is the reduction applied to a metric over the window.
type Aggregator string

const (
	AggAvg   Aggregator = "avg"
	AggCount Aggregator = "count"
	AggSum   Aggregator = "sum"
	AggMin   Aggregator = "min"
	AggMax   Aggregator = "max"
	AggFirst Aggregator = "first"
	AggLast  Aggregator = "last"
)

// ParseAggregator returns ok=false for unknown aggregator names.
func ParseAggregator(s string) (Aggregator, bool) {
	switch a := Aggregator(strings.ToLower(s)); a {
	case AggAvg, AggCount, AggSum, AggMin, AggMax, AggFirst, AggLast:
		return a, true
	default:
		return "", false
	}
}

// Comparator is the predicate between the aggregated value and the threshold.
type Comparator string

const (
	CmpGT     Comparator = ">"
	CmpGTE    Comparator = ">="
	CmpLT     Comparator = "<"
	CmpLTE    Comparator = "<="
	CmpEQ     Comparator = "="
	CmpNE     Comparator = "<>"
	CmpIsNull Comparator = "is null"
)

// Compare applies the comparator to two numbers. It is false for CmpIsNull.
func (c Comparator) Compare(value, threshold float64) bool {
	switch c {
	case CmpGT:
		return value > threshold
	case CmpGTE:
		return value >= threshold
	case CmpLT:
		return value < threshold
	case CmpLTE:
		return value <= threshold
	case CmpEQ:
		return value == threshold
	case CmpNE:
		return value != threshold
	default:
		return false
	}
}

// IsDecrease reports whether a relative comparison looks for a drop from the baseline.
func (c Comparator) IsDecrease() bool { return c == CmpLT || c == CmpLTE }

// Selector is the aggregated metric: aggregator(dataset.field).
type Selector struct {
	Aggregator Aggregator
	Field      string
}

// DefaultWindow is used when an alert expression has no explicit window.
var DefaultWindow = Duration{Value: 1, Unit: UnitMinute}

// AlertExpression is a single alert clause. It is built once by the parser and
// must not be modified afterwards.
type AlertExpression struct {
	ID             string
	From           string
	Select         Selector
	Filter         Expression
	Window         Duration
	GroupBy        []string
	Comparator     Comparator
	Threshold      *Literal
	ExpectedWindow *Duration
}

// IsRelative reports whether the clause compares against a baseline window.
func (a *AlertExpression) IsRelative() bool { return a.ExpectedWindow != nil }

// Offset returns how far the baseline window lies before the current window.
func (a *AlertExpression) Offset() time.Duration {
	if a.ExpectedWindow == nil {
		return 0
	}
	return -a.ExpectedWindow.Std()
}

// Validate checks the invariants the parser enforces on a clause. It is used
// for clauses built by other means, such as the JSON decoder.
func (a *AlertExpression) Validate() error {
	if a.From == "" || a.Select.Field == "" {
		return &ParseError{Code: ErrUnexpectedToken, Message: "alert requires a dataset and a field"}
	}
	if _, ok := ParseAggregator(string(a.Select.Aggregator)); !ok {
		return &ParseError{Code: ErrUnknownAggregator, Message: fmt.Sprintf("unknown aggregator '%s'", a.Select.Aggregator)}
	}
	if a.Window.Value <= 0 {
		return &ParseError{Code: ErrInvalidWindow, Message: "window must be a positive duration"}
	}
	switch a.Comparator {
	case CmpGT, CmpGTE, CmpLT, CmpLTE, CmpEQ, CmpNE:
	case CmpIsNull:
		if a.Threshold != nil || a.ExpectedWindow != nil {
			return &ParseError{Code: ErrInvalidThreshold, Message: "'is null' takes no threshold or expected window"}
		}
		return nil
	default:
		return &ParseError{Code: ErrUnknownOperator, Message: fmt.Sprintf("unknown comparator '%s'", a.Comparator)}
	}
	if a.Threshold == nil || !a.Threshold.IsNumeric() {
		return &ParseError{Code: ErrInvalidThreshold, Message: "threshold must be a number or a percentage"}
	}
	if a.ExpectedWindow != nil && a.ExpectedWindow.Value >= 0 {
		return &ParseError{Code: ErrInvalidWindow, Message: "expected window must be a negative duration"}
	}
	if a.Threshold.Type == LitPercentage && a.ExpectedWindow == nil {
		return &ParseError{Code: ErrInvalidThreshold, Message: "percentage threshold requires an expected window, e.g. [-1d]"}
	}
	return nil
}

// MetricName returns dataset.field for display.
func (a *AlertExpression) MetricName() string {
	return fmt.Sprintf("%s.%s", a.From, a.Select.Field)
}
