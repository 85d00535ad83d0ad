// Package sqlgen turns alert expression ASTs into SQL for a given dialect.
package sqlgen

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/FrankChen021/bithon-sub017/internal/alertql"
	"github.com/FrankChen021/bithon-sub017/internal/dialect"
	"github.com/FrankChen021/bithon-sub017/internal/schema"
)

// ErrNotPredicate is returned when an alert expression is serialized as a predicate.
var ErrNotPredicate = errors.New("alert expressions can not be serialized as SQL predicates")

// Serializer converts expressions into SQL text. The dialect is consulted only
// through Transform and its capability methods.
type Serializer struct {
	schema  *schema.Schema
	dialect dialect.Dialect
	// selected holds the aliases projected by the enclosing SELECT.
	selected map[string]bool
}

// NewSerializer creates a serializer. The schema is optional; without it
// identifiers are emitted as written.
func NewSerializer(s *schema.Schema, d dialect.Dialect) *Serializer {
	return &Serializer{schema: s, dialect: d}
}

// WithSelectedAliases returns a serializer that may reference the given SELECT
// aliases directly when the dialect allows aliases in WHERE.
func (g *Serializer) WithSelectedAliases(aliases ...string) *Serializer {
	cp := *g
	cp.selected = make(map[string]bool, len(aliases))
	for _, a := range aliases {
		cp.selected[a] = true
	}
	return &cp
}

// Serialize is a shorthand for NewSerializer(s, d).Serialize(expr).
func Serialize(s *schema.Schema, d dialect.Dialect, expr alertql.Expression) (string, error) {
	return NewSerializer(s, d).Serialize(expr)
}

// Serialize applies the dialect transform and emits SQL for expr.
func (g *Serializer) Serialize(expr alertql.Expression) (string, error) {
	if expr == nil {
		return "", nil
	}
	transformed, err := g.dialect.Transform(g.schema, expr)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if err := g.visit(&sb, transformed); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (g *Serializer) visit(sb *strings.Builder, expr alertql.Expression) error {
	switch n := expr.(type) {
	case *alertql.Literal:
		sb.WriteString(g.formatLiteral(n))
	case *alertql.Identifier:
		sb.WriteString(g.identifier(n.Name))
	case *alertql.MapAccess:
		sb.WriteString(g.identifier(n.Map.Name))
		sb.WriteString("['")
		sb.WriteString(g.escapeSQLString(n.Key))
		sb.WriteString("']")
	case *alertql.Binary:
		return g.visitBinary(sb, n)
	case *alertql.FunctionCall:
		return g.visitFunction(sb, n)
	case *alertql.ExpressionList:
		sb.WriteByte('(')
		for i, item := range n.Items {
			if i > 0 {
				sb.WriteString(", ")
			}
			if err := g.visit(sb, item); err != nil {
				return err
			}
		}
		sb.WriteByte(')')
	case *alertql.AlertExpression:
		return fmt.Errorf("%w: %s", ErrNotPredicate, n.String())
	default:
		return fmt.Errorf("unsupported expression node %T", expr)
	}
	return nil
}

func (g *Serializer) visitBinary(sb *strings.Builder, n *alertql.Binary) error {
	if n.Op.IsLogical() {
		// Wrap each condition in parentheses and join with operator
		sb.WriteByte('(')
		if err := g.visit(sb, n.LHS); err != nil {
			return err
		}
		sb.WriteString(") ")
		sb.WriteString(strings.ToUpper(string(n.Op)))
		sb.WriteString(" (")
		if err := g.visit(sb, n.RHS); err != nil {
			return err
		}
		sb.WriteByte(')')
		return nil
	}

	if err := g.visit(sb, n.LHS); err != nil {
		return err
	}

	isNull := false
	if lit, ok := n.RHS.(*alertql.Literal); ok && lit.Type == alertql.LitNull {
		isNull = true
	}

	switch {
	case isNull && (n.Op == alertql.OpEQ || n.Op == alertql.OpIs):
		sb.WriteString(" IS NULL")
		return nil
	case isNull && (n.Op == alertql.OpNE || n.Op == alertql.OpIsNot):
		sb.WriteString(" IS NOT NULL")
		return nil
	}

	switch n.Op {
	case alertql.OpEQ, alertql.OpNE, alertql.OpGT, alertql.OpGTE, alertql.OpLT, alertql.OpLTE:
		sb.WriteString(" " + string(n.Op) + " ")
	case alertql.OpLike, alertql.OpNotLike, alertql.OpIn, alertql.OpNotIn:
		sb.WriteString(" " + strings.ToUpper(string(n.Op)) + " ")
	default:
		return fmt.Errorf("%w: operator '%s' in %s", dialect.ErrUnsupportedOperation, n.Op, g.dialect.Name())
	}
	return g.visit(sb, n.RHS)
}

func (g *Serializer) visitFunction(sb *strings.Builder, n *alertql.FunctionCall) error {
	sb.WriteString(n.Name)
	sb.WriteByte('(')
	// count() needs an argument on some databases
	if len(n.Args) == 0 && strings.EqualFold(n.Name, "count") {
		sb.WriteByte('1')
	}
	for i, arg := range n.Args {
		if i > 0 {
			sb.WriteString(", ")
		}
		if err := g.visit(sb, arg); err != nil {
			return err
		}
	}
	sb.WriteByte(')')
	return nil
}

// identifier quotes a column reference, resolving schema aliases unless the
// alias is projected by the query and the dialect can reference it in WHERE.
func (g *Serializer) identifier(name string) string {
	if g.selected[name] && g.dialect.IsAliasAllowedInWhereClause() {
		return g.dialect.QuoteIdentifier(name)
	}
	if g.schema != nil {
		name = g.schema.ColumnName(name)
	}
	return g.dialect.QuoteIdentifier(name)
}

func (g *Serializer) escapeSQLString(value string) string {
	if g.dialect.EscapeCharacterForSingleQuote() == '\'' {
		return strings.ReplaceAll(value, "'", "''")
	}
	// Escape backslashes first, then single quotes
	esc := string(g.dialect.EscapeCharacterForSingleQuote())
	result := strings.ReplaceAll(value, esc, esc+esc)
	return strings.ReplaceAll(result, "'", esc+"'")
}

func (g *Serializer) formatLiteral(l *alertql.Literal) string {
	switch v := l.Value.(type) {
	case string:
		return "'" + g.escapeSQLString(v) + "'"
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if g.dialect.SupportsBooleanLiteral() {
			return strings.ToUpper(strconv.FormatBool(v))
		}
		if v {
			return "1"
		}
		return "0"
	case time.Time:
		return g.dialect.FormatDateTime(v)
	case alertql.Duration:
		return strconv.FormatInt(v.Seconds(), 10)
	case alertql.HumanNumber:
		return strconv.FormatFloat(v.Value, 'f', -1, 64)
	case alertql.Percentage:
		return strconv.FormatFloat(v.Fraction, 'f', -1, 64)
	}
	if l.Type == alertql.LitAsterisk {
		return "*"
	}
	return "NULL"
}
