// Package dialect contains the SQL dialects the serializer can target. A
// Dialect is a stateless strategy object; obtain instances through a Manager.
package dialect

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/FrankChen021/bithon-sub017/internal/alertql"
	"github.com/FrankChen021/bithon-sub017/internal/schema"
)

var (
	// ErrUnsupportedOperation is returned when a dialect can not provide a capability.
	ErrUnsupportedOperation = errors.New("unsupported operation")
	// ErrNoDialect is returned by the Manager for unknown dialect names.
	ErrNoDialect = errors.New("no dialect found")
)

// Dialect captures the syntax differences between SQL backends.
type Dialect interface {
	// Name is the canonical lower-case name, e.g. "postgresql".
	Name() string

	QuoteIdentifier(name string) string

	// TimeFloorExpression buckets tsExpr into intervalSeconds wide windows and
	// returns the bucket start as unix seconds.
	TimeFloorExpression(tsExpr string, intervalSeconds int64) string

	// StringAggregator concatenates the distinct values of a string column.
	StringAggregator(field string) string

	FormatDateTime(t time.Time) string

	// EscapeCharacterForSingleQuote is the character written before a single
	// quote inside a string literal. A single quote means the quote is doubled.
	EscapeCharacterForSingleQuote() byte

	// Transform rewrites an expression into constructs the dialect can express.
	Transform(s *schema.Schema, expr alertql.Expression) (alertql.Expression, error)

	// UseWindowFunctionAsAggregator reports whether the aggregator must be computed
	// with a window function instead of an aggregate function.
	UseWindowFunctionAsAggregator(aggregator string) bool

	FirstWindowFunction(field, partitionBy, orderBy string) (string, error)
	LastWindowFunction(field, partitionBy, orderBy string) (string, error)

	// NeedTableAlias reports whether a subquery in FROM must be aliased.
	NeedTableAlias() bool

	// IsAliasAllowedInWhereClause reports whether WHERE may reference SELECT aliases.
	IsAliasAllowedInWhereClause() bool

	SupportsBooleanLiteral() bool
}

// ansi implements the behavior shared by most dialects. Concrete dialects embed
// it and override what differs.
type ansi struct{}

func (ansi) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (ansi) FormatDateTime(t time.Time) string {
	return "TIMESTAMP '" + t.UTC().Format("2006-01-02 15:04:05.000") + "'"
}

func (ansi) EscapeCharacterForSingleQuote() byte { return '\'' }

func (ansi) UseWindowFunctionAsAggregator(aggregator string) bool {
	return aggregator == string(alertql.AggFirst) || aggregator == string(alertql.AggLast)
}

func (ansi) FirstWindowFunction(field, partitionBy, orderBy string) (string, error) {
	return windowFunction(field, partitionBy, orderBy+" ASC"), nil
}

func (ansi) LastWindowFunction(field, partitionBy, orderBy string) (string, error) {
	return windowFunction(field, partitionBy, orderBy+" DESC"), nil
}

func windowFunction(field, partitionBy, orderBy string) string {
	if partitionBy == "" {
		return fmt.Sprintf("FIRST_VALUE(%s) OVER (ORDER BY %s)", field, orderBy)
	}
	return fmt.Sprintf("FIRST_VALUE(%s) OVER (PARTITION BY %s ORDER BY %s)", field, partitionBy, orderBy)
}

func (ansi) NeedTableAlias() bool { return false }

func (ansi) IsAliasAllowedInWhereClause() bool { return false }

func (ansi) SupportsBooleanLiteral() bool { return true }

// likeEscaper escapes the LIKE wildcards of a literal pattern using '\', the
// default LIKE escape character of ClickHouse, MySQL, PostgreSQL and H2.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// patternToLike turns contains/startswith/endswith into LIKE comparisons. Unless
// the dialect has native maps, comparisons on map keys become LIKE over the JSON
// text of the map column.
func patternToLike(dialect string, nativeMap bool, expr alertql.Expression) (alertql.Expression, error) {
	return alertql.Rewrite(expr, func(e alertql.Expression) (alertql.Expression, error) {
		b, ok := e.(*alertql.Binary)
		if !ok {
			return e, nil
		}

		if m, ok := b.LHS.(*alertql.MapAccess); ok && !nativeMap {
			return mapAccessToLike(dialect, b, m)
		}

		pattern, ok := stringOperand(b.RHS)
		if !ok {
			return e, nil
		}
		switch b.Op {
		case alertql.OpContains:
			return like(b.LHS, "%"+likeEscaper.Replace(pattern)+"%"), nil
		case alertql.OpStartsWith:
			return like(b.LHS, likeEscaper.Replace(pattern)+"%"), nil
		case alertql.OpEndsWith:
			return like(b.LHS, "%"+likeEscaper.Replace(pattern)), nil
		}
		return e, nil
	})
}

// mapAccessToLike rewrites tags['k'] = 'v' as tags LIKE '%"k":"v"%'.
func mapAccessToLike(dialect string, b *alertql.Binary, m *alertql.MapAccess) (alertql.Expression, error) {
	value, ok := stringOperand(b.RHS)
	if !ok {
		return nil, fmt.Errorf("%w: %s compares map column %s with a non-string value", ErrUnsupportedOperation, dialect, m.Map.Name)
	}
	pattern := "%" + likeEscaper.Replace(fmt.Sprintf(`"%s":"%s"`, m.Key, value)) + "%"
	switch b.Op {
	case alertql.OpEQ:
		return &alertql.Binary{Op: alertql.OpLike, LHS: m.Map, RHS: alertql.NewString(pattern)}, nil
	case alertql.OpNE:
		return &alertql.Binary{Op: alertql.OpNotLike, LHS: m.Map, RHS: alertql.NewString(pattern)}, nil
	default:
		return nil, fmt.Errorf("%w: %s does not support '%s' on map column %s", ErrUnsupportedOperation, dialect, b.Op, m.Map.Name)
	}
}

func like(lhs alertql.Expression, pattern string) alertql.Expression {
	return &alertql.Binary{Op: alertql.OpLike, LHS: lhs, RHS: alertql.NewString(pattern)}
}

func stringOperand(e alertql.Expression) (string, bool) {
	lit, ok := e.(*alertql.Literal)
	if !ok {
		return "", false
	}
	return lit.StringValue()
}
