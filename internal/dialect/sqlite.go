package dialect

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/FrankChen021/bithon-sub017/internal/alertql"
	"github.com/FrankChen021/bithon-sub017/internal/schema"
)

// SQLite stores timestamps as 'YYYY-MM-DD HH:MM:SS.SSS' text in UTC.
type SQLite struct {
	ansi
}

func NewSQLite() Dialect { return &SQLite{} }

func (*SQLite) Name() string { return "sqlite" }

func (*SQLite) TimeFloorExpression(tsExpr string, intervalSeconds int64) string {
	return fmt.Sprintf("(CAST(strftime('%%s', %s) AS INTEGER) / %d) * %d", tsExpr, intervalSeconds, intervalSeconds)
}

func (*SQLite) StringAggregator(field string) string {
	return fmt.Sprintf("group_concat(DISTINCT %s)", field)
}

func (*SQLite) FormatDateTime(t time.Time) string {
	return "'" + t.UTC().Format("2006-01-02 15:04:05.000") + "'"
}

// Transform uses instr/substr for pattern operators: SQLite's LIKE has no
// default escape character, so literal '%' and '_' can not be matched with it.
func (*SQLite) Transform(_ *schema.Schema, expr alertql.Expression) (alertql.Expression, error) {
	return alertql.Rewrite(expr, func(e alertql.Expression) (alertql.Expression, error) {
		b, ok := e.(*alertql.Binary)
		if !ok {
			return e, nil
		}

		lhs := b.LHS
		op := b.Op
		pattern, isString := stringOperand(b.RHS)
		if m, ok := b.LHS.(*alertql.MapAccess); ok {
			if !isString || (op != alertql.OpEQ && op != alertql.OpNE) {
				return nil, fmt.Errorf("%w: sqlite does not support '%s' on map column %s", ErrUnsupportedOperation, op, m.Map.Name)
			}
			lhs = m.Map
			pattern = fmt.Sprintf(`"%s":"%s"`, m.Key, pattern)
			if op == alertql.OpEQ {
				op = alertql.OpContains
			} else {
				return &alertql.Binary{Op: alertql.OpEQ, LHS: instr(lhs, pattern), RHS: alertql.NewLong(0)}, nil
			}
		}
		if !isString {
			return e, nil
		}

		switch op {
		case alertql.OpContains:
			return &alertql.Binary{Op: alertql.OpGT, LHS: instr(lhs, pattern), RHS: alertql.NewLong(0)}, nil
		case alertql.OpStartsWith:
			return &alertql.Binary{Op: alertql.OpEQ, LHS: instr(lhs, pattern), RHS: alertql.NewLong(1)}, nil
		case alertql.OpEndsWith:
			if pattern == "" {
				// substr(a, 0) is empty; every non-null value ends with ''.
				return &alertql.Binary{Op: alertql.OpLike, LHS: lhs, RHS: alertql.NewString("%")}, nil
			}
			n := int64(utf8.RuneCountInString(pattern))
			suffix := &alertql.FunctionCall{Name: "substr", Args: []alertql.Expression{lhs, alertql.NewLong(-n)}}
			return &alertql.Binary{Op: alertql.OpEQ, LHS: suffix, RHS: alertql.NewString(pattern)}, nil
		}
		return e, nil
	})
}

func instr(lhs alertql.Expression, s string) alertql.Expression {
	return &alertql.FunctionCall{Name: "instr", Args: []alertql.Expression{lhs, alertql.NewString(s)}}
}

func (*SQLite) SupportsBooleanLiteral() bool { return false }
