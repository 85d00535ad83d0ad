package dialect

import (
	"fmt"
	"strings"
	"time"

	"github.com/FrankChen021/bithon-sub017/internal/alertql"
	"github.com/FrankChen021/bithon-sub017/internal/schema"
)

// ClickHouse supports native maps and aliases in WHERE, and computes first/last
// with argMin/argMax instead of window functions.
type ClickHouse struct {
	ansi
}

func NewClickHouse() Dialect { return &ClickHouse{} }

func (*ClickHouse) Name() string { return "clickhouse" }

func (*ClickHouse) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (*ClickHouse) TimeFloorExpression(tsExpr string, intervalSeconds int64) string {
	return fmt.Sprintf("toUnixTimestamp(toStartOfInterval(%s, INTERVAL %d SECOND))", tsExpr, intervalSeconds)
}

func (*ClickHouse) StringAggregator(field string) string {
	return fmt.Sprintf("arrayStringConcat(groupUniqArray(%s), ',')", field)
}

func (*ClickHouse) FormatDateTime(t time.Time) string {
	return fmt.Sprintf("fromUnixTimestamp64Milli(%d)", t.UnixMilli())
}

func (*ClickHouse) EscapeCharacterForSingleQuote() byte { return '\\' }

func (*ClickHouse) Transform(_ *schema.Schema, expr alertql.Expression) (alertql.Expression, error) {
	expr, err := patternToLike("clickhouse", true, expr)
	if err != nil {
		return nil, err
	}
	return alertql.Rewrite(expr, func(e alertql.Expression) (alertql.Expression, error) {
		switch n := e.(type) {
		case *alertql.FunctionCall:
			switch n.Name {
			case string(alertql.AggFirst):
				return &alertql.FunctionCall{Name: "argMin", Args: n.Args}, nil
			case string(alertql.AggLast):
				return &alertql.FunctionCall{Name: "argMax", Args: n.Args}, nil
			}
		}
		return e, nil
	})
}

func (*ClickHouse) UseWindowFunctionAsAggregator(string) bool { return false }

func (*ClickHouse) FirstWindowFunction(string, string, string) (string, error) {
	return "", fmt.Errorf("%w: clickhouse computes first with argMin", ErrUnsupportedOperation)
}

func (*ClickHouse) LastWindowFunction(string, string, string) (string, error) {
	return "", fmt.Errorf("%w: clickhouse computes last with argMax", ErrUnsupportedOperation)
}

func (*ClickHouse) IsAliasAllowedInWhereClause() bool { return true }
