package dialect

import (
	"fmt"
	"strings"
	"time"

	"github.com/FrankChen021/bithon-sub017/internal/alertql"
	"github.com/FrankChen021/bithon-sub017/internal/schema"
)

type MySQL struct {
	ansi
}

func NewMySQL() Dialect { return &MySQL{} }

func (*MySQL) Name() string { return "mysql" }

func (*MySQL) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (*MySQL) TimeFloorExpression(tsExpr string, intervalSeconds int64) string {
	return fmt.Sprintf("FLOOR(UNIX_TIMESTAMP(%s) / %d) * %d", tsExpr, intervalSeconds, intervalSeconds)
}

func (*MySQL) StringAggregator(field string) string {
	return fmt.Sprintf("GROUP_CONCAT(DISTINCT %s)", field)
}

func (*MySQL) FormatDateTime(t time.Time) string {
	return "'" + t.UTC().Format("2006-01-02 15:04:05.000") + "'"
}

func (*MySQL) EscapeCharacterForSingleQuote() byte { return '\\' }

func (*MySQL) Transform(_ *schema.Schema, expr alertql.Expression) (alertql.Expression, error) {
	return patternToLike("mysql", false, expr)
}

// Derived tables must have an alias in MySQL.
func (*MySQL) NeedTableAlias() bool { return true }

func (*MySQL) SupportsBooleanLiteral() bool { return false }
