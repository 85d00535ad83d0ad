package dialect

import (
	"fmt"

	"github.com/FrankChen021/bithon-sub017/internal/alertql"
	"github.com/FrankChen021/bithon-sub017/internal/schema"
)

type PostgreSQL struct {
	ansi
}

func NewPostgreSQL() Dialect { return &PostgreSQL{} }

func (*PostgreSQL) Name() string { return "postgresql" }

func (*PostgreSQL) TimeFloorExpression(tsExpr string, intervalSeconds int64) string {
	return fmt.Sprintf("FLOOR(EXTRACT(EPOCH FROM %s) / %d) * %d", tsExpr, intervalSeconds, intervalSeconds)
}

func (*PostgreSQL) StringAggregator(field string) string {
	return fmt.Sprintf("string_agg(DISTINCT %s, ',')", field)
}

func (*PostgreSQL) Transform(_ *schema.Schema, expr alertql.Expression) (alertql.Expression, error) {
	return patternToLike("postgresql", false, expr)
}

func (*PostgreSQL) NeedTableAlias() bool { return true }
