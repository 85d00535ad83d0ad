package dialect

import (
	"fmt"

	"github.com/FrankChen021/bithon-sub017/internal/alertql"
	"github.com/FrankChen021/bithon-sub017/internal/schema"
)

// H2 is the embedded database used by single node deployments.
type H2 struct {
	ansi
}

func NewH2() Dialect { return &H2{} }

func (*H2) Name() string { return "h2" }

func (*H2) TimeFloorExpression(tsExpr string, intervalSeconds int64) string {
	return fmt.Sprintf("FLOOR(DATEDIFF('SECOND', TIMESTAMP '1970-01-01 00:00:00', %s) / %d) * %d", tsExpr, intervalSeconds, intervalSeconds)
}

func (*H2) StringAggregator(field string) string {
	return fmt.Sprintf("LISTAGG(DISTINCT %s, ',')", field)
}

func (*H2) Transform(_ *schema.Schema, expr alertql.Expression) (alertql.Expression, error) {
	return patternToLike("h2", false, expr)
}
