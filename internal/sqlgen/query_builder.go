package sqlgen

import (
	"fmt"
	"strings"
	"time"

	"github.com/FrankChen021/bithon-sub017/internal/alertql"
	"github.com/FrankChen021/bithon-sub017/internal/dialect"
	"github.com/FrankChen021/bithon-sub017/internal/schema"
)

// TimestampAlias is the output column of the time bucket in time series queries.
const TimestampAlias = "_timestamp"

// Aggregation is one aggregated output column.
type Aggregation struct {
	Aggregator alertql.Aggregator
	Field      string
	// Alias is the output column name, Field when empty.
	Alias string
}

func (a Aggregation) alias() string {
	if a.Alias != "" {
		return a.Alias
	}
	return a.Field
}

// Query describes an aggregation over [Start, End) of a dataset.
type Query struct {
	Schema  *schema.Schema
	Filter  alertql.Expression
	Start   time.Time
	End     time.Time
	GroupBy []string
	Metrics []Aggregation
	// Collect lists string columns whose distinct values are concatenated.
	Collect []string
	// Interval buckets the result into a time series when positive.
	Interval time.Duration
	Limit    int
}

// QueryBuilder builds SELECT statements for one dialect.
type QueryBuilder struct {
	dialect dialect.Dialect
}

func NewQueryBuilder(d dialect.Dialect) *QueryBuilder {
	return &QueryBuilder{dialect: d}
}

// Build returns the SQL of q.
func (b *QueryBuilder) Build(q Query) (string, error) {
	if q.Schema == nil {
		return "", fmt.Errorf("query has no schema")
	}
	if len(q.Metrics) == 0 {
		return "", fmt.Errorf("query on %s selects no metrics", q.Schema.Name)
	}
	if !q.End.After(q.Start) {
		return "", fmt.Errorf("invalid time range [%s, %s)", q.Start.Format(time.RFC3339), q.End.Format(time.RFC3339))
	}

	for _, m := range q.Metrics {
		if b.dialect.UseWindowFunctionAsAggregator(string(m.Aggregator)) {
			return b.buildWithWindowFunctions(q)
		}
	}
	return b.buildAggregate(q)
}

// GroupBy returns the SQL aggregating q per group over the whole range.
func (b *QueryBuilder) GroupBy(q Query) (string, error) {
	q.Interval = 0
	return b.Build(q)
}

// TimeSeries returns the SQL aggregating q per group and time bucket.
func (b *QueryBuilder) TimeSeries(q Query, interval time.Duration) (string, error) {
	if interval < time.Second {
		return "", fmt.Errorf("invalid interval %s", interval)
	}
	q.Interval = interval
	return b.Build(q)
}

func (b *QueryBuilder) quote(name string) string {
	return b.dialect.QuoteIdentifier(name)
}

// column returns the quoted physical column, aliased to name when they differ.
func (b *QueryBuilder) column(s *schema.Schema, name string) string {
	physical := s.ColumnName(name)
	if physical == name {
		return b.quote(name)
	}
	return b.quote(physical) + " AS " + b.quote(name)
}

func (b *QueryBuilder) timeBucket(q Query) string {
	seconds := int64(q.Interval / time.Second)
	if seconds <= 0 {
		seconds = 1
	}
	return b.dialect.TimeFloorExpression(b.quote(q.Schema.TimestampColumn), seconds) + " AS " + b.quote(TimestampAlias)
}

func (b *QueryBuilder) where(q Query) (string, error) {
	ts := b.quote(q.Schema.TimestampColumn)
	conditions := []string{
		fmt.Sprintf("%s >= %s", ts, b.dialect.FormatDateTime(q.Start)),
		fmt.Sprintf("%s < %s", ts, b.dialect.FormatDateTime(q.End)),
	}
	if q.Filter != nil {
		// Group-by columns are projected under their alias in the same SELECT.
		var aliases []string
		for _, g := range q.GroupBy {
			if q.Schema.ColumnName(g) != g {
				aliases = append(aliases, g)
			}
		}
		filter, err := NewSerializer(q.Schema, b.dialect).WithSelectedAliases(aliases...).Serialize(q.Filter)
		if err != nil {
			return "", err
		}
		conditions = append(conditions, "("+filter+")")
	}
	return " WHERE " + strings.Join(conditions, " AND "), nil
}

// groupKeys returns the GROUP BY / PARTITION BY column list.
func (b *QueryBuilder) groupKeys(q Query, bucket string) []string {
	var keys []string
	if q.Interval > 0 {
		keys = append(keys, bucket)
	}
	for _, g := range q.GroupBy {
		keys = append(keys, b.quote(q.Schema.ColumnName(g)))
	}
	return keys
}

func (b *QueryBuilder) aggregate(q Query, m Aggregation, source string) (string, error) {
	var call *alertql.FunctionCall
	field := &alertql.Identifier{Name: source}
	switch m.Aggregator {
	case alertql.AggCount:
		call = &alertql.FunctionCall{Name: "count"}
	case alertql.AggFirst, alertql.AggLast:
		call = &alertql.FunctionCall{
			Name: string(m.Aggregator),
			Args: []alertql.Expression{field, &alertql.Identifier{Name: q.Schema.TimestampColumn}},
		}
	default:
		call = &alertql.FunctionCall{Name: string(m.Aggregator), Args: []alertql.Expression{field}}
	}
	sql, err := NewSerializer(q.Schema, b.dialect).Serialize(call)
	if err != nil {
		return "", err
	}
	return sql + " AS " + b.quote(m.alias()), nil
}

func (b *QueryBuilder) buildAggregate(q Query) (string, error) {
	var columns []string
	if q.Interval > 0 {
		columns = append(columns, b.timeBucket(q))
	}
	for _, g := range q.GroupBy {
		columns = append(columns, b.column(q.Schema, g))
	}
	for _, m := range q.Metrics {
		col, err := b.aggregate(q, m, m.Field)
		if err != nil {
			return "", err
		}
		columns = append(columns, col)
	}
	for _, c := range q.Collect {
		columns = append(columns, b.dialect.StringAggregator(b.quote(q.Schema.ColumnName(c)))+" AS "+b.quote(c))
	}

	where, err := b.where(q)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(columns, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(b.quote(q.Schema.Table))
	sb.WriteString(where)
	b.writeTail(&sb, q, b.groupKeys(q, b.quote(TimestampAlias)))
	return sb.String(), nil
}

// buildWithWindowFunctions computes first/last with window functions in a
// subquery and reduces the partitions in the outer query.
func (b *QueryBuilder) buildWithWindowFunctions(q Query) (string, error) {
	var inner, outer []string
	if q.Interval > 0 {
		inner = append(inner, b.timeBucket(q))
		outer = append(outer, b.quote(TimestampAlias))
	}
	for _, g := range q.GroupBy {
		inner = append(inner, b.column(q.Schema, g))
		outer = append(outer, b.quote(g))
	}

	partition := strings.Join(b.groupKeys(q, b.dialect.TimeFloorExpression(b.quote(q.Schema.TimestampColumn), int64(q.Interval/time.Second))), ", ")
	orderBy := b.quote(q.Schema.TimestampColumn)

	for i, m := range q.Metrics {
		field := b.quote(q.Schema.ColumnName(m.Field))
		alias := b.quote(m.alias())
		switch m.Aggregator {
		case alertql.AggFirst, alertql.AggLast:
			var fn string
			var err error
			if m.Aggregator == alertql.AggFirst {
				fn, err = b.dialect.FirstWindowFunction(field, partition, orderBy)
			} else {
				fn, err = b.dialect.LastWindowFunction(field, partition, orderBy)
			}
			if err != nil {
				return "", err
			}
			inner = append(inner, fn+" AS "+alias)
			outer = append(outer, "max("+alias+") AS "+alias)
		default:
			// Other metrics pass the raw column through and aggregate outside.
			source := fmt.Sprintf("_m%d", i)
			inner = append(inner, field+" AS "+b.quote(source))
			col, err := b.aggregate(q, m, source)
			if err != nil {
				return "", err
			}
			outer = append(outer, col)
		}
	}
	for _, c := range q.Collect {
		inner = append(inner, b.column(q.Schema, c))
		outer = append(outer, b.dialect.StringAggregator(b.quote(c))+" AS "+b.quote(c))
	}

	where, err := b.where(q)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(outer, ", "))
	sb.WriteString(" FROM (SELECT ")
	sb.WriteString(strings.Join(inner, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(b.quote(q.Schema.Table))
	sb.WriteString(where)
	sb.WriteString(")")
	if b.dialect.NeedTableAlias() {
		sb.WriteString(" AS ")
		sb.WriteString(b.quote("tbl"))
	}

	var keys []string
	if q.Interval > 0 {
		keys = append(keys, b.quote(TimestampAlias))
	}
	for _, g := range q.GroupBy {
		keys = append(keys, b.quote(g))
	}
	b.writeTail(&sb, q, keys)
	return sb.String(), nil
}

func (b *QueryBuilder) writeTail(sb *strings.Builder, q Query, groupKeys []string) {
	if len(groupKeys) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(groupKeys, ", "))
	}
	if q.Interval > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(b.quote(TimestampAlias))
	}
	if q.Limit > 0 {
		fmt.Fprintf(sb, " LIMIT %d", q.Limit)
	}
}

// AlertQuery returns the query evaluating the current window of an alert expression
// ending at end. The aggregated value is returned in a column named after the field.
func AlertQuery(s *schema.Schema, alert *alertql.AlertExpression, end time.Time) Query {
	return Query{
		Schema:  s,
		Filter:  alert.Filter,
		Start:   end.Add(-alert.Window.Std()),
		End:     end,
		GroupBy: alert.GroupBy,
		Metrics: []Aggregation{{Aggregator: alert.Select.Aggregator, Field: alert.Select.Field}},
	}
}
