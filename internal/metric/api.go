// Package metric defines the metric query contract used by the evaluators and a
// reference implementation over database/sql.
package metric

import (
	"context"
	"math"
	"time"

	"github.com/FrankChen021/bithon-sub017/internal/alertql"
	"github.com/FrankChen021/bithon-sub017/internal/sqlgen"
)

// Request describes an aggregation of a dataset over [Start, End).
type Request struct {
	Dataset string
	Start   time.Time
	End     time.Time
	Filter  alertql.Expression
	Fields  []sqlgen.Aggregation
	GroupBy []string
	// Collect lists string columns whose distinct values are concatenated per group.
	Collect []string
	Limit   int
}

// Row maps output column names to values. Aggregated fields hold *float64,
// nil for SQL NULL; group-by columns hold strings; the time bucket of a time
// series holds a time.Time under sqlgen.TimestampAlias.
type Row map[string]any

// Value returns the aggregated value of field, nil when absent, NULL or not finite.
func (r Row) Value(field string) *float64 {
	v, _ := r[field].(*float64)
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	return v
}

// Labels returns the values of the given group-by columns.
func (r Row) Labels(names []string) map[string]string {
	if len(names) == 0 {
		return nil
	}
	labels := make(map[string]string, len(names))
	for _, name := range names {
		s, _ := r[name].(string)
		labels[name] = s
	}
	return labels
}

// QueryAPI runs aggregation requests. Implementations return I/O failures
// unmodified.
type QueryAPI interface {
	GroupBy(ctx context.Context, req Request) ([]Row, error)
}

// AlertRequest returns the request evaluating the current window of alert
// ending at end.
func AlertRequest(alert *alertql.AlertExpression, end time.Time) Request {
	return Request{
		Dataset: alert.From,
		Start:   end.Add(-alert.Window.Std()),
		End:     end,
		Filter:  alert.Filter,
		Fields:  []sqlgen.Aggregation{{Aggregator: alert.Select.Aggregator, Field: alert.Select.Field}},
		GroupBy: alert.GroupBy,
	}
}

// Shift returns a copy of req moved back in time by offset.
func (req Request) Shift(offset time.Duration) Request {
	req.Start = req.Start.Add(-offset)
	req.End = req.End.Add(-offset)
	return req
}
