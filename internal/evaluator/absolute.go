package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/FrankChen021/bithon-sub017/internal/alertql"
	"github.com/FrankChen021/bithon-sub017/internal/metric"
)

// AbsoluteEvaluator compares the current aggregate with the threshold.
type AbsoluteEvaluator struct {
	api     metric.QueryAPI
	logger  *slog.Logger
	metrics *Metrics
}

var _ ClauseEvaluator = (*AbsoluteEvaluator)(nil)

func NewAbsoluteEvaluator(api metric.QueryAPI, opts Options) *AbsoluteEvaluator {
	return &AbsoluteEvaluator{
		api:     api,
		logger:  opts.logger().With("component", "absolute_evaluator"),
		metrics: opts.Metrics,
	}
}

// Evaluate runs one query over the current window. The is null comparator
// matches groups with a NULL aggregate, and matches when there are no rows at all.
func (e *AbsoluteEvaluator) Evaluate(ctx context.Context, alert *alertql.AlertExpression, end time.Time) (*Result, error) {
	if alert.IsRelative() {
		return nil, fmt.Errorf("alert %s has an expected window, use the relative evaluator", alert.ID)
	}
	begin := time.Now()

	req := metric.AlertRequest(alert, end)
	rows, err := e.api.GroupBy(ctx, req)
	if err != nil {
		e.metrics.failed("absolute")
		return nil, err
	}

	th := threshold(alert)
	var outputs []Output
	if len(rows) == 0 {
		out := Output{Status: StatusNoData, Threshold: th, Start: req.Start, End: req.End}
		if alert.Comparator == alertql.CmpIsNull {
			out.Status = StatusMatched
		}
		outputs = append(outputs, out)
	}
	for _, row := range rows {
		value := row.Value(alert.Select.Field)
		out := Output{
			Labels:    row.Labels(alert.GroupBy),
			Value:     value,
			Threshold: th,
			Start:     req.Start,
			End:       req.End,
		}
		switch {
		case alert.Comparator == alertql.CmpIsNull:
			out.Status = status(value == nil)
		case value == nil:
			out.Status = StatusNoData
		default:
			out.Status = status(alert.Comparator.Compare(*value, th))
		}
		outputs = append(outputs, out)
	}
	sortOutputs(alert.GroupBy, outputs)

	result := summarize(alert, outputs)
	e.metrics.observe("absolute", result.Status, begin)
	e.logger.Debug("alert evaluated",
		"id", alert.ID,
		"expression", alert.String(),
		"status", result.Status,
		"groups", len(outputs),
	)
	return result, nil
}
