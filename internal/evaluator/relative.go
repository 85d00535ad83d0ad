package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FrankChen021/bithon-sub017/internal/alertql"
	"github.com/FrankChen021/bithon-sub017/internal/metric"
)

// RelativeEvaluator compares the change between the current window and a
// baseline window, offset by the expected window, with the threshold.
type RelativeEvaluator struct {
	api     metric.QueryAPI
	logger  *slog.Logger
	metrics *Metrics
}

var _ ClauseEvaluator = (*RelativeEvaluator)(nil)

func NewRelativeEvaluator(api metric.QueryAPI, opts Options) *RelativeEvaluator {
	return &RelativeEvaluator{
		api:     api,
		logger:  opts.logger().With("component", "relative_evaluator"),
		metrics: opts.Metrics,
	}
}

// Evaluate runs the current and the baseline query. Groups without current
// data are reported as no data; groups without baseline data use a baseline of 0.
func (e *RelativeEvaluator) Evaluate(ctx context.Context, alert *alertql.AlertExpression, end time.Time) (*Result, error) {
	if !alert.IsRelative() {
		return nil, fmt.Errorf("alert %s has no expected window", alert.ID)
	}
	begin := time.Now()

	current := metric.AlertRequest(alert, end)
	rows, err := e.api.GroupBy(ctx, current)
	if err != nil {
		e.metrics.failed("relative")
		return nil, err
	}
	th := threshold(alert)

	if len(rows) == 0 {
		result := summarize(alert, []Output{{Status: StatusNoData, Threshold: th, Start: current.Start, End: current.End}})
		e.metrics.observe("relative", result.Status, begin)
		return result, nil
	}

	baseline := current.Shift(alert.Offset())
	baseRows, err := e.api.GroupBy(ctx, baseline)
	if err != nil {
		e.metrics.failed("relative")
		return nil, err
	}
	bases := make(map[string]*float64, len(baseRows))
	for _, row := range baseRows {
		bases[groupKey(alert.GroupBy, row.Labels(alert.GroupBy))] = row.Value(alert.Select.Field)
	}

	percentage := alert.Threshold != nil && alert.Threshold.Type == alertql.LitPercentage
	outputs := make([]Output, 0, len(rows))
	for _, row := range rows {
		labels := row.Labels(alert.GroupBy)
		out := Output{Labels: labels, Threshold: th, Start: current.Start, End: current.End}

		value := row.Value(alert.Select.Field)
		if value == nil {
			out.Status = StatusNoData
			outputs = append(outputs, out)
			continue
		}

		curr := decimal.NewFromFloat(*value).Round(2)
		base := decimal.Zero
		if b := bases[groupKey(alert.GroupBy, labels)]; b != nil {
			base = decimal.NewFromFloat(*b).Round(2)
		}
		delta := Delta(curr, base, percentage, alert.Comparator.IsDecrease())

		now, baseValue, deltaValue := curr.InexactFloat64(), base.InexactFloat64(), delta.InexactFloat64()
		out.Value, out.Base, out.Delta = &now, &baseValue, &deltaValue
		out.Status = status(alert.Comparator.Compare(deltaValue, th))
		outputs = append(outputs, out)
	}
	sortOutputs(alert.GroupBy, outputs)

	result := summarize(alert, outputs)
	e.metrics.observe("relative", result.Status, begin)
	e.logger.Debug("alert evaluated",
		"id", alert.ID,
		"expression", alert.String(),
		"status", result.Status,
		"offset", alert.Offset(),
		"groups", len(outputs),
	)
	return result, nil
}

// Delta returns the change from base to curr. For percentage thresholds it is
// the ratio to a non-zero base, rounded to 4 decimals and measured in the
// direction of the comparator; a zero base falls back to the difference.
func Delta(curr, base decimal.Decimal, percentage, decrease bool) decimal.Decimal {
	if !percentage || base.IsZero() {
		return curr.Sub(base)
	}
	if decrease {
		return base.Sub(curr).Div(base).Round(4)
	}
	return curr.Sub(base).Div(base).Round(4)
}
