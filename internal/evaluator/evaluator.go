// Package evaluator evaluates alert expressions against a metric.QueryAPI.
//
// A clause with an expected window is evaluated relative to its baseline,
// any other clause against its absolute threshold. Evaluation of a clause has
// three outcomes: matched, not matched, and no data. No data is not an error;
// errors returned by the query API are passed through unmodified.
package evaluator

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/FrankChen021/bithon-sub017/internal/alertql"
)

// Status is the outcome of an evaluation.
type Status string

const (
	StatusMatched    Status = "matched"
	StatusNotMatched Status = "not_matched"
	// StatusNoData means the current window has no data to evaluate.
	StatusNoData Status = "no_data"
)

// Output is the evaluation of one group of a clause. Value holds the current
// aggregate. Base and Delta are set by relative evaluation only.
type Output struct {
	Status    Status            `json:"status"`
	Labels    map[string]string `json:"labels,omitempty"`
	Value     *float64          `json:"value"`
	Base      *float64          `json:"base,omitempty"`
	Delta     *float64          `json:"delta,omitempty"`
	Threshold float64           `json:"threshold"`
	Start     time.Time         `json:"start"`
	End       time.Time         `json:"end"`
}

// Matches reports whether the output matched.
func (o Output) Matches() bool { return o.Status == StatusMatched }

// Result is the evaluation of one alert clause over all of its groups.
type Result struct {
	Alert   *alertql.AlertExpression `json:"-"`
	Status  Status                   `json:"status"`
	Outputs []Output                 `json:"outputs"`
}

// ClauseEvaluator evaluates a single alert clause whose current window ends at end.
type ClauseEvaluator interface {
	Evaluate(ctx context.Context, alert *alertql.AlertExpression, end time.Time) (*Result, error)
}

// Options configures the evaluators.
type Options struct {
	Logger  *slog.Logger
	Metrics *Metrics
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// summarize derives the status of a clause from its outputs. Any matching
// group matches the clause.
func summarize(alert *alertql.AlertExpression, outputs []Output) *Result {
	status := StatusNoData
	for _, o := range outputs {
		if o.Status == StatusMatched {
			status = StatusMatched
			break
		}
		if o.Status == StatusNotMatched {
			status = StatusNotMatched
		}
	}
	return &Result{Alert: alert, Status: status, Outputs: outputs}
}

func status(matches bool) Status {
	if matches {
		return StatusMatched
	}
	return StatusNotMatched
}

// threshold returns the numeric threshold of a clause, 0 for is null.
func threshold(alert *alertql.AlertExpression) float64 {
	if alert.Threshold == nil {
		return 0
	}
	v, _ := alert.Threshold.DoubleValue()
	return v
}

// groupKey identifies a group by its label values in group-by order.
func groupKey(names []string, labels map[string]string) string {
	if len(names) == 0 {
		return ""
	}
	values := make([]string, len(names))
	for i, name := range names {
		values[i] = labels[name]
	}
	return strings.Join(values, "\x00")
}

// sortOutputs orders outputs by their labels so results are stable.
func sortOutputs(names []string, outputs []Output) {
	sort.SliceStable(outputs, func(i, j int) bool {
		return groupKey(names, outputs[i].Labels) < groupKey(names, outputs[j].Labels)
	})
}
