package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/FrankChen021/bithon-sub017/internal/alertql"
	"github.com/FrankChen021/bithon-sub017/internal/metric"
)

// RuleResult is the evaluation of a rule: the combined status and the result
// of every evaluated clause keyed by clause id. Clauses skipped by
// short-circuiting have no result.
type RuleResult struct {
	Status  Status             `json:"status"`
	Clauses map[string]*Result `json:"clauses"`
}

// ClauseIDs returns the ids of the evaluated clauses in numeric order.
func ClauseIDs(res *RuleResult) []string {
	ids := make([]string, 0, len(res.Clauses))
	for id := range res.Clauses {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.Atoi(ids[i])
		b, errB := strconv.Atoi(ids[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return ids[i] < ids[j]
	})
	return ids
}

// RuleEvaluator evaluates rules combining alert clauses with and/or.
type RuleEvaluator struct {
	absolute ClauseEvaluator
	relative ClauseEvaluator
	logger   *slog.Logger
}

func NewRuleEvaluator(api metric.QueryAPI, opts Options) *RuleEvaluator {
	return &RuleEvaluator{
		absolute: NewAbsoluteEvaluator(api, opts),
		relative: NewRelativeEvaluator(api, opts),
		logger:   opts.logger().With("component", "rule_evaluator"),
	}
}

// EvaluateClause evaluates one clause with the evaluator matching its kind.
func (r *RuleEvaluator) EvaluateClause(ctx context.Context, alert *alertql.AlertExpression, end time.Time) (*Result, error) {
	if alert.IsRelative() {
		return r.relative.Evaluate(ctx, alert, end)
	}
	return r.absolute.Evaluate(ctx, alert, end)
}

// Evaluate evaluates rule with the current windows ending at end.
//
// Operands are combined with three-valued logic: not matched dominates and,
// matched dominates or, and no data propagates otherwise. The right operand
// is not evaluated when the left one decides the result.
func (r *RuleEvaluator) Evaluate(ctx context.Context, rule alertql.Expression, end time.Time) (*RuleResult, error) {
	result := &RuleResult{Clauses: make(map[string]*Result)}
	s, err := r.evaluate(ctx, rule, end, result.Clauses)
	if err != nil {
		return nil, err
	}
	result.Status = s
	r.logger.Debug("rule evaluated", "rule", rule.String(), "status", s, "clauses", len(result.Clauses))
	return result, nil
}

func (r *RuleEvaluator) evaluate(ctx context.Context, expr alertql.Expression, end time.Time, clauses map[string]*Result) (Status, error) {
	switch n := expr.(type) {
	case *alertql.AlertExpression:
		res, err := r.EvaluateClause(ctx, n, end)
		if err != nil {
			return "", err
		}
		clauses[n.ID] = res
		return res.Status, nil

	case *alertql.Binary:
		if !n.Op.IsLogical() {
			break
		}
		left, err := r.evaluate(ctx, n.LHS, end, clauses)
		if err != nil {
			return "", err
		}
		if (n.Op == alertql.OpAnd && left == StatusNotMatched) || (n.Op == alertql.OpOr && left == StatusMatched) {
			return left, nil
		}
		right, err := r.evaluate(ctx, n.RHS, end, clauses)
		if err != nil {
			return "", err
		}
		if n.Op == alertql.OpAnd {
			return and(left, right), nil
		}
		return or(left, right), nil
	}
	return "", fmt.Errorf("can not evaluate %s as a rule", expr.String())
}

func and(a, b Status) Status {
	switch {
	case a == StatusNotMatched || b == StatusNotMatched:
		return StatusNotMatched
	case a == StatusMatched && b == StatusMatched:
		return StatusMatched
	default:
		return StatusNoData
	}
}

func or(a, b Status) Status {
	switch {
	case a == StatusMatched || b == StatusMatched:
		return StatusMatched
	case a == StatusNotMatched && b == StatusNotMatched:
		return StatusNotMatched
	default:
		return StatusNoData
	}
}
