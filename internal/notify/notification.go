// Package notify delivers rule evaluation outcomes to external receivers.
package notify

import (
	"context"
	"time"

	"github.com/FrankChen021/bithon-sub017/internal/evaluator"
)

// Notification is a fully resolved notification ready for delivery.
type Notification struct {
	Rule        string
	Status      evaluator.Status
	EvaluatedAt time.Time
	Clauses     []Clause
}

// Clause carries the rendered messages and outputs of one evaluated clause.
type Clause struct {
	ID         string             `json:"id"`
	Expression string             `json:"expression"`
	Status     evaluator.Status   `json:"status"`
	Outputs    []evaluator.Output `json:"outputs,omitempty"`
	Messages   []string           `json:"messages,omitempty"`
}

// Sender abstracts the delivery mechanism for notifications.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// FromRuleResult builds a notification from a rule evaluation. Clauses are
// listed in ascending id order; messages are keyed by clause id.
func FromRuleResult(rule string, res *evaluator.RuleResult, messages map[string][]string, at time.Time) Notification {
	n := Notification{Rule: rule, Status: res.Status, EvaluatedAt: at.UTC()}
	for _, id := range evaluator.ClauseIDs(res) {
		c := res.Clauses[id]
		clause := Clause{ID: id, Status: c.Status, Outputs: c.Outputs, Messages: messages[id]}
		if c.Alert != nil {
			clause.Expression = c.Alert.String()
		}
		n.Clauses = append(n.Clauses, clause)
	}
	return n
}
