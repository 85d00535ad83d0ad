package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/FrankChen021/bithon-sub017/internal/alertql"
	"github.com/FrankChen021/bithon-sub017/internal/evaluator"
)

func sampleResult(t *testing.T) *evaluator.RuleResult {
	t.Helper()
	rule, err := alertql.Parse("avg(jvm-metrics.cpu)[5m] > 1 and max(jvm-metrics.cpu)[5m] > 2")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	alerts := alertql.AlertExpressions(rule)
	v := 3.0
	return &evaluator.RuleResult{
		Status: evaluator.StatusMatched,
		Clauses: map[string]*evaluator.Result{
			"2": {Alert: alerts[1], Status: evaluator.StatusMatched},
			"1": {
				Alert:   alerts[0],
				Status:  evaluator.StatusMatched,
				Outputs: []evaluator.Output{{Status: evaluator.StatusMatched, Value: &v, Threshold: 1}},
			},
		},
	}
}

func TestFromRuleResult(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	n := FromRuleResult("rule", sampleResult(t), map[string][]string{"1": {"cpu is 3"}}, at)

	if n.Status != evaluator.StatusMatched || !n.EvaluatedAt.Equal(at) {
		t.Errorf("unexpected notification: %+v", n)
	}
	if len(n.Clauses) != 2 || n.Clauses[0].ID != "1" || n.Clauses[1].ID != "2" {
		t.Fatalf("unexpected clauses: %+v", n.Clauses)
	}
	if n.Clauses[0].Expression != "avg(jvm-metrics.cpu)[5m] > 1" {
		t.Errorf("unexpected expression %q", n.Clauses[0].Expression)
	}
	if len(n.Clauses[0].Messages) != 1 || n.Clauses[1].Messages != nil {
		t.Errorf("unexpected messages: %v / %v", n.Clauses[0].Messages, n.Clauses[1].Messages)
	}
}

func TestWebhookSender(t *testing.T) {
	var received webhookPayload
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected request %s %s", r.Method, r.Header.Get("Content-Type"))
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			t.Errorf("invalid payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ok.Close()

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "receiver down", http.StatusServiceUnavailable)
	}))
	defer failing.Close()

	n := FromRuleResult("rule", sampleResult(t), nil, time.Now())

	sender := NewWebhookSender(WebhookOptions{URLs: []string{ok.URL}})
	if err := sender.Send(context.Background(), n); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if received.Rule != "rule" || received.Status != "matched" || len(received.Clauses) != 2 {
		t.Errorf("unexpected payload: %+v", received)
	}

	sender = NewWebhookSender(WebhookOptions{URLs: []string{failing.URL, ok.URL}})
	err := sender.Send(context.Background(), n)
	if err == nil || !strings.Contains(err.Error(), "status 503 (receiver down)") {
		t.Errorf("Send() error = %v, want the failing receiver reported", err)
	}

	if err := NewWebhookSender(WebhookOptions{}).Send(context.Background(), n); err != nil {
		t.Errorf("Send() without URLs error = %v", err)
	}
}
