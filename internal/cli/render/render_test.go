package render

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/FrankChen021/bithon-sub017/internal/evaluator"
	"github.com/FrankChen021/bithon-sub017/internal/metric"
)

func float(v float64) *float64 { return &v }

func newRenderer(t *testing.T, opts Options) (*Renderer, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	r, err := NewWithWriter(opts, &buf)
	if err != nil {
		t.Fatalf("NewWithWriter() error = %v", err)
	}
	return r, &buf
}

func sampleResult() *Result {
	return &Result{
		Columns: []string{"appName", "cpu"},
		Rows: []map[string]any{
			{"appName": "a", "cpu": float(1.5)},
			{"appName": "b c", "cpu": (*float64)(nil)},
		},
		SQL: `SELECT avg("cpu") AS "cpu" FROM "jvm"`,
	}
}

func TestNew_UnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "yaml"}); err == nil {
		t.Error("New() with unknown format should error")
	}
	r, err := New(Options{})
	if err != nil || r.opts.Format != "text" {
		t.Errorf("New() default format = %q, err = %v", r.opts.Format, err)
	}
}

func TestRenderer_RenderJSON(t *testing.T) {
	r, buf := newRenderer(t, Options{Format: "json"})
	if err := r.Render(sampleResult()); err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	var parsed map[string]any
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("Render() produced invalid JSON: %v", err)
	}
	if rows, ok := parsed["rows"].([]any); !ok || len(rows) != 2 {
		t.Errorf("rows = %v, want 2 rows", parsed["rows"])
	}
	if parsed["count"] != float64(2) {
		t.Errorf("count = %v, want 2", parsed["count"])
	}
	if !strings.HasPrefix(parsed["sql"].(string), "SELECT") {
		t.Errorf("sql = %v", parsed["sql"])
	}
}

func TestRenderer_RenderJSONL(t *testing.T) {
	r, buf := newRenderer(t, Options{Format: "jsonl", Fields: []string{"appName"}})
	if err := r.Render(sampleResult()); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0] != `{"appName":"a"}` {
		t.Errorf("line 0 = %s", lines[0])
	}
}

func TestRenderer_RenderCSV(t *testing.T) {
	r, buf := newRenderer(t, Options{Format: "csv"})
	if err := r.Render(sampleResult()); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	want := "appName,cpu\na,1.5\nb c,\n"
	if buf.String() != want {
		t.Errorf("Render() = %q, want %q", buf.String(), want)
	}
}

func TestRenderer_RenderText(t *testing.T) {
	r, buf := newRenderer(t, Options{Format: "text", ShowSQL: true})
	if err := r.Render(sampleResult()); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	want := "-- SELECT avg(\"cpu\") AS \"cpu\" FROM \"jvm\"\nappName=a cpu=1.5\nappName=\"b c\"\n"
	if buf.String() != want {
		t.Errorf("Render() = %q, want %q", buf.String(), want)
	}
}

func TestRenderer_RenderTable(t *testing.T) {
	r, buf := newRenderer(t, Options{Format: "table"})
	if err := r.Render(sampleResult()); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"appName", "cpu", "1.5", "2 rows"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderer_EmptyResult(t *testing.T) {
	for _, format := range []string{"text", "table"} {
		r, buf := newRenderer(t, Options{Format: format})
		if err := r.Render(&Result{}); err != nil {
			t.Fatalf("Render() error = %v", err)
		}
		if !strings.Contains(buf.String(), "No results found.") {
			t.Errorf("%s: Render() = %q", format, buf.String())
		}
	}

	r, buf := newRenderer(t, Options{Format: "csv"})
	if err := r.Render(&Result{}); err != nil || buf.Len() != 0 {
		t.Errorf("csv: Render() = %q, %v", buf.String(), err)
	}
}

func TestRenderer_Text(t *testing.T) {
	r, buf := newRenderer(t, Options{Format: "json"})
	if err := r.Text("a = 1"); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != `{"result":"a = 1"}` {
		t.Errorf("Text() = %q", buf.String())
	}

	r, buf = newRenderer(t, Options{})
	_ = r.Text("a = 1")
	if buf.String() != "a = 1\n" {
		t.Errorf("Text() = %q", buf.String())
	}
}

func TestFormatValue(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{"nil", nil, ""},
		{"nil pointer", (*float64)(nil), ""},
		{"pointer", float(2.25), "2.25"},
		{"integral float", 42.0, "42"},
		{"string", "hello", "hello"},
		{"long string", strings.Repeat("x", 100), strings.Repeat("x", 100)},
		{"time", ts, "2024-05-01T10:00:00Z"},
		{"status", evaluator.StatusNoData, "no_data"},
		{"labels", map[string]string{"b": "2", "a": "1"}, "a=1,b=2"},
		{"int", 7, "7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatValue(tt.input); got != tt.want {
				t.Errorf("formatValue(%v) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate(strings.Repeat("x", 100), 80); got != strings.Repeat("x", 77)+"..." {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("short", 80); got != "short" {
		t.Errorf("truncate() = %q", got)
	}
}

func TestFromRows(t *testing.T) {
	rows := []metric.Row{{"appName": "a", "cpu": float(1)}}
	res := FromRows(rows, []string{"appName", "cpu"})
	if len(res.Rows) != 1 || res.Rows[0]["appName"] != "a" {
		t.Errorf("FromRows() = %+v", res)
	}
}

func TestFromRuleResult(t *testing.T) {
	rr := &evaluator.RuleResult{
		Status: evaluator.StatusMatched,
		Clauses: map[string]*evaluator.Result{
			"10": {Status: evaluator.StatusNoData},
			"2": {
				Status: evaluator.StatusMatched,
				Outputs: []evaluator.Output{
					{Status: evaluator.StatusMatched, Labels: map[string]string{"appName": "a"}, Value: float(3)},
					{Status: evaluator.StatusNotMatched, Labels: map[string]string{"appName": "b"}, Value: float(1)},
				},
			},
		},
	}
	res := FromRuleResult(rr, map[string][]string{"2": {"a is high", "b is fine"}})

	if res.Summary != "rule matched" {
		t.Errorf("Summary = %q", res.Summary)
	}
	if len(res.Rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(res.Rows))
	}
	if res.Rows[0]["clause"] != "2" || res.Rows[2]["clause"] != "10" {
		t.Errorf("clauses not ordered numerically: %v, %v", res.Rows[0]["clause"], res.Rows[2]["clause"])
	}
	if res.Rows[1]["message"] != "b is fine" {
		t.Errorf("message = %v", res.Rows[1]["message"])
	}
	if res.Rows[2]["status"] != evaluator.StatusNoData {
		t.Errorf("status = %v", res.Rows[2]["status"])
	}
}
