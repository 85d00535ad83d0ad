package template

import (
	"strings"
	"testing"
	"time"

	"github.com/FrankChen021/bithon-sub017/internal/alertql"
	"github.com/FrankChen021/bithon-sub017/internal/evaluator"
)

func ptr(v float64) *float64 { return &v }

func TestRender(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name        string
		text        string
		variables   []Variable
		want        string
		wantErr     bool
		errContains string
	}{
		{
			name:      "string variable",
			text:      "host {{hostname}} is down",
			variables: []Variable{{Name: "hostname", Type: TypeString, Value: "server-1"}},
			want:      "host server-1 is down",
		},
		{
			name:      "whitespace in placeholder",
			text:      "host {{ hostname }}",
			variables: []Variable{{Name: "hostname", Type: TypeString, Value: "server-1"}},
			want:      "host server-1",
		},
		{
			name:      "integer number",
			text:      "value {{v}}",
			variables: []Variable{{Name: "v", Type: TypeNumber, Value: float64(500)}},
			want:      "value 500",
		},
		{
			name:      "float number",
			text:      "value {{v}}",
			variables: []Variable{{Name: "v", Type: TypeNumber, Value: ptr(0.25)}},
			want:      "value 0.25",
		},
		{
			name:      "null number",
			text:      "value {{v}}",
			variables: []Variable{{Name: "v", Type: TypeNumber, Value: (*float64)(nil)}},
			want:      "value null",
		},
		{
			name:      "percent",
			text:      "up {{delta}}",
			variables: []Variable{{Name: "delta", Type: TypePercent, Value: ptr(0.6667)}},
			want:      "up 66.67%",
		},
		{
			name:      "date",
			text:      "since {{start}}",
			variables: []Variable{{Name: "start", Type: TypeDate, Value: ts}},
			want:      "since 2024-05-01T10:00:00Z",
		},
		{
			name:      "repeated variable",
			text:      "{{a}} and {{a}}",
			variables: []Variable{{Name: "a", Type: TypeString, Value: "x"}},
			want:      "x and x",
		},
		{
			name:        "undefined variable",
			text:        "value {{missing}}",
			wantErr:     true,
			errContains: "undefined variable",
		},
		{
			name:        "invalid variable name",
			text:        "value",
			variables:   []Variable{{Name: "1bad", Type: TypeString, Value: "x"}},
			wantErr:     true,
			errContains: "invalid variable name",
		},
		{
			name:        "invalid number",
			text:        "value {{v}}",
			variables:   []Variable{{Name: "v", Type: TypeNumber, Value: "abc"}},
			wantErr:     true,
			errContains: "unsupported number type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tt.text, tt.variables)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("error %q should contain %q", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestExtractVariableNames(t *testing.T) {
	got := ExtractVariableNames("{{a}} {{ b }} {{a}} {{1c}}")
	if strings.Join(got, ",") != "a,b" {
		t.Errorf("unexpected names: %v", got)
	}
}

func TestRenderResult(t *testing.T) {
	alert, err := alertql.ParseAlert(`avg(jvm-metrics.cpu)[5m] by (app-name) >= 50%[-1h]`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	res := &evaluator.Result{
		Alert:  alert,
		Status: evaluator.StatusMatched,
		Outputs: []evaluator.Output{
			{
				Status:    evaluator.StatusMatched,
				Labels:    map[string]string{"app-name": "a"},
				Value:     ptr(250),
				Base:      ptr(100),
				Delta:     ptr(1.5),
				Threshold: 0.5,
				Start:     start,
				End:       start.Add(5 * time.Minute),
			},
			{
				Status:    evaluator.StatusMatched,
				Labels:    map[string]string{"app-name": "b"},
				Value:     ptr(10),
				Base:      ptr(0),
				Delta:     ptr(10),
				Threshold: 0.5,
				Start:     start,
				End:       start.Add(5 * time.Minute),
			},
		},
	}

	got, err := RenderResult("{{label_app_name}} {{metric}} changed by {{delta}} over {{offset}} ({{value}} vs {{base}})", res)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "a jvm-metrics.cpu changed by 150% over -1h (250 vs 100)\n" +
		"b jvm-metrics.cpu changed by 10 over -1h (10 vs 0)"
	if got != want {
		t.Errorf("expected:\n%s\ngot:\n%s", want, got)
	}

	got, err = RenderResult("", res)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(got, "[matched] avg(jvm-metrics.cpu)[5m] by (app-name) >= 50%[-1h]: value 250, threshold 50%") {
		t.Errorf("unexpected default message: %s", got)
	}
}
