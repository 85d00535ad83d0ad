package alertql

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseAlert(t *testing.T) {
	t.Run("parses alert with default window", func(t *testing.T) {
		alert, err := ParseAlert(`avg(jvm-metrics.cpu{appName = 'a'}) > 1`)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if alert.ID != "1" {
			t.Errorf("expected id 1, got %q", alert.ID)
		}
		if alert.From != "jvm-metrics" {
			t.Errorf("expected from jvm-metrics, got %q", alert.From)
		}
		if alert.Select.Aggregator != AggAvg || alert.Select.Field != "cpu" {
			t.Errorf("unexpected select: %+v", alert.Select)
		}
		if alert.Window.Seconds() != 60 {
			t.Errorf("expected default window of 60s, got %ds", alert.Window.Seconds())
		}
		if alert.Comparator != CmpGT {
			t.Errorf("expected comparator >, got %q", alert.Comparator)
		}
		if v, ok := alert.Threshold.LongValue(); !ok || v != 1 {
			t.Errorf("expected threshold 1, got %v", alert.Threshold.Value)
		}
		if alert.IsRelative() {
			t.Error("expected absolute alert")
		}

		filter, ok := alert.Filter.(*Binary)
		if !ok {
			t.Fatalf("expected binary filter, got %T", alert.Filter)
		}
		if filter.Op != OpEQ {
			t.Errorf("expected =, got %q", filter.Op)
		}
	})

	t.Run("parses relative alert", func(t *testing.T) {
		alert, err := ParseAlert(`sum(jvm-metrics.gc{appName like 'a%', instanceName like '192.%'})[5m] > 50%[-7d]`)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if alert.Window != (Duration{Value: 5, Unit: UnitMinute}) {
			t.Errorf("unexpected window %v", alert.Window)
		}
		if alert.ExpectedWindow == nil || alert.ExpectedWindow.Seconds() != -7*86400 {
			t.Fatalf("unexpected expected window %v", alert.ExpectedWindow)
		}
		if alert.Offset() != 7*24*time.Hour {
			t.Errorf("expected offset of 7 days, got %v", alert.Offset())
		}
		if alert.Threshold.Type != LitPercentage {
			t.Errorf("expected percentage threshold, got %s", alert.Threshold.Type)
		}
		if v, _ := alert.Threshold.DoubleValue(); v != 0.5 {
			t.Errorf("expected 0.5, got %v", v)
		}
	})

	t.Run("parses group by", func(t *testing.T) {
		alert, err := ParseAlert(`max(jvm-metrics.heap)[1h] by (appName, instanceName) >= 10Mi`)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Join(alert.GroupBy, ",") != "appName,instanceName" {
			t.Errorf("unexpected group by %v", alert.GroupBy)
		}
		if v, _ := alert.Threshold.DoubleValue(); v != 10*1024*1024 {
			t.Errorf("expected 10Mi, got %v", v)
		}
	})

	t.Run("parses is null", func(t *testing.T) {
		for _, text := range []string{
			`count(http-metrics.qps) is null`,
			`count(http-metrics.qps) = null`,
		} {
			alert, err := ParseAlert(text)
			if err != nil {
				t.Fatalf("%s: unexpected error: %v", text, err)
			}
			if alert.Comparator != CmpIsNull || alert.Threshold != nil {
				t.Errorf("%s: expected is null without threshold, got %q %v", text, alert.Comparator, alert.Threshold)
			}
		}
	})

	t.Run("keywords are case insensitive", func(t *testing.T) {
		if _, err := ParseAlert(`AVG(jvm-metrics.cpu{a = 1 AND b IN (1, 2)}) > 1`); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestParseAssignsIDsInOrder(t *testing.T) {
	expr, err := Parse(`avg(a.x) > 1 and (sum(b.y) > 2 or min(c.z) < 3)`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	alerts := AlertExpressions(expr)
	if len(alerts) != 3 {
		t.Fatalf("expected 3 alerts, got %d", len(alerts))
	}
	for i, want := range []string{"1", "2", "3"} {
		if alerts[i].ID != want {
			t.Errorf("alert %d: expected id %s, got %s", i, want, alerts[i].ID)
		}
	}
	if alerts[1].From != "b" || alerts[2].From != "c" {
		t.Errorf("unexpected order: %s %s", alerts[1].From, alerts[2].From)
	}
}

func TestParsePrecedence(t *testing.T) {
	t.Run("and binds tighter than or", func(t *testing.T) {
		expr, err := Parse(`avg(a.x) > 1 or avg(b.x) > 1 and avg(c.x) > 1`)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		or, ok := expr.(*Binary)
		if !ok || or.Op != OpOr {
			t.Fatalf("expected or at the root, got %v", expr)
		}
		and, ok := or.RHS.(*Binary)
		if !ok || and.Op != OpAnd {
			t.Fatalf("expected and on the right, got %v", or.RHS)
		}
	})

	t.Run("left associative", func(t *testing.T) {
		expr, err := Parse(`avg(a.x) > 1 and avg(b.x) > 1 and avg(c.x) > 1`)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		root := expr.(*Binary)
		if _, ok := root.LHS.(*Binary); !ok {
			t.Fatalf("expected nested and on the left, got %v", root.LHS)
		}
		if a, ok := root.RHS.(*AlertExpression); !ok || a.From != "c" {
			t.Fatalf("expected c on the right, got %v", root.RHS)
		}
	})

	t.Run("comma has the lowest precedence in filters", func(t *testing.T) {
		filter, err := ParseFilter(`a = 1, b = 2 or c = 3`)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		and := filter.(*Binary)
		if and.Op != OpAnd {
			t.Fatalf("expected and at the root, got %s", and.Op)
		}
		if or, ok := and.RHS.(*Binary); !ok || or.Op != OpOr {
			t.Fatalf("expected or on the right, got %v", and.RHS)
		}
	})
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
		code string
	}{
		{"unknown aggregator", `hhh(jvm-metrics.cpu) > 1`, ErrUnknownAggregator},
		{"zero window", `avg(jvm-metrics.cpu)[0m] > 1`, ErrInvalidWindow},
		{"negative window", `avg(jvm-metrics.cpu)[-5m] > 1`, ErrInvalidWindow},
		{"unknown window unit", `avg(jvm-metrics.cpu)[5x] > 1`, ErrInvalidWindow},
		{"zero expected window", `avg(jvm-metrics.cpu)[5m] > 1[0m]`, ErrInvalidWindow},
		{"positive expected window", `avg(jvm-metrics.cpu)[5m] > 1[1m]`, ErrInvalidWindow},
		{"mixed in list", `avg(jvm-metrics.cpu{appName in ('a', 1)}) > 1`, ErrTypeMismatch},
		{"mixed not in list", `avg(jvm-metrics.cpu{appName not in (true, 'a')}) > 1`, ErrTypeMismatch},
		{"null in list", `avg(jvm-metrics.cpu{appName in ('a', null)}) > 1`, ErrInvalidNull},
		{"empty in list", `avg(jvm-metrics.cpu{appName in ()}) > 1`, ErrUnexpectedToken},
		{"is with value", `avg(jvm-metrics.cpu{appName is 'a'}) > 1`, ErrInvalidNull},
		{"ordering against null", `avg(jvm-metrics.cpu{appName > null}) > 1`, ErrInvalidNull},
		{"like with number", `avg(jvm-metrics.cpu{appName like 1}) > 1`, ErrTypeMismatch},
		{"contains with bool", `avg(jvm-metrics.cpu{appName contains true}) > 1`, ErrTypeMismatch},
		{"is null with threshold", `avg(jvm-metrics.cpu) is null 1`, ErrInvalidThreshold},
		{"not equal null threshold", `avg(jvm-metrics.cpu) <> null`, ErrInvalidNull},
		{"percentage without expected window", `avg(jvm-metrics.cpu) > 5%`, ErrInvalidThreshold},
		{"duration threshold", `avg(jvm-metrics.cpu) > 5m`, ErrInvalidThreshold},
		{"string threshold", `avg(jvm-metrics.cpu) > 'a'`, ErrUnexpectedToken},
		{"missing threshold", `avg(jvm-metrics.cpu) >`, ErrUnexpectedEnd},
		{"trailing input", `avg(jvm-metrics.cpu) > 1 avg`, ErrUnexpectedToken},
		{"unterminated string", `avg(jvm-metrics.cpu{a = 'x}) > 1`, ErrUnterminatedString},
		{"unexpected character", `avg(jvm-metrics.cpu{a = $}) > 1`, ErrUnexpectedChar},
		{"empty", ``, ErrEmptyExpression},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := Parse(tt.text)
			if err == nil {
				t.Fatalf("expected error, got %v", expr)
			}
			if expr != nil {
				t.Errorf("expected no partial AST, got %v", expr)
			}
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("expected *ParseError, got %T", err)
			}
			if perr.Code != tt.code {
				t.Errorf("expected code %s, got %s (%v)", tt.code, perr.Code, err)
			}
		})
	}
}

func TestParseErrorMessageIncludesFragment(t *testing.T) {
	_, err := Parse(`hhh(jvm-metrics.cpu) > 1`)
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	if !strings.Contains(msg, `"hhh"`) || !strings.Contains(msg, "unknown aggregator") {
		t.Errorf("unexpected message: %s", msg)
	}
	if !strings.Contains(msg, "line 1, column 1") {
		t.Errorf("expected position in message: %s", msg)
	}
}

func TestParseInLists(t *testing.T) {
	for _, text := range []string{
		`avg(jvm-metrics.cpu{appName in (1, 2)}) > 1`,
		`avg(jvm-metrics.cpu{appName in ('a', 'b')}) > 1`,
		`avg(jvm-metrics.cpu{appName in (1, 2.5, 3K)}) > 1`,
		`avg(jvm-metrics.cpu{appName not in ("a")}) > 1`,
	} {
		if _, err := Parse(text); err != nil {
			t.Errorf("%s: unexpected error: %v", text, err)
		}
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{
			`avg(jvm-metrics.cpu{appName like 'a%', instanceName like '192.%'})[5m] > 1[-5m]`,
			`avg(jvm-metrics.cpu{appName like "a%", instanceName like "192.%"})[5m] > 1[-5m]`,
		},
		{
			`avg(jvm-metrics.cpu{appName = 'a'}) > 1`,
			`avg(jvm-metrics.cpu{appName = "a"})[1m] > 1`,
		},
		{
			`count(http-metrics.qps) is null`,
			`count(http-metrics.qps)[1m] is null`,
		},
		{
			`avg(a.x{(b = 1 or c = 2) and d = 2.0}) > 1.5`,
			`avg(a.x{b = 1 or c = 2, d = 2.0})[1m] > 1.5`,
		},
		{
			`avg(a.x{b = 1 and (c = 2 or d = 3)}) by (b) > 1`,
			`avg(a.x{b = 1, c = 2 or d = 3})[1m] by (b) > 1`,
		},
		{
			`avg(a.x{tags['env'] = 'prod', b in (1,2), c is not null, lower(d) = 'x'})[10s] <= 10K`,
			`avg(a.x{tags["env"] = "prod", b in (1, 2), c is not null, lower(d) = "x"})[10s] <= 10K`,
		},
		{
			`avg(a.x) > 1 and (avg(b.x) > 1 or avg(c.x) > 1)`,
			`avg(a.x)[1m] > 1 and (avg(b.x)[1m] > 1 or avg(c.x)[1m] > 1)`,
		},
		{
			`avg(a.x{b = 'it\'s "q"'}) > 1`,
			`avg(a.x{b = "it's \"q\""})[1m] > 1`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			expr, err := Parse(tt.text)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := Format(expr); got != tt.want {
				t.Errorf("expected:\n%s\ngot:\n%s", tt.want, got)
			}
		})
	}
}

var roundTripCases = []string{
	`avg(jvm-metrics.cpu{appName = 'a'}) > 1`,
	`avg(jvm-metrics.cpu{appName like 'a%', instanceName like '192.%'})[5m] > 1[-5m]`,
	`sum(a.x{b = 1 or c = 2, d <> 'x'})[1h] by (b, c) >= 50%[-1d]`,
	`min(a.x{b not in ('a', 'b'), c not like 'x%', d contains 'y'}) < -3.25`,
	`max(a.x{(b = 1 or c = 2) and (d = 3 or e = 4)}) > 2Gi`,
	`first(a.x{b = true, c = null, d is null}) = 0`,
	`last(a.x{tags['k'] startswith 'v', f(g, 1, *) endswith 'z'})[30s] <> 7`,
	`count(a.x) is null or (avg(b.y) > 1 and avg(c.z) > 2) or avg(d.w) > 3`,
	`avg(a.x) > 1 and (avg(b.x) > 1 and avg(c.x) > 1)`,
}

func TestFormatRoundTrip(t *testing.T) {
	for _, text := range roundTripCases {
		t.Run(text, func(t *testing.T) {
			first, err := Parse(text)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			formatted := Format(first)
			second, err := Parse(formatted)
			if err != nil {
				t.Fatalf("reparse of %q failed: %v", formatted, err)
			}
			if !Equal(first, second) {
				t.Errorf("round trip changed the AST:\n%s\n%s", formatted, Format(second))
			}
			if Format(second) != formatted {
				t.Errorf("format is not stable: %s vs %s", formatted, Format(second))
			}
		})
	}
}

func TestJSONRoundTrip(t *testing.T) {
	for _, text := range roundTripCases {
		t.Run(text, func(t *testing.T) {
			expr, err := Parse(text)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			first, err := json.Marshal(expr)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			decoded, err := UnmarshalExpression(first)
			if err != nil {
				t.Fatalf("unmarshal %s: %v", first, err)
			}
			second, err := json.Marshal(decoded)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(first) != string(second) {
				t.Errorf("JSON not stable:\n%s\n%s", first, second)
			}
			if !Equal(expr, decoded) {
				t.Errorf("decoded AST differs: %s", Format(decoded))
			}
		})
	}
}

func TestJSONShape(t *testing.T) {
	alert, err := ParseAlert(`avg(jvm-metrics.cpu{appName = 'a'})[5m] > 50%[-1h]`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := json.Marshal(alert)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["type"] != "alert" || m["window"] != "5m" || m["expectedWindow"] != "-1h" {
		t.Errorf("unexpected JSON: %s", data)
	}
	threshold := m["threshold"].(map[string]any)
	if threshold["kind"] != "percentage" || threshold["value"] != "50%" {
		t.Errorf("unexpected threshold: %v", threshold)
	}

	if _, err := UnmarshalExpression([]byte(`{"type":"bogus"}`)); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestUnmarshalAlertValidation(t *testing.T) {
	alert := func(fields string) []byte {
		return []byte(`{"type":"alert","id":"1","from":"jvm-metrics","select":{"aggregator":"avg","field":"cpu"},` + fields + `}`)
	}
	number := `{"type":"literal","kind":"long","value":1}`
	percent := `{"type":"literal","kind":"percentage","value":"50%"}`

	t.Run("null threshold with is null", func(t *testing.T) {
		expr, err := UnmarshalExpression(alert(`"window":"5m","comparator":"is null","threshold":null`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if a := expr.(*AlertExpression); a.Threshold != nil || a.Comparator != CmpIsNull {
			t.Errorf("unexpected alert %s", Format(a))
		}
	})

	tests := []struct {
		name   string
		fields string
		code   string
	}{
		{"null threshold", `"window":"5m","comparator":">","threshold":null`, ErrInvalidThreshold},
		{"missing threshold", `"window":"5m","comparator":">"`, ErrInvalidThreshold},
		{"zero window", `"window":"0m","comparator":">","threshold":` + number, ErrInvalidWindow},
		{"positive expected window", `"window":"5m","comparator":">","threshold":` + number + `,"expectedWindow":"1h"`, ErrInvalidWindow},
		{"percentage without expected window", `"window":"5m","comparator":">","threshold":` + percent, ErrInvalidThreshold},
		{"unknown comparator", `"window":"5m","comparator":"like","threshold":` + number, ErrUnknownOperator},
		{"is null with threshold", `"window":"5m","comparator":"is null","threshold":` + number, ErrInvalidThreshold},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalExpression(alert(tt.fields))
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("expected a ParseError, got %v", err)
			}
			if perr.Code != tt.code {
				t.Errorf("expected code %s, got %s (%s)", tt.code, perr.Code, perr.Message)
			}
		})
	}

	t.Run("unknown aggregator", func(t *testing.T) {
		data := []byte(`{"type":"alert","id":"1","from":"m","select":{"aggregator":"p99","field":"cpu"},"window":"1m","comparator":">","threshold":` + number + `}`)
		if _, err := UnmarshalExpression(data); err == nil {
			t.Error("expected error for an unknown aggregator")
		}
	})
}

func TestJSONLiterals(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for _, lit := range []*Literal{
		NewString("a"),
		NewLong(-3),
		NewDouble(1),
		NewDouble(2.5),
		NewBool(false),
		NewNull(),
		NewTimestamp(ts),
		NewDurationLiteral(Duration{Value: 5, Unit: UnitSecond}),
		NewAsterisk(),
	} {
		data, err := json.Marshal(lit)
		if err != nil {
			t.Fatalf("marshal %v: %v", lit, err)
		}
		decoded, err := UnmarshalExpression(data)
		if err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if !Equal(lit, decoded) {
			t.Errorf("%s decoded as %v", data, decoded)
		}
	}
}

func TestRewrite(t *testing.T) {
	expr, err := ParseFilter(`a = 1, b = 2`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rewritten, err := Rewrite(expr, func(e Expression) (Expression, error) {
		if id, ok := e.(*Identifier); ok && id.Name == "a" {
			return &Identifier{Name: "z"}, nil
		}
		return e, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := Format(rewritten); got != "z = 1 and b = 2" {
		t.Errorf("unexpected rewrite: %s", got)
	}
	if got := Format(expr); got != "a = 1 and b = 2" {
		t.Errorf("input was modified: %s", got)
	}
}

func TestLiterals(t *testing.T) {
	tests := []struct {
		text string
		kind LiteralKind
		want float64
	}{
		{"5", LitLong, 5},
		{"-5", LitLong, -5},
		{"2.5", LitDouble, 2.5},
		{"10K", LitNumber, 10000},
		{"1Ki", LitNumber, 1024},
		{"1.5M", LitNumber, 1500000},
		{"50%", LitPercentage, 0.5},
		{"5m", LitDuration, 300},
		{"2d", LitDuration, 172800},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			lit, err := parseNumberLiteral(tt.text)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if lit.Type != tt.kind {
				t.Errorf("expected %s, got %s", tt.kind, lit.Type)
			}
			if v, _ := lit.Float64(); v != tt.want {
				t.Errorf("expected %v, got %v", tt.want, v)
			}
			if got := formatLiteral(lit); got != tt.text {
				t.Errorf("expected text %s, got %s", tt.text, got)
			}
		})
	}

	if _, err := parseNumberLiteral("5x"); err == nil {
		t.Error("expected error for unknown suffix")
	}
}

func TestCheckSyntax(t *testing.T) {
	for _, text := range roundTripCases {
		if err := CheckSyntax(text); err != nil {
			t.Errorf("%s: unexpected error: %v", text, err)
		}
	}

	for _, text := range []string{
		`avg(jvm-metrics.cpu > 1`,
		`avg(jvm-metrics.cpu{a = }) > 1`,
		`avg(jvm-metrics.cpu) 1`,
	} {
		err := CheckSyntax(text)
		if err == nil {
			t.Errorf("%s: expected error", text)
			continue
		}
		var perr *ParseError
		if !errors.As(err, &perr) || perr.Position == nil {
			t.Errorf("%s: expected positioned ParseError, got %v", text, err)
		}
	}

	if err := CheckFilterSyntax(`a = 1, b in ('x', 'y') or c is not null`); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSyntaxTreeMetrics(t *testing.T) {
	tree, err := ParseSyntaxTree(`avg(a.x) > 1 or (sum(b.y) > 1 and min(c.z) > 1)`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := strings.Join(tree.Metrics(), ","); got != "a.x,b.y,c.z" {
		t.Errorf("unexpected metrics: %s", got)
	}
}

func TestDetectKind(t *testing.T) {
	tests := []struct {
		text string
		want ExpressionKind
	}{
		{`avg(jvm-metrics.cpu) > 1`, KindAlert},
		{`  (COUNT(a.b) > 1 or avg(c.d) > 1)`, KindAlert},
		{`appName = 'a'`, KindFilter},
		{`count = 1`, KindFilter},
		{``, KindFilter},
	}
	for _, tt := range tests {
		if got := DetectKind(tt.text); got != tt.want {
			t.Errorf("DetectKind(%q) = %s, want %s", tt.text, got, tt.want)
		}
	}
}
