package dialect

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FrankChen021/bithon-sub017/internal/alertql"
)

func TestManagerGet(t *testing.T) {
	m := NewManager(nil)

	tests := []struct {
		name string
		want string
	}{
		{"clickhouse", "clickhouse"},
		{"MySQL", "mysql"},
		{"POSTGRES", "postgresql"},
		{"postgresql", "postgresql"},
		{"H2", "h2"},
		{"sqlite3", "sqlite"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := m.Get(tt.name)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.Name() != tt.want {
				t.Errorf("expected %s, got %s", tt.want, d.Name())
			}
		})
	}

	t.Run("caches instances", func(t *testing.T) {
		a, _ := m.Get("postgresql")
		b, _ := m.Get("POSTGRES")
		if a != b {
			t.Error("expected the same instance")
		}
	})

	t.Run("unknown dialect", func(t *testing.T) {
		_, err := m.Get("oracle")
		if !errors.Is(err, ErrNoDialect) {
			t.Fatalf("expected ErrNoDialect, got %v", err)
		}
		if !strings.Contains(err.Error(), "oracle") {
			t.Errorf("expected name in error: %v", err)
		}
	})
}

func TestManagerConstructsOnce(t *testing.T) {
	m := NewManager(nil)
	var constructed atomic.Int32
	m.Register("counting", func() Dialect {
		constructed.Add(1)
		return &H2{}
	})

	var wg sync.WaitGroup
	results := make([]Dialect, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := m.Get("COUNTING")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			results[i] = d
		}(i)
	}
	wg.Wait()

	if n := constructed.Load(); n != 1 {
		t.Errorf("expected one construction, got %d", n)
	}
	for _, d := range results {
		if d != results[0] {
			t.Fatal("expected all callers to share one instance")
		}
	}
}

func TestNames(t *testing.T) {
	got := strings.Join(NewManager(nil).Names(), ",")
	if got != "clickhouse,h2,mysql,postgresql,sqlite" {
		t.Errorf("unexpected names: %s", got)
	}
}

func TestQuoting(t *testing.T) {
	m := NewManager(nil)
	tests := []struct {
		dialect string
		want    string
	}{
		{"clickhouse", "`a``b`"},
		{"mysql", "`a``b`"},
		{"postgresql", "\"a`b\""},
		{"h2", "\"a`b\""},
		{"sqlite", "\"a`b\""},
	}
	for _, tt := range tests {
		d, _ := m.Get(tt.dialect)
		if got := d.QuoteIdentifier("a`b"); got != tt.want {
			t.Errorf("%s: expected %s, got %s", tt.dialect, tt.want, got)
		}
	}

	pg, _ := m.Get("postgresql")
	if got := pg.QuoteIdentifier(`a"b`); got != `"a""b"` {
		t.Errorf("expected doubled quote, got %s", got)
	}
}

func TestTimeFloor(t *testing.T) {
	m := NewManager(nil)
	tests := map[string]string{
		"clickhouse": "toUnixTimestamp(toStartOfInterval(ts, INTERVAL 60 SECOND))",
		"mysql":      "FLOOR(UNIX_TIMESTAMP(ts) / 60) * 60",
		"postgresql": "FLOOR(EXTRACT(EPOCH FROM ts) / 60) * 60",
		"sqlite":     "(CAST(strftime('%s', ts) AS INTEGER) / 60) * 60",
	}
	for name, want := range tests {
		d, _ := m.Get(name)
		if got := d.TimeFloorExpression("ts", 60); got != want {
			t.Errorf("%s: expected %s, got %s", name, want, got)
		}
	}
}

func TestFormatDateTime(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	m := NewManager(nil)
	tests := map[string]string{
		"clickhouse": "fromUnixTimestamp64Milli(1714557600000)",
		"mysql":      "'2024-05-01 10:00:00.000'",
		"postgresql": "TIMESTAMP '2024-05-01 10:00:00.000'",
		"sqlite":     "'2024-05-01 10:00:00.000'",
	}
	for name, want := range tests {
		d, _ := m.Get(name)
		if got := d.FormatDateTime(ts); got != want {
			t.Errorf("%s: expected %s, got %s", name, want, got)
		}
	}
}

func TestWindowFunctions(t *testing.T) {
	m := NewManager(nil)

	ch, _ := m.Get("clickhouse")
	if ch.UseWindowFunctionAsAggregator("first") {
		t.Error("clickhouse should not use window functions")
	}
	if _, err := ch.FirstWindowFunction("v", "", "ts"); !errors.Is(err, ErrUnsupportedOperation) {
		t.Errorf("expected ErrUnsupportedOperation, got %v", err)
	}
	if _, err := ch.LastWindowFunction("v", "", "ts"); !errors.Is(err, ErrUnsupportedOperation) {
		t.Errorf("expected ErrUnsupportedOperation, got %v", err)
	}

	pg, _ := m.Get("postgresql")
	if !pg.UseWindowFunctionAsAggregator("last") || pg.UseWindowFunctionAsAggregator("avg") {
		t.Error("postgresql should use window functions for first/last only")
	}
	got, err := pg.LastWindowFunction(`"v"`, `"app"`, `"ts"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `FIRST_VALUE("v") OVER (PARTITION BY "app" ORDER BY "ts" DESC)` {
		t.Errorf("unexpected window function: %s", got)
	}
}

func TestStringAggregator(t *testing.T) {
	m := NewManager(nil)
	tests := map[string]string{
		"clickhouse": "arrayStringConcat(groupUniqArray(app), ',')",
		"mysql":      "GROUP_CONCAT(DISTINCT app)",
		"postgresql": "string_agg(DISTINCT app, ',')",
		"h2":         "LISTAGG(DISTINCT app, ',')",
		"sqlite":     "group_concat(DISTINCT app)",
	}
	for name, want := range tests {
		d, _ := m.Get(name)
		if got := d.StringAggregator("app"); got != want {
			t.Errorf("%s: expected %s, got %s", name, want, got)
		}
	}
}

func mustFilter(t *testing.T, text string) alertql.Expression {
	t.Helper()
	expr, err := alertql.ParseFilter(text)
	if err != nil {
		t.Fatalf("parse %s: %v", text, err)
	}
	return expr
}

func TestTransform(t *testing.T) {
	m := NewManager(nil)
	tests := []struct {
		dialect string
		filter  string
		want    string
	}{
		{"mysql", `a contains '50%_off'`, `a like "%50\\%\\_off%"`},
		{"postgresql", `a startswith 'x'`, `a like "x%"`},
		{"h2", `a endswith 'x'`, `a like "%x"`},
		{"mysql", `tags['env'] = 'prod'`, `tags like "%\"env\":\"prod\"%"`},
		{"postgresql", `tags['env'] <> 'prod'`, `tags not like "%\"env\":\"prod\"%"`},
		{"clickhouse", `tags['env'] contains 'pr'`, `tags["env"] like "%pr%"`},
		{"clickhouse", `first(a, ts) = 1 and last(b, ts) = 2`, `argMin(a, ts) = 1 and argMax(b, ts) = 2`},
		{"sqlite", `a contains '50%'`, `instr(a, "50%") > 0`},
		{"sqlite", `a startswith 'x'`, `instr(a, "x") = 1`},
		{"sqlite", `a endswith 'xy'`, `substr(a, -2) = "xy"`},
		{"sqlite", `a endswith ''`, `a like "%"`},
		{"sqlite", `a startswith ''`, `instr(a, "") = 1`},
		{"sqlite", `tags['env'] = 'prod'`, `instr(tags, "\"env\":\"prod\"") > 0`},
		{"sqlite", `tags['env'] <> 'prod'`, `instr(tags, "\"env\":\"prod\"") = 0`},
		{"mysql", `a = 1`, `a = 1`},
	}
	for _, tt := range tests {
		t.Run(tt.dialect+"/"+tt.filter, func(t *testing.T) {
			d, _ := m.Get(tt.dialect)
			input := mustFilter(t, tt.filter)
			before := alertql.Format(input)
			out, err := d.Transform(nil, input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := alertql.Format(out); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
			if alertql.Format(input) != before {
				t.Error("transform modified its input")
			}
		})
	}
}

func TestTransformUnsupported(t *testing.T) {
	m := NewManager(nil)
	for _, name := range []string{"mysql", "sqlite"} {
		d, _ := m.Get(name)
		_, err := d.Transform(nil, mustFilter(t, `tags['env'] > 'a'`))
		if !errors.Is(err, ErrUnsupportedOperation) {
			t.Errorf("%s: expected ErrUnsupportedOperation, got %v", name, err)
		}
	}
}
