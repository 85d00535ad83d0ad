package schema

import (
	"errors"
	"testing"

	"github.com/FrankChen021/bithon-sub017/internal/alertql"
)

func jvmSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := New("jvm-metrics", "JVM", "", "", []Column{
		{Name: "appName", Kind: KindDimension},
		{Name: "instanceName", Alias: "instance", Kind: KindDimension},
		{Name: "tags", DataType: TypeMap},
		{Name: "cpu", DataType: TypeDouble, Kind: KindMetric},
		{Name: "heapUsed", Alias: "instance", DataType: TypeLong, Kind: KindMetric},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return s
}

func TestNew(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		s := jvmSchema(t)
		if s.Table != "jvm_metrics" {
			t.Errorf("expected table jvm_metrics, got %s", s.Table)
		}
		if s.TimestampColumn != "timestamp" {
			t.Errorf("expected timestamp column, got %s", s.TimestampColumn)
		}
	})

	t.Run("rejects string metrics", func(t *testing.T) {
		_, err := New("x", "", "", "", []Column{{Name: "m", DataType: TypeString, Kind: KindMetric}})
		if err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("rejects duplicate columns", func(t *testing.T) {
		_, err := New("x", "", "", "", []Column{{Name: "a"}, {Name: "a"}})
		if err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("first column wins alias collision", func(t *testing.T) {
		s := jvmSchema(t)
		c, ok := s.Column("instance")
		if !ok || c.Name != "instanceName" {
			t.Fatalf("expected instanceName, got %+v", c)
		}
		if s.ColumnName("unknown") != "unknown" {
			t.Error("unknown names should pass through")
		}
	})
}

func TestValidateAlert(t *testing.T) {
	s := jvmSchema(t)
	tests := []struct {
		text    string
		wantErr bool
	}{
		{`avg(jvm-metrics.cpu{appName = 'a', tags['env'] = 'prod'}) by (instance) > 1`, false},
		{`count(jvm-metrics.appName) > 1`, false},
		{`avg(jvm-metrics.appName) > 1`, true},
		{`avg(jvm-metrics.nope) > 1`, true},
		{`avg(jvm-metrics.cpu{nope = 1}) > 1`, true},
		{`avg(jvm-metrics.cpu{appName['x'] = 1}) > 1`, true},
		{`avg(jvm-metrics.cpu) by (cpu) > 1`, true},
		{`avg(other.cpu) > 1`, true},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			alert, err := alertql.ParseAlert(tt.text)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			err = s.ValidateAlert(alert)
			if (err != nil) != tt.wantErr {
				t.Errorf("wantErr=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestStaticCatalog(t *testing.T) {
	c := NewStaticCatalog(jvmSchema(t))
	if _, err := c.GetSchema("jvm-metrics"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := c.GetSchema("missing")
	if !errors.Is(err, ErrSchemaNotFound) {
		t.Errorf("expected ErrSchemaNotFound, got %v", err)
	}
	if len(c.Names()) != 1 {
		t.Errorf("expected one schema, got %v", c.Names())
	}
}
