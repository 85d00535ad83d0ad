package util

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNumeric(t *testing.T) {
	tests := []struct {
		name        string
		value       any
		expected    float64
		isNull      bool
		shouldError bool
	}{
		{name: "float64 value", value: float64(42.5), expected: 42.5},
		{name: "float64 pointer", value: ptrFloat64(24.576875029), expected: 24.576875029},
		{name: "int64 value", value: int64(100), expected: 100},
		{name: "int64 pointer", value: ptrInt64(200), expected: 200},
		{name: "uint64 value", value: uint64(999), expected: 999},
		{name: "int32 value", value: int32(7), expected: 7},
		{name: "decimal value", value: decimal.RequireFromString("1.25"), expected: 1.25},
		{name: "mysql decimal text", value: []byte("3.50"), expected: 3.5},
		{name: "string numeric value", value: "123.45", expected: 123.45},
		{name: "nil", value: nil, isNull: true},
		{name: "nil float64 pointer", value: (*float64)(nil), isNull: true},
		{name: "invalid null decimal", value: decimal.NullDecimal{}, isNull: true},
		{name: "nan", value: math.NaN(), isNull: true},
		{name: "positive infinity", value: math.Inf(1), isNull: true},
		{name: "float32 negative infinity", value: float32(math.Inf(-1)), isNull: true},
		{name: "nan text", value: "nan", isNull: true},
		{name: "invalid string value", value: "not-a-number", shouldError: true},
		{name: "unsupported type", value: struct{}{}, shouldError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Numeric(tt.value)
			if tt.shouldError {
				if err == nil {
					t.Errorf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.isNull {
				if got != nil {
					t.Errorf("expected nil, got %v", *got)
				}
				return
			}
			if got == nil || *got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestRound(t *testing.T) {
	tests := []struct {
		value    float64
		places   int32
		expected float64
	}{
		{1.005, 2, 1.01},
		{2.344, 2, 2.34},
		{-1.5, 0, -2},
		{0.33333, 4, 0.3333},
	}
	for _, tt := range tests {
		if got := Round(tt.value, tt.places); got != tt.expected {
			t.Errorf("Round(%v, %d) = %v, want %v", tt.value, tt.places, got, tt.expected)
		}
	}
}

func TestLabel(t *testing.T) {
	if got := Label([]byte("a")); got != "a" {
		t.Errorf("expected a, got %s", got)
	}
	if got := Label(int64(3)); got != "3" {
		t.Errorf("expected 3, got %s", got)
	}
	if got := Label(nil); got != "" {
		t.Errorf("expected empty label, got %s", got)
	}
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 {
	return &v
}

func ptrInt64(v int64) *int64 {
	return &v
}
