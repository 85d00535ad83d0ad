// Package util holds small helpers shared by the metric store and the evaluators.
package util

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Numeric converts a value scanned from a database driver into a float64.
// It returns nil for SQL NULL, including nil pointers, since NULL is a valid
// aggregate result (e.g. avg over no rows) rather than an error. NaN and
// infinities, which ClickHouse returns for avg over an empty window, are
// treated as NULL too.
// Value and pointer types are supported for all numeric types; text values,
// which MySQL returns for DECIMAL columns, are parsed.
func Numeric(rawValue any) (*float64, error) {
	var f float64
	switch v := rawValue.(type) {
	case nil:
		return nil, nil
	case float64:
		f = v
	case *float64:
		if v == nil {
			return nil, nil
		}
		f = *v
	case float32:
		f = float64(v)
	case *float32:
		if v == nil {
			return nil, nil
		}
		f = float64(*v)
	case int:
		f = float64(v)
	case int8:
		f = float64(v)
	case int16:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case *int64:
		if v == nil {
			return nil, nil
		}
		f = float64(*v)
	case uint8:
		f = float64(v)
	case uint16:
		f = float64(v)
	case uint32:
		f = float64(v)
	case uint64:
		f = float64(v)
	case *uint64:
		if v == nil {
			return nil, nil
		}
		f = float64(*v)
	case bool:
		if v {
			f = 1
		}
	case decimal.Decimal:
		f = v.InexactFloat64()
	case *decimal.Decimal:
		if v == nil {
			return nil, nil
		}
		f = v.InexactFloat64()
	case decimal.NullDecimal:
		if !v.Valid {
			return nil, nil
		}
		f = v.Decimal.InexactFloat64()
	case []byte:
		return parseNumeric(string(v))
	case string:
		return parseNumeric(v)
	default:
		return nil, fmt.Errorf("unsupported result type %T", rawValue)
	}
	return finite(f), nil
}

func finite(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func parseNumeric(s string) (*float64, error) {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil, fmt.Errorf("unable to parse numeric value %q: %w", s, err)
	}
	return finite(parsed), nil
}

// Round rounds f half away from zero to the given number of decimal places.
func Round(f float64, places int32) float64 {
	return decimal.NewFromFloat(f).Round(places).InexactFloat64()
}

// Label converts a group-by value into its string form.
func Label(rawValue any) string {
	switch v := rawValue.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case *string:
		if v == nil {
			return ""
		}
		return *v
	default:
		return fmt.Sprint(v)
	}
}
