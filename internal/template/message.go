// Package template renders alert notification messages from evaluation outputs.
package template

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/FrankChen021/bithon-sub017/internal/alertql"
	"github.com/FrankChen021/bithon-sub017/internal/evaluator"
	"github.com/FrankChen021/bithon-sub017/internal/util"
)

// VariableType defines how a variable is formatted.
type VariableType string

const (
	TypeString VariableType = "string"
	// TypeNumber is inserted as a plain decimal number.
	TypeNumber VariableType = "number"
	// TypePercent is a fraction rendered as a percentage, e.g. 0.5 => 50%.
	TypePercent VariableType = "percent"
	// TypeDate is rendered as RFC 3339 in UTC.
	TypeDate VariableType = "date"
)

// Variable represents a template variable with its value.
type Variable struct {
	Name  string       `json:"name"`
	Type  VariableType `json:"type"`
	Value any          `json:"value"`
}

var (
	// variablePattern matches {{variable_name}} with optional whitespace.
	variablePattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)
	// validNamePattern validates variable names.
	validNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
	invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)
)

// Render replaces {{variable}} placeholders with formatted values.
// It returns an error if a variable is undefined or has an invalid name.
func Render(text string, variables []Variable) (string, error) {
	varMap := make(map[string]Variable, len(variables))
	for _, v := range variables {
		if !validNamePattern.MatchString(v.Name) {
			return "", fmt.Errorf("invalid variable name: %s", v.Name)
		}
		varMap[v.Name] = v
	}

	for _, name := range ExtractVariableNames(text) {
		if _, exists := varMap[name]; !exists {
			return "", fmt.Errorf("undefined variable: {{%s}}", name)
		}
	}

	var substitutionErr error
	result := variablePattern.ReplaceAllStringFunc(text, func(match string) string {
		if substitutionErr != nil {
			return match
		}
		varName := variablePattern.FindStringSubmatch(match)[1]
		formatted, err := formatValue(varMap[varName])
		if err != nil {
			substitutionErr = fmt.Errorf("variable %s: %w", varName, err)
			return match
		}
		return formatted
	})
	if substitutionErr != nil {
		return "", substitutionErr
	}
	return result, nil
}

func formatValue(v Variable) (string, error) {
	if p, ok := v.Value.(*float64); ok {
		if p == nil {
			v.Value = nil
		} else {
			v.Value = *p
		}
	}

	switch v.Type {
	case TypeNumber:
		return formatNumber(v.Value)
	case TypePercent:
		if v.Value == nil {
			return "null", nil
		}
		f, err := toFloat(v.Value)
		if err != nil {
			return "", err
		}
		return strconv.FormatFloat(util.Round(f*100, 2), 'f', -1, 64) + "%", nil
	case TypeDate:
		t, ok := v.Value.(time.Time)
		if !ok {
			return "", fmt.Errorf("unsupported date type: %T", v.Value)
		}
		return t.UTC().Format(time.RFC3339), nil
	default:
		if v.Value == nil {
			return "", nil
		}
		return fmt.Sprintf("%v", v.Value), nil
	}
}

func formatNumber(value any) (string, error) {
	if value == nil {
		return "null", nil
	}
	f, err := toFloat(value)
	if err != nil {
		return "", err
	}
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10), nil
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}

func toFloat(value any) (float64, error) {
	switch val := value.(type) {
	case float64:
		return val, nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	default:
		return 0, fmt.Errorf("unsupported number type: %T", val)
	}
}

// ExtractVariableNames returns all unique variable names found in the text.
func ExtractVariableNames(text string) []string {
	matches := variablePattern.FindAllStringSubmatch(text, -1)
	seen := make(map[string]bool)
	names := make([]string, 0, len(matches))

	for _, m := range matches {
		if len(m) == 2 && !seen[m[1]] {
			names = append(names, m[1])
			seen[m[1]] = true
		}
	}
	return names
}

// OutputVariables returns the variables describing one evaluation output of
// alert: id, expression, metric, status, value, threshold, start and end, plus
// base and delta for relative clauses and label_<name> for each group label.
func OutputVariables(alert *alertql.AlertExpression, out evaluator.Output) []Variable {
	threshold := ""
	if alert.Threshold != nil {
		threshold = alertql.Format(alert.Threshold)
	}
	vars := []Variable{
		{Name: "id", Type: TypeString, Value: alert.ID},
		{Name: "expression", Type: TypeString, Value: alert.String()},
		{Name: "metric", Type: TypeString, Value: alert.MetricName()},
		{Name: "comparator", Type: TypeString, Value: string(alert.Comparator)},
		{Name: "status", Type: TypeString, Value: string(out.Status)},
		{Name: "value", Type: TypeNumber, Value: out.Value},
		{Name: "threshold", Type: TypeString, Value: threshold},
		{Name: "start", Type: TypeDate, Value: out.Start},
		{Name: "end", Type: TypeDate, Value: out.End},
	}
	if alert.IsRelative() {
		deltaType := TypeNumber
		if alert.Threshold != nil && alert.Threshold.Type == alertql.LitPercentage && out.Base != nil && *out.Base != 0 {
			deltaType = TypePercent
		}
		vars = append(vars,
			Variable{Name: "base", Type: TypeNumber, Value: out.Base},
			Variable{Name: "delta", Type: deltaType, Value: out.Delta},
			Variable{Name: "offset", Type: TypeString, Value: alert.ExpectedWindow.String()},
		)
	}
	for name, value := range out.Labels {
		vars = append(vars, Variable{
			Name:  "label_" + invalidNameChars.ReplaceAllString(name, "_"),
			Type:  TypeString,
			Value: value,
		})
	}
	return vars
}

// DefaultMessage is used when a rule defines no message of its own.
const DefaultMessage = "[{{status}}] {{expression}}: value {{value}}, threshold {{threshold}}"

// RenderResult renders text for every output of a clause result, one line per output.
func RenderResult(text string, res *evaluator.Result) (string, error) {
	if text == "" {
		text = DefaultMessage
	}
	lines := make([]string, 0, len(res.Outputs))
	for _, out := range res.Outputs {
		line, err := Render(text, OutputVariables(res.Alert, out))
		if err != nil {
			return "", err
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), nil
}
