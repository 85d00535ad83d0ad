// Package render prints the results of alertql commands.
package render

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/FrankChen021/bithon-sub017/internal/evaluator"
	"github.com/FrankChen021/bithon-sub017/internal/metric"
)

// Result is a tabular result with an optional one-line summary.
type Result struct {
	Columns []string
	Rows    []map[string]any
	Summary string
	SQL     string
}

// Options configures the renderer
type Options struct {
	Format  string   // text, table, json, jsonl, csv
	Fields  []string // Columns to display (nil = all)
	Color   bool     // Enable colored output
	ShowSQL bool     // Print the generated SQL before the rows
}

// Renderer renders command results
type Renderer struct {
	opts Options
	out  io.Writer
}

// New creates a new renderer writing to stdout
func New(opts Options) (*Renderer, error) {
	return NewWithWriter(opts, os.Stdout)
}

// NewWithWriter creates a renderer writing to w
func NewWithWriter(opts Options, w io.Writer) (*Renderer, error) {
	if opts.Format == "" {
		opts.Format = "text"
	}
	switch opts.Format {
	case "text", "table", "json", "jsonl", "csv":
	default:
		return nil, fmt.Errorf("unknown output format: %s (valid: text, json, jsonl, csv, table)", opts.Format)
	}
	return &Renderer{opts: opts, out: w}, nil
}

// Render renders the result
func (r *Renderer) Render(result *Result) error {
	if r.opts.ShowSQL && result.SQL != "" && r.opts.Format != "json" {
		fmt.Fprintln(r.out, r.dim("-- "+result.SQL))
	}
	switch r.opts.Format {
	case "json":
		return r.renderJSON(r.out, result)
	case "jsonl":
		return r.renderJSONL(r.out, result)
	case "csv":
		return r.renderCSV(r.out, result)
	case "table":
		return r.renderTable(r.out, result)
	default:
		return r.renderText(r.out, result)
	}
}

// Text prints a plain line, e.g. a formatted expression or a SQL statement.
func (r *Renderer) Text(s string) error {
	if r.opts.Format == "json" || r.opts.Format == "jsonl" {
		return json.NewEncoder(r.out).Encode(map[string]string{"result": s})
	}
	_, err := fmt.Fprintln(r.out, s)
	return err
}

// JSON prints v as indented JSON regardless of the output format.
func (r *Renderer) JSON(v any) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func (r *Renderer) renderJSON(w io.Writer, result *Result) error {
	output := map[string]any{
		"rows":  r.filterFields(result.Rows),
		"count": len(result.Rows),
	}
	if result.Summary != "" {
		output["summary"] = result.Summary
	}
	if result.SQL != "" {
		output["sql"] = result.SQL
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

// renderJSONL renders as JSON Lines (one JSON object per line)
func (r *Renderer) renderJSONL(w io.Writer, result *Result) error {
	for _, row := range r.filterFields(result.Rows) {
		data, err := json.Marshal(row)
		if err != nil {
			return err
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return err
		}
	}
	return nil
}

// renderText prints one logfmt-like line per row, status first.
func (r *Renderer) renderText(w io.Writer, result *Result) error {
	if result.Summary != "" {
		fmt.Fprintln(w, r.styleStatus(result.Summary))
	}
	if len(result.Rows) == 0 {
		fmt.Fprintln(w, "No results found.")
		return nil
	}

	headers := r.headers(result)
	for _, row := range result.Rows {
		parts := make([]string, 0, len(headers))
		for _, h := range headers {
			v, ok := row[h]
			if !ok {
				continue
			}
			s := formatValue(v)
			if s == "" {
				continue
			}
			if h == "status" {
				parts = append(parts, r.styleStatus(s))
				continue
			}
			if strings.ContainsAny(s, " =") {
				s = strconv.Quote(s)
			}
			parts = append(parts, r.dim(h+"=")+s)
		}
		fmt.Fprintln(w, strings.Join(parts, " "))
	}
	return nil
}

var (
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	matchedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	unmatchedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	noDataStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

func (r *Renderer) dim(s string) string {
	if !r.opts.Color {
		return s
	}
	return dimStyle.Render(s)
}

// styleStatus colors the evaluation status words in s.
func (r *Renderer) styleStatus(s string) string {
	if !r.opts.Color {
		return s
	}
	switch {
	case strings.Contains(s, string(evaluator.StatusNotMatched)):
		return unmatchedStyle.Render(s)
	case strings.Contains(s, string(evaluator.StatusMatched)):
		return matchedStyle.Render(s)
	case strings.Contains(s, string(evaluator.StatusNoData)):
		return noDataStyle.Render(s)
	default:
		return s
	}
}

// renderCSV renders as CSV
func (r *Renderer) renderCSV(w io.Writer, result *Result) error {
	if len(result.Rows) == 0 {
		return nil
	}

	writer := csv.NewWriter(w)
	headers := r.headers(result)
	if err := writer.Write(headers); err != nil {
		return err
	}
	for _, row := range result.Rows {
		record := make([]string, len(headers))
		for i, h := range headers {
			if v, ok := row[h]; ok {
				record[i] = formatValue(v)
			}
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// renderTable renders as a formatted table
func (r *Renderer) renderTable(w io.Writer, result *Result) error {
	if result.Summary != "" {
		fmt.Fprintln(w, r.styleStatus(result.Summary))
	}
	if len(result.Rows) == 0 {
		fmt.Fprintln(w, "No results found.")
		return nil
	}

	headers := r.headers(result)
	rows := make([][]string, len(result.Rows))
	for i, row := range result.Rows {
		cells := make([]string, len(headers))
		for j, h := range headers {
			if v, ok := row[h]; ok {
				cells[j] = truncate(formatValue(v), 80)
			}
		}
		rows[i] = cells
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("238"))).
		Headers(headers...).
		Rows(rows...)

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("252"))
	t.StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return headerStyle
		}
		if row%2 == 0 {
			return lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
		}
		return lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	})

	fmt.Fprintln(w, t.Render())
	fmt.Fprintln(w, r.dim(fmt.Sprintf("%d rows", len(result.Rows))))
	return nil
}

// filterFields filters row fields based on the Fields option
func (r *Renderer) filterFields(rows []map[string]any) []map[string]any {
	if len(r.opts.Fields) == 0 {
		return rows
	}

	filtered := make([]map[string]any, len(rows))
	for i, row := range rows {
		m := make(map[string]any)
		for _, field := range r.opts.Fields {
			if v, ok := row[field]; ok {
				m[field] = v
			}
		}
		filtered[i] = m
	}
	return filtered
}

// headers returns column headers in order
func (r *Renderer) headers(result *Result) []string {
	if len(r.opts.Fields) > 0 {
		return r.opts.Fields
	}
	if len(result.Columns) > 0 {
		return result.Columns
	}
	if len(result.Rows) == 0 {
		return nil
	}
	// Fall back to the sorted keys of the first row
	headers := make([]string, 0, len(result.Rows[0]))
	for k := range result.Rows[0] {
		headers = append(headers, k)
	}
	sort.Strings(headers)
	return headers
}

// formatValue formats a value for display
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case *float64:
		if val == nil {
			return ""
		}
		return formatValue(*val)
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case evaluator.Status:
		return string(val)
	case map[string]string:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, len(keys))
		for i, k := range keys {
			pairs[i] = k + "=" + val[k]
		}
		return strings.Join(pairs, ",")
	default:
		return fmt.Sprintf("%v", val)
	}
}

// truncate shortens long cell values
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// FromRows converts metric rows into a result. Columns lists the label
// columns followed by the aggregated fields.
func FromRows(rows []metric.Row, columns []string) *Result {
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		out[i] = map[string]any(row)
	}
	return &Result{Columns: columns, Rows: out}
}

// EvaluationColumns are the columns of FromRuleResult rows.
var EvaluationColumns = []string{"clause", "status", "labels", "value", "base", "delta", "threshold", "message"}

// FromRuleResult converts a rule evaluation into one row per clause output,
// ordered by clause id. Messages are keyed by clause id and hold one line per output.
func FromRuleResult(rr *evaluator.RuleResult, messages map[string][]string) *Result {
	result := &Result{
		Columns: EvaluationColumns,
		Summary: "rule " + string(rr.Status),
	}
	for _, id := range evaluator.ClauseIDs(rr) {
		clause := rr.Clauses[id]
		if len(clause.Outputs) == 0 {
			result.Rows = append(result.Rows, map[string]any{
				"clause": id,
				"status": clause.Status,
			})
			continue
		}
		for i, o := range clause.Outputs {
			row := map[string]any{
				"clause":    id,
				"status":    o.Status,
				"labels":    o.Labels,
				"value":     o.Value,
				"base":      o.Base,
				"delta":     o.Delta,
				"threshold": o.Threshold,
			}
			if lines := messages[id]; i < len(lines) {
				row["message"] = lines[i]
			}
			result.Rows = append(result.Rows, row)
		}
	}
	return result
}
