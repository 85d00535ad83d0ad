package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/FrankChen021/bithon-sub017/internal/alertql"
	"github.com/FrankChen021/bithon-sub017/internal/cli/render"
)

// parseCommand returns the parse subcommand
func (a *App) parseCommand() *cli.Command {
	return &cli.Command{
		Name:      "parse",
		Usage:     "parse an alert rule or filter and print its syntax tree",
		ArgsUsage: "<expression>",
		Description: `Parse an expression and print its clauses, or the full syntax tree with -o json.

Whether the text is a rule or a bare filter is detected from its first
token unless --filter or --rule is given.

Examples:
   alertql parse "avg(jvm-metrics.cpu)[5m] > 80"
   alertql parse -o json "count(http.requests{status >= 500})[1m] by (app) > 10"
   alertql parse --filter "appName = 'a' and cpu > 1"
   alertql parse --syntax-only "sum(jvm.gc)[1h] > 1K"`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "filter",
				Usage: "parse the text as a bare filter",
			},
			&cli.BoolFlag{
				Name:  "rule",
				Usage: "parse the text as an alert rule",
			},
			&cli.BoolFlag{
				Name:  "syntax-only",
				Usage: "only check the syntax, without building the tree",
			},
		},
		Action: a.runParse,
	}
}

func kindOf(cmd *cli.Command, text string) alertql.ExpressionKind {
	switch {
	case cmd.Bool("filter"):
		return alertql.KindFilter
	case cmd.Bool("rule"):
		return alertql.KindAlert
	default:
		return alertql.DetectKind(text)
	}
}

func (a *App) runParse(ctx context.Context, cmd *cli.Command) error {
	text, err := expression(cmd)
	if err != nil {
		return err
	}
	r, err := a.renderer(cmd, false)
	if err != nil {
		return err
	}
	kind := kindOf(cmd, text)

	if cmd.Bool("syntax-only") {
		return a.checkSyntax(r, kind, text)
	}

	var expr alertql.Expression
	if kind == alertql.KindFilter {
		expr, err = alertql.ParseFilter(text)
	} else {
		expr, err = alertql.Parse(text)
	}
	if err != nil {
		return err
	}
	a.Logger.Debug("expression parsed", "kind", kind, "expression", expr.String())

	if cmd.String("output") == "json" {
		return r.JSON(map[string]any{"kind": kind, "expression": expr})
	}
	if kind == alertql.KindFilter {
		return r.Text(alertql.Format(expr))
	}
	return r.Render(clauseTable(expr))
}

func (a *App) checkSyntax(r *render.Renderer, kind alertql.ExpressionKind, text string) error {
	if kind == alertql.KindFilter {
		if err := alertql.CheckFilterSyntax(text); err != nil {
			return err
		}
		return r.Text("ok")
	}
	tree, err := alertql.ParseSyntaxTree(text)
	if err != nil {
		return err
	}
	return r.Text("ok: " + strings.Join(tree.Metrics(), ", "))
}

// clauseTable lists the alert clauses of a rule.
func clauseTable(rule alertql.Expression) *render.Result {
	result := &render.Result{
		Columns: []string{"id", "metric", "aggregator", "window", "filter", "group_by", "comparator", "threshold", "expected_window"},
		Summary: alertql.Format(rule),
	}
	for _, alert := range alertql.AlertExpressions(rule) {
		row := map[string]any{
			"id":         alert.ID,
			"metric":     alert.MetricName(),
			"aggregator": string(alert.Select.Aggregator),
			"window":     alert.Window.String(),
			"comparator": string(alert.Comparator),
			"group_by":   strings.Join(alert.GroupBy, ","),
		}
		if alert.Filter != nil {
			row["filter"] = alertql.Format(alert.Filter)
		}
		if alert.Threshold != nil {
			row["threshold"] = alertql.Format(alert.Threshold)
		}
		if alert.ExpectedWindow != nil {
			row["expected_window"] = alert.ExpectedWindow.String()
		}
		result.Rows = append(result.Rows, row)
	}
	return result
}

// formatCommand returns the format subcommand
func (a *App) formatCommand() *cli.Command {
	return &cli.Command{
		Name:      "format",
		Usage:     "print an expression in canonical form",
		ArgsUsage: "<expression>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "filter",
				Usage: "format the text as a bare filter",
			},
			&cli.BoolFlag{
				Name:  "rule",
				Usage: "format the text as an alert rule",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			text, err := expression(cmd)
			if err != nil {
				return err
			}
			var expr alertql.Expression
			if kindOf(cmd, text) == alertql.KindFilter {
				expr, err = alertql.ParseFilter(text)
			} else {
				expr, err = alertql.Parse(text)
			}
			if err != nil {
				return fmt.Errorf("invalid expression: %w", err)
			}
			r, err := a.renderer(cmd, false)
			if err != nil {
				return err
			}
			return r.Text(alertql.Format(expr))
		},
	}
}
