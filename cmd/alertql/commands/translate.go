package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/FrankChen021/bithon-sub017/internal/alertql"
	"github.com/FrankChen021/bithon-sub017/internal/cli/query"
	"github.com/FrankChen021/bithon-sub017/internal/cli/render"
	"github.com/FrankChen021/bithon-sub017/internal/clickhouse"
	"github.com/FrankChen021/bithon-sub017/internal/dialect"
	"github.com/FrankChen021/bithon-sub017/internal/schema"
	"github.com/FrankChen021/bithon-sub017/internal/sqlgen"
)

// translateCommand returns the translate subcommand
func (a *App) translateCommand() *cli.Command {
	return &cli.Command{
		Name:      "translate",
		Usage:     "translate an alert rule or filter to SQL",
		ArgsUsage: "<expression>",
		Description: `Translate an expression to SQL without executing it.

A filter becomes a WHERE predicate. Every clause of a rule becomes the
query of its current window, and relative clauses add the query of
their baseline window.

Examples:
   alertql translate --dialect mysql "appName contains 'svc' and tags['env'] = 'prod'"
   alertql translate --dialect postgresql "last(jvm-metrics.cpu)[5m] by (appName) > 1"
   alertql translate --at 2024-05-01T10:00:00Z "avg(jvm-metrics.cpu)[5m] > 10%[-1d]"`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dialect",
				Aliases: []string{"d"},
				Usage:   "SQL dialect, defaults to the datasource dialect",
			},
			&cli.StringFlag{
				Name:  "schema",
				Usage: "dataset used to resolve column aliases of a filter",
			},
			&cli.StringFlag{
				Name:  "at",
				Usage: "end of the current window (e.g. now, now-5m, 2024-05-01T10:00:00Z)",
				Value: "now",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "add a LIMIT clause to ClickHouse queries",
			},
			&cli.BoolFlag{
				Name:  "filter",
				Usage: "translate the text as a bare filter",
			},
			&cli.BoolFlag{
				Name:  "rule",
				Usage: "translate the text as an alert rule",
			},
		},
		Action: a.runTranslate,
	}
}

func (a *App) runTranslate(ctx context.Context, cmd *cli.Command) error {
	text, err := expression(cmd)
	if err != nil {
		return err
	}
	name := cmd.String("dialect")
	if name == "" {
		name = a.Config.Datasource.Dialect
	}
	d, err := a.Dialects.Get(name)
	if err != nil {
		return err
	}
	catalog, err := a.Config.Catalog()
	if err != nil {
		return err
	}
	r, err := a.renderer(cmd, false)
	if err != nil {
		return err
	}

	if kindOf(cmd, text) == alertql.KindFilter {
		filter, err := alertql.ParseFilter(text)
		if err != nil {
			return err
		}
		var sc *schema.Schema
		if ds := cmd.String("schema"); ds != "" {
			if sc, err = catalog.GetSchema(ds); err != nil {
				return err
			}
		}
		sql, err := sqlgen.Serialize(sc, d, filter)
		if err != nil {
			return err
		}
		return r.Text(sql)
	}

	rule, err := alertql.Parse(text)
	if err != nil {
		return err
	}
	end, err := query.ParseTime(cmd.String("at"), time.Now())
	if err != nil {
		return fmt.Errorf("invalid --at: %w", err)
	}
	result, err := translateRule(d, catalog, rule, end, int(cmd.Int("limit")))
	if err != nil {
		return err
	}
	return r.Render(result)
}

// translateRule returns one row per window query of every clause of rule.
func translateRule(d dialect.Dialect, catalog schema.Catalog, rule alertql.Expression, end time.Time, limit int) (*render.Result, error) {
	builder := sqlgen.NewQueryBuilder(d)
	result := &render.Result{
		Columns: []string{"clause", "window", "start", "end", "sql"},
		Summary: alertql.Format(rule),
	}
	for _, alert := range alertql.AlertExpressions(rule) {
		sc, err := catalog.GetSchema(alert.From)
		if err != nil {
			return nil, err
		}
		if err := sc.ValidateAlert(alert); err != nil {
			return nil, err
		}

		queries := []struct {
			window string
			q      sqlgen.Query
		}{{"current", sqlgen.AlertQuery(sc, alert, end)}}
		if alert.IsRelative() {
			baseline := sqlgen.AlertQuery(sc, alert, end.Add(-alert.Offset()))
			queries = append(queries, struct {
				window string
				q      sqlgen.Query
			}{"baseline", baseline})
		}

		for _, w := range queries {
			sql, err := builder.GroupBy(w.q)
			if err != nil {
				return nil, fmt.Errorf("clause %s: %w", alert.ID, err)
			}
			if d.Name() == "clickhouse" {
				v := clickhouse.NewValidator(sc.Table)
				if limit > 0 {
					sql, err = v.EnsureLimit(sql, limit)
				} else {
					err = v.Validate(sql)
				}
				if err != nil {
					return nil, fmt.Errorf("clause %s: %w", alert.ID, err)
				}
			}
			result.Rows = append(result.Rows, map[string]any{
				"clause": alert.ID,
				"window": w.window,
				"start":  w.q.Start,
				"end":    w.q.End,
				"sql":    sql,
			})
		}
	}
	return result, nil
}
