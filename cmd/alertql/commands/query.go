package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/FrankChen021/bithon-sub017/internal/alertql"
	"github.com/FrankChen021/bithon-sub017/internal/cli/query"
	"github.com/FrankChen021/bithon-sub017/internal/cli/render"
	"github.com/FrankChen021/bithon-sub017/internal/metric"
	"github.com/FrankChen021/bithon-sub017/internal/sqlgen"
)

// queryCommand returns the query subcommand
func (a *App) queryCommand() *cli.Command {
	return &cli.Command{
		Name:      "query",
		Usage:     "aggregate a dataset over a time range",
		ArgsUsage: "<dataset>",
		Description: `Aggregate metrics of a dataset, per group and optionally per time bucket.

Examples:
   alertql query jvm-metrics --field "avg(cpu)" --since 1h
   alertql query jvm-metrics --field "max(cpu)" --field "count(cpu)" --group-by appName --filter "appName startswith 'svc'"
   alertql query jvm-metrics --field "last(cpu)" --step auto --from 2024-05-01 --to 2024-05-02 -o csv
   alertql query jvm-metrics --field "avg(cpu)" --group-by appName --collect instance`,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:     "field",
				Aliases:  []string{"f"},
				Usage:    "aggregation as aggregator(column), repeatable",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "filter",
				Usage: "filter expression",
			},
			&cli.StringFlag{
				Name:    "group-by",
				Aliases: []string{"g"},
				Usage:   "comma-separated list of columns to group by",
			},
			&cli.StringSliceFlag{
				Name:  "collect",
				Usage: "column whose distinct values are listed per group, repeatable",
			},
			&cli.StringFlag{
				Name:    "since",
				Aliases: []string{"s"},
				Usage:   "relative time range (e.g., 15m, 1h, 24h, 7d)",
				Value:   "15m",
			},
			&cli.StringFlag{
				Name:  "from",
				Usage: "start time (ISO8601, unix seconds or now-<duration>)",
			},
			&cli.StringFlag{
				Name:  "to",
				Usage: "end time (ISO8601, unix seconds or now-<duration>)",
			},
			&cli.StringFlag{
				Name:  "step",
				Usage: "time bucket width, or auto; no bucketing when empty",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Usage:   "maximum number of rows",
			},
			&cli.BoolFlag{
				Name:  "show-sql",
				Usage: "display the generated SQL query",
			},
		},
		Action: a.runQuery,
	}
}

func (a *App) runQuery(ctx context.Context, cmd *cli.Command) error {
	dataset := cmd.Args().First()
	if dataset == "" {
		return fmt.Errorf("dataset is required")
	}

	fields, err := parseAggregations(cmd.StringSlice("field"))
	if err != nil {
		return err
	}

	tr, err := query.ParseRange(query.RangeOptions{
		Since: cmd.String("since"),
		From:  cmd.String("from"),
		To:    cmd.String("to"),
	}, time.Now())
	if err != nil {
		return fmt.Errorf("invalid time range: %w", err)
	}

	req := metric.Request{
		Dataset: dataset,
		Start:   tr.Start,
		End:     tr.End,
		Fields:  fields,
		Collect: cmd.StringSlice("collect"),
		Limit:   int(cmd.Int("limit")),
	}
	if f := cmd.String("filter"); f != "" {
		if req.Filter, err = alertql.ParseFilter(f); err != nil {
			return fmt.Errorf("invalid filter: %w", err)
		}
	}
	if g := cmd.String("group-by"); g != "" {
		for _, name := range strings.Split(g, ",") {
			req.GroupBy = append(req.GroupBy, strings.TrimSpace(name))
		}
	}

	var step time.Duration
	switch s := cmd.String("step"); s {
	case "":
	case "auto":
		step = query.AutoStep(tr, 60)
	default:
		if step, err = query.ParseDuration(s); err != nil {
			return fmt.Errorf("invalid step: %w", err)
		}
	}

	catalog, err := a.Config.Catalog()
	if err != nil {
		return err
	}
	store, err := metric.Open(a.Config.Metric(), a.Dialects, catalog, a.Logger)
	if err != nil {
		return err
	}
	defer store.Close()

	stmt, err := store.Statement(req, step)
	if err != nil {
		return err
	}
	a.Logger.Debug("running query", "dataset", dataset, "range", tr.String(), "step", step)

	var rows []metric.Row
	if step > 0 {
		rows, err = store.TimeSeries(ctx, req, step)
	} else {
		rows, err = store.GroupBy(ctx, req)
	}
	if err != nil {
		return err
	}

	var columns []string
	if step > 0 {
		columns = append(columns, sqlgen.TimestampAlias)
	}
	columns = append(columns, req.GroupBy...)
	for _, f := range fields {
		columns = append(columns, f.Alias)
	}
	columns = append(columns, req.Collect...)

	r, err := a.renderer(cmd, cmd.Bool("show-sql"))
	if err != nil {
		return err
	}
	result := render.FromRows(rows, columns)
	result.SQL = stmt
	return r.Render(result)
}

// parseAggregations parses aggregator(column) specs. Output columns are named
// aggregator_column.
func parseAggregations(specs []string) ([]sqlgen.Aggregation, error) {
	fields := make([]sqlgen.Aggregation, 0, len(specs))
	for _, spec := range specs {
		name, rest, ok := strings.Cut(strings.TrimSpace(spec), "(")
		column, closed := strings.CutSuffix(strings.TrimSpace(rest), ")")
		if !ok || !closed || strings.TrimSpace(column) == "" {
			return nil, fmt.Errorf("invalid field %q: expected aggregator(column)", spec)
		}
		agg, ok := alertql.ParseAggregator(strings.TrimSpace(name))
		if !ok {
			return nil, fmt.Errorf("invalid field %q: unknown aggregator %q", spec, name)
		}
		column = strings.TrimSpace(column)
		fields = append(fields, sqlgen.Aggregation{
			Aggregator: agg,
			Field:      column,
			Alias:      string(agg) + "_" + column,
		})
	}
	return fields, nil
}
