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
	"github.com/FrankChen021/bithon-sub017/internal/evaluator"
	"github.com/FrankChen021/bithon-sub017/internal/metric"
	"github.com/FrankChen021/bithon-sub017/internal/notify"
	"github.com/FrankChen021/bithon-sub017/internal/template"
)

// evaluateCommand returns the evaluate subcommand
func (a *App) evaluateCommand() *cli.Command {
	return &cli.Command{
		Name:      "evaluate",
		Aliases:   []string{"eval"},
		Usage:     "evaluate an alert rule against the metric database",
		ArgsUsage: "<rule>",
		Description: `Evaluate a rule once and print the outcome of every evaluated clause.

The current window of each clause ends at --at minus the configured
evaluation delay. Clauses skipped because the rule outcome was already
decided are not listed.

Examples:
   alertql evaluate "avg(jvm-metrics.cpu)[5m] by (appName) > 80"
   alertql evaluate --at now-1h "count(http.requests{status >= 500})[1m] > 10 or sum(jvm.gc)[1m] > 100"
   alertql evaluate --message "{{label_appName}}: {{value}}" "max(jvm-metrics.cpu)[1m] by (appName) > 1%[-1d]"`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "at",
				Usage: "evaluation time (e.g. now, now-5m, 2024-05-01T10:00:00Z)",
				Value: "now",
			},
			&cli.StringFlag{
				Name:    "message",
				Aliases: []string{"m"},
				Usage:   "message template rendered for every output",
			},
			&cli.StringSliceFlag{
				Name:  "webhook",
				Usage: "webhook URL notified when the rule matches, repeatable",
			},
			&cli.BoolFlag{
				Name:  "metrics",
				Usage: "print evaluation metrics in Prometheus format to stderr",
			},
		},
		Action: a.runEvaluate,
	}
}

func (a *App) runEvaluate(ctx context.Context, cmd *cli.Command) error {
	text, err := expression(cmd)
	if err != nil {
		return err
	}
	rule, err := alertql.Parse(text)
	if err != nil {
		return err
	}
	at, err := query.ParseTime(cmd.String("at"), time.Now())
	if err != nil {
		return fmt.Errorf("invalid --at: %w", err)
	}
	end := at.Add(-a.Config.Evaluation.Delay)

	catalog, err := a.Config.Catalog()
	if err != nil {
		return err
	}
	for _, alert := range alertql.AlertExpressions(rule) {
		sc, err := catalog.GetSchema(alert.From)
		if err != nil {
			return err
		}
		if err := sc.ValidateAlert(alert); err != nil {
			return err
		}
	}

	store, err := metric.Open(a.Config.Metric(), a.Dialects, catalog, a.Logger)
	if err != nil {
		return err
	}
	defer store.Close()

	metrics := evaluator.NewMetrics()
	ev := evaluator.NewRuleEvaluator(store, evaluator.Options{Logger: a.Logger, Metrics: metrics})
	res, err := ev.Evaluate(ctx, rule, end)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	message := cmd.String("message")
	if message == "" {
		message = a.Config.Evaluation.Message
	}
	messages, err := renderMessages(message, res)
	if err != nil {
		return err
	}

	r, err := a.renderer(cmd, false)
	if err != nil {
		return err
	}
	if err := r.Render(render.FromRuleResult(res, messages)); err != nil {
		return err
	}
	if cmd.Bool("metrics") {
		metrics.WritePrometheus(a.errOut)
	}

	if res.Status != evaluator.StatusMatched {
		return nil
	}
	urls := append(append([]string{}, a.Config.Notify.Webhooks...), cmd.StringSlice("webhook")...)
	sender := notify.NewWebhookSender(notify.WebhookOptions{
		URLs:          urls,
		Timeout:       a.Config.Notify.Timeout,
		SkipTLSVerify: a.Config.Notify.SkipTLSVerify,
		Logger:        a.Logger,
	})
	return sender.Send(ctx, notify.FromRuleResult(alertql.Format(rule), res, messages, end))
}

// renderMessages renders the message template for every output, keyed by clause id.
func renderMessages(text string, res *evaluator.RuleResult) (map[string][]string, error) {
	messages := make(map[string][]string, len(res.Clauses))
	for id, clause := range res.Clauses {
		if len(clause.Outputs) == 0 {
			continue
		}
		rendered, err := template.RenderResult(text, clause)
		if err != nil {
			return nil, fmt.Errorf("clause %s: %w", id, err)
		}
		messages[id] = strings.Split(rendered, "\n")
	}
	return messages, nil
}
