// Package commands provides the CLI command definitions for alertql.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/FrankChen021/bithon-sub017/internal/cli/render"
	"github.com/FrankChen021/bithon-sub017/internal/config"
	"github.com/FrankChen021/bithon-sub017/internal/dialect"
)

// Styles for CLI output
var (
	logoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7C3AED")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))
)

// App holds the shared application state
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Dialects *dialect.Manager
	Version  string
	Commit   string
	Date     string

	out    io.Writer
	errOut io.Writer
}

// New creates the root CLI command with all subcommands
func New(version, commit, date string) *cli.Command {
	app := &App{
		Version: version,
		Commit:  commit,
		Date:    date,
		out:     os.Stdout,
		errOut:  os.Stderr,
	}
	return app.command()
}

func (a *App) command() *cli.Command {
	return &cli.Command{
		Name:    "alertql",
		Usage:   "parse, translate and evaluate alert expressions",
		Version: a.Version,
		Description: `alertql compiles alert expressions such as

   avg(jvm-metrics.cpu{appName = 'a'})[5m] by (instance) > 80%[-1d]

into SQL for ClickHouse, MySQL, PostgreSQL, H2 and SQLite, and evaluates
them against the configured metric database.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
				Sources: cli.EnvVars("ALERTQL_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "output format: text, json, jsonl, csv, table",
				Value:   "text",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "disable colored output",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			cfg, err := config.Load(config.LoadOptions{ConfigPath: cmd.String("config")})
			if err != nil {
				return ctx, err
			}
			a.Config = cfg
			a.Logger = a.newLogger(cmd.Bool("debug"))
			a.Dialects = dialect.NewManager(a.Logger)

			if cmd.Bool("no-color") {
				lipgloss.SetHasDarkBackground(false)
			}
			return ctx, nil
		},
		Commands: []*cli.Command{
			a.parseCommand(),
			a.formatCommand(),
			a.translateCommand(),
			a.evaluateCommand(),
			a.queryCommand(),
			a.dialectsCommand(),
			a.versionCommand(),
		},
	}
}

// newLogger builds the slog logger from the logging config.
func (a *App) newLogger(debug bool) *slog.Logger {
	level, err := log.ParseLevel(a.Config.Logging.Level)
	if err != nil {
		level = log.InfoLevel
	}
	if debug {
		level = log.DebugLevel
	}

	formatter := log.TextFormatter
	switch strings.ToLower(a.Config.Logging.Format) {
	case "json":
		formatter = log.JSONFormatter
	case "logfmt":
		formatter = log.LogfmtFormatter
	}

	handler := log.NewWithOptions(a.errOut, log.Options{
		Level:           level,
		Formatter:       formatter,
		ReportTimestamp: true,
		Prefix:          "alertql",
	})
	return slog.New(handler)
}

// renderer creates a renderer for the global output flag.
func (a *App) renderer(cmd *cli.Command, showSQL bool) (*render.Renderer, error) {
	return render.NewWithWriter(render.Options{
		Format:  cmd.String("output"),
		Color:   !cmd.Bool("no-color") && isTerminal(a.out),
		ShowSQL: showSQL,
	}, a.out)
}

// isTerminal returns true if w is a terminal
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// expression joins the positional arguments into one expression.
func expression(cmd *cli.Command) (string, error) {
	text := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if text == "" {
		return "", fmt.Errorf("expression is required")
	}
	return text, nil
}

// dialectsCommand lists the supported SQL dialects
func (a *App) dialectsCommand() *cli.Command {
	return &cli.Command{
		Name:  "dialects",
		Usage: "list the supported SQL dialects",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			r, err := a.renderer(cmd, false)
			if err != nil {
				return err
			}
			result := &render.Result{
				Columns: []string{"name", "identifier", "boolean_literal", "alias_in_where", "first_last"},
			}
			for _, name := range a.Dialects.Names() {
				d, err := a.Dialects.Get(name)
				if err != nil {
					return err
				}
				firstLast := "aggregate"
				if d.UseWindowFunctionAsAggregator("first") {
					firstLast = "window"
				}
				result.Rows = append(result.Rows, map[string]any{
					"name":            d.Name(),
					"identifier":      d.QuoteIdentifier("name"),
					"boolean_literal": d.SupportsBooleanLiteral(),
					"alias_in_where":  d.IsAliasAllowedInWhereClause(),
					"first_last":      firstLast,
				})
			}
			return r.Render(result)
		},
	}
}

// versionCommand shows version information
func (a *App) versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "show version information",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			fmt.Fprintf(a.out, "%s version %s\n", logoStyle.Render("alertql"), a.Version)
			fmt.Fprintf(a.out, "  commit: %s\n", mutedStyle.Render(a.Commit))
			fmt.Fprintf(a.out, "  built:  %s\n", mutedStyle.Render(a.Date))
			return nil
		},
	}
}
