// Package config loads the alertql configuration from a TOML file and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/FrankChen021/bithon-sub017/internal/metric"
	"github.com/FrankChen021/bithon-sub017/internal/schema"
)

// EnvPrefix prefixes environment variables overriding configuration keys.
const EnvPrefix = "ALERTQL_"

// Config represents the application configuration
type Config struct {
	Logging    LoggingConfig    `koanf:"logging"`
	Datasource DatasourceConfig `koanf:"datasource"`
	Evaluation EvaluationConfig `koanf:"evaluation"`
	Notify     NotifyConfig     `koanf:"notify"`
	Schemas    []SchemaConfig   `koanf:"schemas"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // text, json, logfmt
}

// DatasourceConfig selects the metric database
type DatasourceConfig struct {
	Dialect      string        `koanf:"dialect"`
	Driver       string        `koanf:"driver"`
	DSN          string        `koanf:"dsn"`
	MaxOpenConns int           `koanf:"max_open_conns"`
	QueryTimeout time.Duration `koanf:"query_timeout"`
}

// EvaluationConfig holds alert evaluation settings
type EvaluationConfig struct {
	// Delay moves the end of evaluated windows back to let late data arrive.
	Delay time.Duration `koanf:"delay"`
	// Message is the notification template, see package template.
	Message string `koanf:"message"`
}

// NotifyConfig configures delivery of matched rules
type NotifyConfig struct {
	Webhooks      []string      `koanf:"webhooks"`
	Timeout       time.Duration `koanf:"timeout"`
	SkipTLSVerify bool          `koanf:"skip_tls_verify"`
}

// SchemaConfig describes a dataset
type SchemaConfig struct {
	Name            string         `koanf:"name"`
	DisplayName     string         `koanf:"display_name"`
	Table           string         `koanf:"table"`
	TimestampColumn string         `koanf:"timestamp_column"`
	Columns         []ColumnConfig `koanf:"columns"`
}

// ColumnConfig describes a column of a dataset
type ColumnConfig struct {
	Name  string `koanf:"name"`
	Alias string `koanf:"alias"`
	Type  string `koanf:"type"`
	Kind  string `koanf:"kind"` // dimension or metric
}

// LoadOptions configures how configuration is loaded
type LoadOptions struct {
	ConfigPath string
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Datasource: DatasourceConfig{
			Dialect:      "sqlite",
			DSN:          filepath.Join(configDir(), "metrics.db"),
			MaxOpenConns: 10,
			QueryTimeout: 30 * time.Second,
		},
		Notify: NotifyConfig{
			Timeout: 5 * time.Second,
		},
	}
}

// Load loads configuration from file and environment over the defaults.
// A missing file is not an error.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")
	cfg := Default()

	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = filepath.Join(configDir(), "config.toml")
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else if opts.ConfigPath != "" {
		return nil, fmt.Errorf("config file %s: %w", configPath, err)
	}

	// ALERTQL_DATASOURCE_DSN -> datasource.dsn
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return envToKey(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// Catalog builds a schema catalog from the configured datasets.
func (c *Config) Catalog() (*schema.StaticCatalog, error) {
	catalog := schema.NewStaticCatalog()
	for _, sc := range c.Schemas {
		columns := make([]schema.Column, len(sc.Columns))
		for i, col := range sc.Columns {
			columns[i] = schema.Column{
				Name:     col.Name,
				Alias:    col.Alias,
				DataType: schema.DataType(strings.ToLower(col.Type)),
				Kind:     schema.ColumnKind(strings.ToLower(col.Kind)),
			}
		}
		s, err := schema.New(sc.Name, sc.DisplayName, sc.Table, sc.TimestampColumn, columns)
		if err != nil {
			return nil, fmt.Errorf("schema %q: %w", sc.Name, err)
		}
		catalog.Register(s)
	}
	return catalog, nil
}

// Metric returns the metric store configuration.
func (c *Config) Metric() metric.Config {
	return metric.Config{
		Dialect:      c.Datasource.Dialect,
		Driver:       c.Datasource.Driver,
		DSN:          c.Datasource.DSN,
		MaxOpenConns: c.Datasource.MaxOpenConns,
		QueryTimeout: c.Datasource.QueryTimeout,
	}
}

// configDir returns the configuration directory
func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "alertql")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".alertql"
	}
	return filepath.Join(home, ".config", "alertql")
}

// ConfigDir returns the configuration directory (exported)
func ConfigDir() string {
	return configDir()
}

// envToKey converts an environment variable suffix to a config key. The first
// underscore separates the section, e.g. DATASOURCE_MAX_OPEN_CONNS -> datasource.max_open_conns.
func envToKey(s string) string {
	s = strings.ToLower(s)
	section, rest, ok := strings.Cut(s, "_")
	if !ok {
		return s
	}
	return section + "." + rest
}
