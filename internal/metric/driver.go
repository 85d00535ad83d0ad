package metric

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/FrankChen021/bithon-sub017/internal/dialect"
)

// openDB opens a database/sql handle with the driver matching the dialect.
func openDB(cfg Config) (*sql.DB, error) {
	switch dialect.Key(cfg.Dialect) {
	case "clickhouse":
		options, err := clickhouse.ParseDSN(cfg.DSN)
		if err != nil {
			return nil, err
		}
		if cfg.QueryTimeout > 0 {
			if options.Settings == nil {
				options.Settings = clickhouse.Settings{}
			}
			options.Settings["max_execution_time"] = int(cfg.QueryTimeout.Seconds())
		}
		return clickhouse.OpenDB(options), nil

	case "mysql":
		mc, err := mysql.ParseDSN(cfg.DSN)
		if err != nil {
			return nil, err
		}
		mc.ParseTime = true
		connector, err := mysql.NewConnector(mc)
		if err != nil {
			return nil, err
		}
		return sql.OpenDB(connector), nil

	case "postgresql":
		switch strings.ToLower(cfg.Driver) {
		case "", "pgx":
			pc, err := pgx.ParseConfig(cfg.DSN)
			if err != nil {
				return nil, err
			}
			return stdlib.OpenDB(*pc), nil
		case "postgres", "pq":
			connector, err := pq.NewConnector(cfg.DSN)
			if err != nil {
				return nil, err
			}
			return sql.OpenDB(connector), nil
		default:
			return nil, fmt.Errorf("unknown postgresql driver %q", cfg.Driver)
		}

	case "sqlite":
		db, err := sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, err
		}
		if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
			db.Close()
			return nil, fmt.Errorf("error setting pragma: %w", err)
		}
		return db, nil

	default:
		return nil, fmt.Errorf("no database driver for dialect %q", cfg.Dialect)
	}
}
