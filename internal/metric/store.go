package metric

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/FrankChen021/bithon-sub017/internal/clickhouse"
	"github.com/FrankChen021/bithon-sub017/internal/dialect"
	"github.com/FrankChen021/bithon-sub017/internal/schema"
	"github.com/FrankChen021/bithon-sub017/internal/sqlgen"
	"github.com/FrankChen021/bithon-sub017/internal/util"
)

// Config selects and configures the database behind a SQLStore.
type Config struct {
	// Dialect is the SQL dialect name, e.g. clickhouse, mysql, postgresql or sqlite.
	Dialect string
	// Driver picks between drivers of one dialect; "pgx" (default) or "postgres" for PostgreSQL.
	Driver       string
	DSN          string
	MaxOpenConns int
	QueryTimeout time.Duration
}

// SQLStore implements QueryAPI by generating SQL for its dialect and running it
// through database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect dialect.Dialect
	builder *sqlgen.QueryBuilder
	catalog schema.Catalog
	timeout time.Duration
	logger  *slog.Logger
}

var _ QueryAPI = (*SQLStore)(nil)

// Open connects to the configured database. The connection is established
// lazily; call Ping to verify it.
func Open(cfg Config, dialects *dialect.Manager, catalog schema.Catalog, logger *slog.Logger) (*SQLStore, error) {
	d, err := dialects.Get(cfg.Dialect)
	if err != nil {
		return nil, err
	}
	db, err := openDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", d.Name(), err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	store := NewSQLStore(db, d, catalog, logger)
	store.timeout = cfg.QueryTimeout
	return store, nil
}

// NewSQLStore wraps an open database.
func NewSQLStore(db *sql.DB, d dialect.Dialect, catalog schema.Catalog, logger *slog.Logger) *SQLStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLStore{
		db:      db,
		dialect: d,
		builder: sqlgen.NewQueryBuilder(d),
		catalog: catalog,
		logger:  logger.With("component", "metric_store", "dialect", d.Name()),
	}
}

// DB returns the underlying database handle.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// GroupBy aggregates the requested fields per group over the request range.
func (s *SQLStore) GroupBy(ctx context.Context, req Request) ([]Row, error) {
	q, err := s.query(req)
	if err != nil {
		return nil, err
	}
	stmt, err := s.builder.GroupBy(q)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, q, stmt)
}

// TimeSeries aggregates the requested fields per group and time bucket.
func (s *SQLStore) TimeSeries(ctx context.Context, req Request, interval time.Duration) ([]Row, error) {
	q, err := s.query(req)
	if err != nil {
		return nil, err
	}
	stmt, err := s.builder.TimeSeries(q, interval)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, q, stmt)
}

// Statement returns the SQL a request runs as, a time series when interval is positive.
func (s *SQLStore) Statement(req Request, interval time.Duration) (string, error) {
	q, err := s.query(req)
	if err != nil {
		return "", err
	}
	if interval > 0 {
		return s.builder.TimeSeries(q, interval)
	}
	return s.builder.GroupBy(q)
}

func (s *SQLStore) query(req Request) (sqlgen.Query, error) {
	sc, err := s.catalog.GetSchema(req.Dataset)
	if err != nil {
		return sqlgen.Query{}, err
	}
	for _, f := range req.Fields {
		if _, ok := sc.Column(f.Field); !ok {
			return sqlgen.Query{}, fmt.Errorf("dataset %s has no column %s", sc.Name, f.Field)
		}
	}
	for _, c := range req.Collect {
		if _, ok := sc.Column(c); !ok {
			return sqlgen.Query{}, fmt.Errorf("dataset %s has no column %s", sc.Name, c)
		}
	}
	return sqlgen.Query{
		Schema:  sc,
		Filter:  req.Filter,
		Start:   req.Start,
		End:     req.End,
		GroupBy: req.GroupBy,
		Metrics: req.Fields,
		Collect: req.Collect,
		Limit:   req.Limit,
	}, nil
}

func (s *SQLStore) run(ctx context.Context, q sqlgen.Query, stmt string) ([]Row, error) {
	if s.dialect.Name() == "clickhouse" {
		if err := clickhouse.NewValidator(q.Schema.Table).Validate(stmt); err != nil {
			return nil, fmt.Errorf("generated query failed validation: %w", err)
		}
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, stmt)
	if err != nil {
		s.logger.Error("query failed", "error", err, "sql", stmt)
		return nil, err
	}
	defer rows.Close()

	result, err := scanRows(rows, q)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("query complete",
		"dataset", q.Schema.Name,
		"rows", len(result),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func scanRows(rows *sql.Rows, q sqlgen.Query) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	metrics := make(map[string]bool, len(q.Metrics))
	for _, m := range q.Metrics {
		if m.Alias != "" {
			metrics[m.Alias] = true
		} else {
			metrics[m.Field] = true
		}
	}

	var result []Row
	for rows.Next() {
		values := make([]any, len(columns))
		scanDest := make([]any, len(columns))
		for i := range values {
			scanDest[i] = &values[i]
		}
		if err := rows.Scan(scanDest...); err != nil {
			return nil, err
		}

		row := make(Row, len(columns))
		for i, name := range columns {
			switch {
			case metrics[name]:
				v, err := util.Numeric(values[i])
				if err != nil {
					return nil, fmt.Errorf("column %s: %w", name, err)
				}
				row[name] = v
			case name == sqlgen.TimestampAlias:
				v, err := util.Numeric(values[i])
				if err != nil {
					return nil, fmt.Errorf("column %s: %w", name, err)
				}
				if v != nil {
					row[name] = time.Unix(int64(*v), 0).UTC()
				}
			default:
				row[name] = util.Label(values[i])
			}
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
