// Package clickhouse validates SQL generated for ClickHouse before it is sent to the server.
package clickhouse

import (
	"errors"
	"fmt"
	"strings"

	clickhouseparser "github.com/AfterShip/clickhouse-sql-parser/parser"
)

// ErrInvalidQuery is returned for statements the metric store must not run.
var ErrInvalidQuery = errors.New("invalid query")

// Validator checks that generated SQL is a single SELECT over one table.
type Validator struct {
	tableName string
}

// NewValidator creates a validator for queries over tableName, which may be
// qualified as db.table. An empty table name accepts any table.
func NewValidator(tableName string) *Validator {
	return &Validator{tableName: tableName}
}

// Validate parses the SQL and checks the statement type and table reference.
func (v *Validator) Validate(rawSQL string) error {
	_, _, err := v.parse(rawSQL)
	return err
}

// EnsureLimit validates the SQL and adds or replaces its LIMIT clause.
func (v *Validator) EnsureLimit(rawSQL string, limit int) (string, error) {
	stmt, selectQuery, err := v.parse(rawSQL)
	if err != nil {
		return "", err
	}
	if limit > 0 {
		selectQuery.Limit = &clickhouseparser.LimitClause{
			Limit: &clickhouseparser.NumberLiteral{Literal: fmt.Sprintf("%d", limit)},
		}
	}
	return restoreQuotes(stmt.String()), nil
}

// Handle escaped quotes
const placeholder = "___ESCAPED_QUOTE___"

func restoreQuotes(sql string) string {
	return strings.ReplaceAll(sql, placeholder, "''")
}

func (v *Validator) parse(rawSQL string) (clickhouseparser.Expr, *clickhouseparser.SelectQuery, error) {
	processedSQL := strings.ReplaceAll(rawSQL, "''", placeholder)

	parser := clickhouseparser.NewParser(processedSQL)
	stmts, err := parser.ParseStmts()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid SQL syntax: %w", err)
	}

	if len(stmts) == 0 {
		return nil, nil, fmt.Errorf("no SQL statements found: %w", ErrInvalidQuery)
	}
	if len(stmts) > 1 {
		return nil, nil, fmt.Errorf("multiple SQL statements are not supported: %w", ErrInvalidQuery)
	}

	stmt := stmts[0]
	selectQuery, ok := stmt.(*clickhouseparser.SelectQuery)
	if !ok {
		return nil, nil, fmt.Errorf("only SELECT queries are supported: %w", ErrInvalidQuery)
	}
	if v.tableName != "" {
		if err := v.validateTableReference(selectQuery); err != nil {
			return nil, nil, err
		}
	}
	return stmt, selectQuery, nil
}

// validateTableReference checks if the FROM clause references the expected table.
func (v *Validator) validateTableReference(stmt *clickhouseparser.SelectQuery) error {
	if stmt.From == nil || stmt.From.Expr == nil {
		return fmt.Errorf("missing FROM clause: %w", ErrInvalidQuery)
	}

	expectedDB, expectedTable := "", unquote(v.tableName)
	if parts := strings.Split(expectedTable, "."); len(parts) == 2 {
		expectedDB, expectedTable = parts[0], parts[1]
	}

	var tableID *clickhouseparser.TableIdentifier

	switch expr := stmt.From.Expr.(type) {
	case *clickhouseparser.JoinTableExpr:
		if expr.Table == nil || expr.Table.Expr == nil {
			return fmt.Errorf("invalid table expression in FROM clause: %w", ErrInvalidQuery)
		}
		switch tableExpr := expr.Table.Expr.(type) {
		case *clickhouseparser.TableIdentifier:
			tableID = tableExpr
		case *clickhouseparser.AliasExpr:
			if tid, ok := tableExpr.Expr.(*clickhouseparser.TableIdentifier); ok {
				tableID = tid
			}
		}
	case *clickhouseparser.TableExpr:
		if expr.Expr == nil {
			return fmt.Errorf("invalid table expression in FROM clause: %w", ErrInvalidQuery)
		}
		if tid, ok := expr.Expr.(*clickhouseparser.TableIdentifier); ok {
			tableID = tid
		}
	case *clickhouseparser.JoinExpr:
		return fmt.Errorf("JOIN clauses are not allowed: %w", ErrInvalidQuery)
	default:
		return fmt.Errorf("unsupported FROM clause type %T: %w", expr, ErrInvalidQuery)
	}

	if tableID == nil || tableID.Table == nil {
		return fmt.Errorf("could not identify table in FROM clause: %w", ErrInvalidQuery)
	}

	tableName := unquote(tableID.Table.String())
	if tableID.Database != nil {
		dbName := unquote(tableID.Database.String())
		if (expectedDB != "" && dbName != expectedDB) || tableName != expectedTable {
			return fmt.Errorf("invalid table reference '%s.%s' (expected '%s'): %w",
				dbName, tableName, v.tableName, ErrInvalidQuery)
		}
		return nil
	}
	if tableName != expectedTable {
		return fmt.Errorf("invalid table reference '%s' (expected '%s'): %w",
			tableName, v.tableName, ErrInvalidQuery)
	}
	return nil
}

func unquote(name string) string {
	return strings.NewReplacer("`", "", `"`, "").Replace(name)
}
