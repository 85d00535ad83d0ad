// Package schema describes the datasets alert expressions query: their columns,
// timestamp column and backing table.
package schema

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/FrankChen021/bithon-sub017/internal/alertql"
)

// DataType is the logical type of a column.
type DataType string

const (
	TypeString   DataType = "string"
	TypeLong     DataType = "long"
	TypeDouble   DataType = "double"
	TypeBool     DataType = "bool"
	TypeDateTime DataType = "datetime"
	// TypeMap is a string to string map. Dialects without native maps store it as JSON text.
	TypeMap DataType = "map"
)

// ColumnKind tells dimensions (grouping/filtering) from metrics (aggregated).
type ColumnKind string

const (
	KindDimension ColumnKind = "dimension"
	KindMetric    ColumnKind = "metric"
)

// Column is a column of a dataset.
type Column struct {
	Name     string     `json:"name"`
	Alias    string     `json:"alias,omitempty"`
	DataType DataType   `json:"dataType"`
	Kind     ColumnKind `json:"kind"`
}

// Schema describes a dataset.
type Schema struct {
	Name            string   `json:"name"`
	DisplayName     string   `json:"displayName,omitempty"`
	Table           string   `json:"table"`
	TimestampColumn string   `json:"timestampColumn"`
	Columns         []Column `json:"columns"`

	byName  map[string]*Column
	byAlias map[string]*Column
}

var ErrSchemaNotFound = errors.New("schema not found")

// New validates and indexes a schema. Metric columns must be numeric. When two
// columns share an alias, the first registered column owns it.
func New(name, displayName, table, timestampColumn string, columns []Column) (*Schema, error) {
	if name == "" {
		return nil, fmt.Errorf("schema name is required")
	}
	if timestampColumn == "" {
		timestampColumn = "timestamp"
	}
	if table == "" {
		table = strings.ReplaceAll(name, "-", "_")
	}
	if displayName == "" {
		displayName = name
	}

	s := &Schema{
		Name:            name,
		DisplayName:     displayName,
		Table:           table,
		TimestampColumn: timestampColumn,
		Columns:         make([]Column, len(columns)),
		byName:          make(map[string]*Column, len(columns)),
		byAlias:         make(map[string]*Column),
	}
	copy(s.Columns, columns)

	for i := range s.Columns {
		c := &s.Columns[i]
		if c.Name == "" {
			return nil, fmt.Errorf("schema %s: column %d has no name", name, i)
		}
		if c.Kind == "" {
			c.Kind = KindDimension
		}
		if c.DataType == "" {
			c.DataType = TypeString
		}
		if c.Kind == KindMetric && (c.DataType == TypeString || c.DataType == TypeMap) {
			return nil, fmt.Errorf("schema %s: metric column %s must not be of type %s", name, c.Name, c.DataType)
		}
		if _, exists := s.byName[c.Name]; exists {
			return nil, fmt.Errorf("schema %s: duplicate column %s", name, c.Name)
		}
		s.byName[c.Name] = c
		if c.Alias != "" {
			if _, taken := s.byAlias[c.Alias]; !taken {
				s.byAlias[c.Alias] = c
			}
		}
	}
	return s, nil
}

// Column looks a column up by name, then by alias.
func (s *Schema) Column(nameOrAlias string) (*Column, bool) {
	if c, ok := s.byName[nameOrAlias]; ok {
		return c, true
	}
	c, ok := s.byAlias[nameOrAlias]
	return c, ok
}

// ColumnName resolves an alias to the physical column name. Unknown names are
// returned unchanged.
func (s *Schema) ColumnName(nameOrAlias string) string {
	if c, ok := s.Column(nameOrAlias); ok {
		return c.Name
	}
	return nameOrAlias
}

// ValidateAlert checks that every column referenced by the alert exists in the schema.
func (s *Schema) ValidateAlert(a *alertql.AlertExpression) error {
	if a.From != s.Name {
		return fmt.Errorf("alert %s reads dataset %s, not %s", a.ID, a.From, s.Name)
	}

	field, ok := s.Column(a.Select.Field)
	if !ok {
		return fmt.Errorf("metric %s not found in %s", a.Select.Field, s.Name)
	}
	if field.Kind != KindMetric && a.Select.Aggregator != alertql.AggCount {
		return fmt.Errorf("%s of %s is not a metric and can only be counted", a.Select.Field, s.Name)
	}

	var err error
	alertql.Walk(a.Filter, func(e alertql.Expression) bool {
		if err != nil {
			return false
		}
		switch n := e.(type) {
		case *alertql.Identifier:
			if _, ok := s.Column(n.Name); !ok {
				err = fmt.Errorf("column %s not found in %s", n.Name, s.Name)
			}
		case *alertql.MapAccess:
			c, ok := s.Column(n.Map.Name)
			switch {
			case !ok:
				err = fmt.Errorf("column %s not found in %s", n.Map.Name, s.Name)
			case c.DataType != TypeMap:
				err = fmt.Errorf("column %s of %s is not a map", n.Map.Name, s.Name)
			}
			return false
		}
		return true
	})
	if err != nil {
		return err
	}

	for _, name := range a.GroupBy {
		c, ok := s.Column(name)
		if !ok {
			return fmt.Errorf("group by column %s not found in %s", name, s.Name)
		}
		if c.Kind != KindDimension {
			return fmt.Errorf("group by column %s of %s is not a dimension", name, s.Name)
		}
	}
	return nil
}

// Catalog supplies dataset schemas.
type Catalog interface {
	GetSchema(name string) (*Schema, error)
}

// StaticCatalog is an in-memory Catalog, usually filled from configuration.
type StaticCatalog struct {
	mu      sync.RWMutex
	schemas map[string]*Schema
}

func NewStaticCatalog(schemas ...*Schema) *StaticCatalog {
	c := &StaticCatalog{schemas: make(map[string]*Schema, len(schemas))}
	for _, s := range schemas {
		c.Register(s)
	}
	return c
}

// Register adds or replaces a schema.
func (c *StaticCatalog) Register(s *Schema) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.schemas[s.Name] = s
}

func (c *StaticCatalog) GetSchema(name string) (*Schema, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.schemas[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSchemaNotFound, name)
	}
	return s, nil
}

// Names returns the registered schema names.
func (c *StaticCatalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.schemas))
	for name := range c.schemas {
		names = append(names, name)
	}
	return names
}
