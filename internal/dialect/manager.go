package dialect

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Factory constructs a dialect. Factories must be side-effect free.
type Factory func() Dialect

// aliases maps database type names to dialect keys.
var aliases = map[string]string{
	"postgres": "postgresql",
	"pg":       "postgresql",
	"sqlite3":  "sqlite",
	"ch":       "clickhouse",
}

// Manager owns the dialect instances of an application. Each dialect is
// constructed at most once, on first use, and cached for the manager's lifetime.
type Manager struct {
	mu        sync.RWMutex
	factories map[string]Factory
	dialects  map[string]Dialect
	logger    *slog.Logger
}

// NewManager creates a manager with the built-in dialects registered.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		factories: make(map[string]Factory),
		dialects:  make(map[string]Dialect),
		logger:    logger.With("component", "dialect_manager"),
	}
	m.Register("clickhouse", NewClickHouse)
	m.Register("mysql", NewMySQL)
	m.Register("postgresql", NewPostgreSQL)
	m.Register("h2", NewH2)
	m.Register("sqlite", NewSQLite)
	return m
}

// Register adds a factory under a lower-case name, replacing any previous one.
func (m *Manager) Register(name string, factory Factory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(name)
	m.factories[key] = factory
	delete(m.dialects, key)
}

// Key normalizes a dialect name or database type name, e.g. POSTGRES => postgresql.
func Key(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := aliases[key]; ok {
		return canonical
	}
	return key
}

// Get returns the cached dialect for name, constructing it on first use.
func (m *Manager) Get(name string) (Dialect, error) {
	key := Key(name)

	m.mu.RLock()
	d, ok := m.dialects[key]
	m.mu.RUnlock()
	if ok {
		return d, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Another goroutine may have constructed it while we waited for the lock.
	if d, ok := m.dialects[key]; ok {
		return d, nil
	}

	factory, ok := m.factories[key]
	if !ok {
		return nil, fmt.Errorf("%w for %q", ErrNoDialect, name)
	}
	d = factory()
	m.dialects[key] = d
	m.logger.Debug("dialect constructed", "dialect", key)
	return d, nil
}

// Names returns the registered dialect names in sorted order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.factories))
	for name := range m.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
