package evaluator

import (
	"fmt"
	"io"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// Metrics records evaluation counters and latencies. A nil *Metrics records nothing.
type Metrics struct {
	set *metrics.Set
}

func NewMetrics() *Metrics {
	return &Metrics{set: metrics.NewSet()}
}

func (m *Metrics) observe(mode string, s Status, begin time.Time) {
	if m == nil {
		return
	}
	m.set.GetOrCreateCounter(fmt.Sprintf(`alertql_evaluations_total{mode=%q,status=%q}`, mode, s)).Inc()
	m.set.GetOrCreateHistogram(fmt.Sprintf(`alertql_evaluation_duration_seconds{mode=%q}`, mode)).UpdateDuration(begin)
}

func (m *Metrics) failed(mode string) {
	if m == nil {
		return
	}
	m.set.GetOrCreateCounter(fmt.Sprintf(`alertql_evaluation_errors_total{mode=%q}`, mode)).Inc()
}

// Evaluations returns the number of evaluations with the given mode and status.
func (m *Metrics) Evaluations(mode string, s Status) uint64 {
	if m == nil {
		return 0
	}
	return m.set.GetOrCreateCounter(fmt.Sprintf(`alertql_evaluations_total{mode=%q,status=%q}`, mode, s)).Get()
}

// WritePrometheus writes the metrics in Prometheus text format.
func (m *Metrics) WritePrometheus(w io.Writer) {
	if m == nil {
		return
	}
	m.set.WritePrometheus(w)
}
