package monitor

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"
	"time"
)

// ExecutionRecord is one observed plugin execution.
type ExecutionRecord struct {
	PluginID      string        `json:"pluginId"`
	ExecutionTime time.Duration `json:"executionTime"`
	Success       bool          `json:"success"`
	Timestamp     time.Time     `json:"timestamp"`
}

// PluginMetrics are the per-plugin aggregates, including the usage
// statistics the launcher UI shows on the plugin manager page.
type PluginMetrics struct {
	PluginID      string  `json:"pluginId"`
	UsageCount    int64   `json:"usageCount"`
	Failures      int64   `json:"failures"`
	FailureRate   float64 `json:"failureRate"`
	AverageTimeMS int64   `json:"averageExecutionTime"`
	LastTimeMS    int64   `json:"lastExecutionTime"`
	LastUsed      int64   `json:"lastUsed"`
}

type pluginStats struct {
	executions int64
	failures   int64
	totalTime  time.Duration
	lastTime   time.Duration
	lastUsed   time.Time
}

// Monitor keeps an append-only log of execution records plus running
// per-plugin aggregates. It is written only by the orchestrator, after
// every dispatched attempt.
type Monitor struct {
	mu      sync.RWMutex
	records []ExecutionRecord
	stats   map[string]*pluginStats
	metrics *Metrics
}

// New creates a monitor. metrics may be nil when Prometheus exposition is
// not wanted (tests).
func New(metrics *Metrics) *Monitor {
	return &Monitor{
		stats:   make(map[string]*pluginStats),
		metrics: metrics,
	}
}

// Record appends one execution observation.
func (m *Monitor) Record(pluginID string, executionTime time.Duration, success bool) {
	m.mu.Lock()
	m.records = append(m.records, ExecutionRecord{
		PluginID:      pluginID,
		ExecutionTime: executionTime,
		Success:       success,
		Timestamp:     time.Now(),
	})

	st, ok := m.stats[pluginID]
	if !ok {
		st = &pluginStats{}
		m.stats[pluginID] = st
	}
	st.executions++
	if !success {
		st.failures++
	}
	st.totalTime += executionTime
	st.lastTime = executionTime
	st.lastUsed = time.Now()
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.observeExecution(pluginID, executionTime, success)
	}
}

// Stats returns the aggregates for one plugin.
func (m *Monitor) Stats(pluginID string) (PluginMetrics, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.stats[pluginID]
	if !ok {
		return PluginMetrics{}, false
	}
	return m.aggregate(pluginID, st), true
}

// All returns aggregates for every plugin, sorted by ID.
func (m *Monitor) All() []PluginMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]PluginMetrics, 0, len(m.stats))
	for id, st := range m.stats {
		out = append(out, m.aggregate(id, st))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PluginID < out[j].PluginID })
	return out
}

// Records returns a copy of the raw execution log.
func (m *Monitor) Records() []ExecutionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ExecutionRecord{}, m.records...)
}

// SetActiveWorkers publishes the current in-flight unit count.
func (m *Monitor) SetActiveWorkers(n int) {
	if m.metrics != nil {
		m.metrics.WorkersActive.Set(float64(n))
	}
}

// MarkDisabled counts a circuit-breaker trip.
func (m *Monitor) MarkDisabled(pluginID string) {
	if m.metrics != nil {
		m.metrics.PluginsDisabled.Inc()
	}
}

// Report renders a human-readable summary of every plugin's behavior.
func (m *Monitor) Report() string {
	all := m.All()

	var b strings.Builder
	b.WriteString("Plugin Execution Report\n")
	b.WriteString("=======================\n")
	if len(all) == 0 {
		b.WriteString("no executions recorded\n")
		return b.String()
	}

	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PLUGIN\tRUNS\tFAILED\tRATE\tAVG\tLAST")
	for _, pm := range all {
		fmt.Fprintf(w, "%s\t%d\t%d\t%.1f%%\t%dms\t%dms\n",
			pm.PluginID, pm.UsageCount, pm.Failures, pm.FailureRate*100,
			pm.AverageTimeMS, pm.LastTimeMS)
	}
	w.Flush()
	return b.String()
}

func (m *Monitor) aggregate(pluginID string, st *pluginStats) PluginMetrics {
	pm := PluginMetrics{
		PluginID:   pluginID,
		UsageCount: st.executions,
		Failures:   st.failures,
		LastTimeMS: st.lastTime.Milliseconds(),
	}
	if st.executions > 0 {
		pm.FailureRate = float64(st.failures) / float64(st.executions)
		pm.AverageTimeMS = (st.totalTime / time.Duration(st.executions)).Milliseconds()
	}
	if !st.lastUsed.IsZero() {
		pm.LastUsed = st.lastUsed.UnixMilli()
	}
	return pm
}
