package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics aggregates counters for scheduler jobs and gateway sends. It is a
// process-local collector read by the status log line, not an export surface.
type Metrics struct {
	mu sync.Mutex

	runTotal   atomic.Int64
	runFailed  atomic.Int64
	sendsTotal atomic.Int64

	jobMetrics map[string]*JobMetrics
}

// JobMetrics holds per-job counters.
type JobMetrics struct {
	runCount      atomic.Int64
	totalDuration atomic.Int64 // milliseconds
	errorCount    atomic.Int64
	processed     atomic.Int64
}

// NewMetrics creates a metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		jobMetrics: make(map[string]*JobMetrics),
	}
}

var globalMetrics = NewMetrics()

// GlobalMetrics returns the process-wide metrics instance.
func GlobalMetrics() *Metrics {
	return globalMetrics
}

// RecordRun records one job run.
func (m *Metrics) RecordRun(job string) {
	m.runTotal.Add(1)
	m.getJobMetrics(job).runCount.Add(1)
}

// RecordFailure records a failed job run.
func (m *Metrics) RecordFailure(job string) {
	m.runFailed.Add(1)
	m.getJobMetrics(job).errorCount.Add(1)
}

// RecordDuration records a job run duration.
func (m *Metrics) RecordDuration(job string, duration time.Duration) {
	m.getJobMetrics(job).totalDuration.Add(duration.Milliseconds())
}

// RecordProcessed adds to the job's processed-item counter.
func (m *Metrics) RecordProcessed(job string, n int) {
	m.getJobMetrics(job).processed.Add(int64(n))
}

// RecordSend records one gateway send.
func (m *Metrics) RecordSend() {
	m.sendsTotal.Add(1)
}

// GetRunTotal returns the total number of job runs.
func (m *Metrics) GetRunTotal() int64 {
	return m.runTotal.Load()
}

// GetRunFailed returns the total number of failed job runs.
func (m *Metrics) GetRunFailed() int64 {
	return m.runFailed.Load()
}

// GetSendsTotal returns the total number of gateway sends.
func (m *Metrics) GetSendsTotal() int64 {
	return m.sendsTotal.Load()
}

func (m *Metrics) getJobMetrics(job string) *JobMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	jm, ok := m.jobMetrics[job]
	if !ok {
		jm = &JobMetrics{}
		m.jobMetrics[job] = jm
	}
	return jm
}

// GetAverageDuration returns the average run duration in milliseconds.
func (m *Metrics) GetAverageDuration(job string) int64 {
	jm := m.getJobMetrics(job)
	count := jm.runCount.Load()
	if count == 0 {
		return 0
	}
	return jm.totalDuration.Load() / count
}

// Reset clears all metrics. Useful for tests.
func (m *Metrics) Reset() {
	m.runTotal.Store(0)
	m.runFailed.Store(0)
	m.sendsTotal.Store(0)

	m.mu.Lock()
	m.jobMetrics = make(map[string]*JobMetrics)
	m.mu.Unlock()
}

// Snapshot returns a point-in-time view of all counters.
func (m *Metrics) Snapshot() *MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	jobSnapshots := make(map[string]*JobMetricsSnapshot, len(m.jobMetrics))
	for job, jm := range m.jobMetrics {
		count := jm.runCount.Load()
		var avg int64
		if count > 0 {
			avg = jm.totalDuration.Load() / count
		}
		jobSnapshots[job] = &JobMetricsSnapshot{
			RunCount:        count,
			TotalDuration:   jm.totalDuration.Load(),
			ErrorCount:      jm.errorCount.Load(),
			Processed:       jm.processed.Load(),
			AverageDuration: avg,
		}
	}

	return &MetricsSnapshot{
		RunTotal:   m.runTotal.Load(),
		RunFailed:  m.runFailed.Load(),
		SendsTotal: m.sendsTotal.Load(),
		JobMetrics: jobSnapshots,
	}
}

// MetricsSnapshot is a point-in-time snapshot of the collector.
type MetricsSnapshot struct {
	RunTotal   int64
	RunFailed  int64
	SendsTotal int64
	JobMetrics map[string]*JobMetricsSnapshot
}

// JobMetricsSnapshot holds per-job snapshot values.
type JobMetricsSnapshot struct {
	RunCount        int64
	TotalDuration   int64
	ErrorCount      int64
	Processed       int64
	AverageDuration int64
}

// SuccessRate returns the success rate as a percentage (0-100).
func (s *MetricsSnapshot) SuccessRate() float64 {
	if s.RunTotal == 0 {
		return 100.0
	}
	return float64(s.RunTotal-s.RunFailed) / float64(s.RunTotal) * 100.0
}
