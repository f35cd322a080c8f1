package processor

import (
	"sync/atomic"
	"time"
)

type FulfillmentMetrics struct {
	runsCompleted   int64
	runsFailed      int64
	runsSkipped     int64
	groupsCreated   int64
	groupsFailed    int64
	messagesSent    int64
	totalDurationNs int64
	activeRuns      int64
	lastResetNs     int64
}

func NewFulfillmentMetrics() *FulfillmentMetrics {
	return &FulfillmentMetrics{
		lastResetNs: time.Now().UnixNano(),
	}
}

func (m *FulfillmentMetrics) RunStarted() {
	atomic.AddInt64(&m.activeRuns, 1)
}

func (m *FulfillmentMetrics) RunFinished(completed bool, duration time.Duration) {
	atomic.AddInt64(&m.activeRuns, -1)
	atomic.AddInt64(&m.totalDurationNs, int64(duration))
	if completed {
		atomic.AddInt64(&m.runsCompleted, 1)
	} else {
		atomic.AddInt64(&m.runsFailed, 1)
	}
}

func (m *FulfillmentMetrics) RunSkipped() {
	atomic.AddInt64(&m.runsSkipped, 1)
}

func (m *FulfillmentMetrics) GroupCreated(messages int) {
	atomic.AddInt64(&m.groupsCreated, 1)
	atomic.AddInt64(&m.messagesSent, int64(messages))
}

func (m *FulfillmentMetrics) GroupFailed() {
	atomic.AddInt64(&m.groupsFailed, 1)
}

func (m *FulfillmentMetrics) GetStats() map[string]interface{} {
	completed := atomic.LoadInt64(&m.runsCompleted)
	failed := atomic.LoadInt64(&m.runsFailed)
	durationNs := atomic.LoadInt64(&m.totalDurationNs)
	lastResetNs := atomic.LoadInt64(&m.lastResetNs)

	elapsed := time.Since(time.Unix(0, lastResetNs)).Seconds()

	avgDuration := time.Duration(0)
	if finished := completed + failed; finished > 0 {
		avgDuration = time.Duration(durationNs / finished)
	}

	return map[string]interface{}{
		"runs_completed":  completed,
		"runs_failed":     failed,
		"runs_skipped":    atomic.LoadInt64(&m.runsSkipped),
		"runs_active":     atomic.LoadInt64(&m.activeRuns),
		"groups_created":  atomic.LoadInt64(&m.groupsCreated),
		"groups_failed":   atomic.LoadInt64(&m.groupsFailed),
		"messages_sent":   atomic.LoadInt64(&m.messagesSent),
		"avg_duration_ms": avgDuration.Milliseconds(),
		"uptime_seconds":  elapsed,
	}
}

func (m *FulfillmentMetrics) Reset() {
	atomic.StoreInt64(&m.runsCompleted, 0)
	atomic.StoreInt64(&m.runsFailed, 0)
	atomic.StoreInt64(&m.runsSkipped, 0)
	atomic.StoreInt64(&m.groupsCreated, 0)
	atomic.StoreInt64(&m.groupsFailed, 0)
	atomic.StoreInt64(&m.messagesSent, 0)
	atomic.StoreInt64(&m.totalDurationNs, 0)
	atomic.StoreInt64(&m.lastResetNs, time.Now().UnixNano())
}
