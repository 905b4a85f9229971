package runner

import (
	"sync"
	"time"
)

// RunStats aggregates counters for one coordinator run. It is in-memory only,
// discarded when the run ends, and safe for concurrent use by all workers.
type RunStats struct {
	mu sync.Mutex

	processed         int
	succeeded         int
	transientFailures int
	terminalFailures  int
	notificationsSent int

	// workerErrors counts failures per worker name.
	workerErrors map[string]int
}

// NewRunStats creates an empty RunStats.
func NewRunStats() *RunStats {
	return &RunStats{workerErrors: make(map[string]int)}
}

// RecordSuccess counts one successfully processed account.
func (s *RunStats) RecordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed++
	s.succeeded++
}

// RecordTransientFailure counts one transient failure for the named worker.
func (s *RunStats) RecordTransientFailure(worker string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed++
	s.transientFailures++
	s.workerErrors[worker]++
}

// RecordTerminalFailure counts one account-terminal failure.
func (s *RunStats) RecordTerminalFailure(worker string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed++
	s.terminalFailures++
	s.workerErrors[worker]++
}

// RecordNotification counts one delivered notification.
func (s *RunStats) RecordNotification() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notificationsSent++
}

// StatsSummary is an immutable copy of the counters for logging.
type StatsSummary struct {
	Processed         int
	Succeeded         int
	TransientFailures int
	TerminalFailures  int
	NotificationsSent int
	WorkerErrors      map[string]int
}

// Summary returns a copy of the current counters.
func (s *RunStats) Summary() StatsSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	errs := make(map[string]int, len(s.workerErrors))
	for k, v := range s.workerErrors {
		errs[k] = v
	}
	return StatsSummary{
		Processed:         s.processed,
		Succeeded:         s.succeeded,
		TransientFailures: s.transientFailures,
		TerminalFailures:  s.terminalFailures,
		NotificationsSent: s.notificationsSent,
		WorkerErrors:      errs,
	}
}

// RunContext carries the identity and shared state of one run. It is created
// by the coordinator on entry and handed to every worker, never stored
// globally, so runs stay independently testable.
type RunContext struct {
	RunID     string
	StartedAt time.Time
	Stats     *RunStats
}
