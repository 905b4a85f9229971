package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"questward/internal/types"
)

// ============================================================
// Mock Implementations
// ============================================================

// mockClock returns a fixed instant.
type mockClock struct {
	now time.Time
}

func (c *mockClock) Now() time.Time {
	if c.now.IsZero() {
		return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	}
	return c.now
}

// mockTransport scripts per-account outcomes. Each PerformTask call for an
// account consumes the next scripted error; nil means success.
type mockTransport struct {
	name string

	mu      sync.Mutex
	scripts map[string][]error
	calls   []string // account IDs in call order
	message string
}

func newMockTransport(name string) *mockTransport {
	return &mockTransport{name: name, scripts: make(map[string][]error)}
}

func (m *mockTransport) script(accountID string, outcomes ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[accountID] = append(m.scripts[accountID], outcomes...)
}

func (m *mockTransport) Name() string { return m.name }

func (m *mockTransport) PerformTask(_ context.Context, account *types.Account, kind types.TaskKind) (*types.TaskResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, account.ID)

	queue := m.scripts[account.ID]
	if len(queue) > 0 {
		next := queue[0]
		m.scripts[account.ID] = queue[1:]
		if next != nil {
			return nil, next
		}
	}
	return &types.TaskResult{
		AccountID: account.ID,
		UserID:    account.UserID,
		Kind:      kind,
		Message:   m.message,
	}, nil
}

func (m *mockTransport) FetchTelemetry(context.Context, *types.Account) (*types.Snapshot, error) {
	return nil, errors.New("not implemented")
}

func (m *mockTransport) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// mockAccountRepo records feature flag and timestamp mutations.
type mockAccountRepo struct {
	mu           sync.Mutex
	eligible     []*types.Account
	listErr      error
	listCalls    int
	disabled     []string // "accountID/kind"
	lastRunTimes map[string]time.Time
	listGate     chan struct{} // when set, ListEligible blocks until closed
}

func newMockAccountRepo(accounts ...*types.Account) *mockAccountRepo {
	return &mockAccountRepo{eligible: accounts, lastRunTimes: make(map[string]time.Time)}
}

func (m *mockAccountRepo) ListEligible(_ context.Context, _ types.TaskKind) ([]*types.Account, error) {
	m.mu.Lock()
	m.listCalls++
	gate := m.listGate
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.eligible, nil
}

func (m *mockAccountRepo) DisableFeature(_ context.Context, accountID string, kind types.TaskKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disabled = append(m.disabled, accountID+"/"+string(kind))
	return nil
}

func (m *mockAccountRepo) UpdateLastRunTime(_ context.Context, accountID string, _ types.TaskKind, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastRunTimes[accountID] = at
	return nil
}

// mockDispatcher records deliveries and can simulate delivery failure.
type mockDispatcher struct {
	mu            sync.Mutex
	results       []*types.TaskResult
	disabled      []string
	deliveryFails bool
}

func (m *mockDispatcher) DispatchResult(_ context.Context, result *types.TaskResult) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deliveryFails {
		return false
	}
	m.results = append(m.results, result)
	return true
}

func (m *mockDispatcher) DispatchDisabled(_ context.Context, account *types.Account, kind types.TaskKind, _ error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deliveryFails {
		return false
	}
	m.disabled = append(m.disabled, account.ID+"/"+string(kind))
	return true
}

func (m *mockDispatcher) disabledCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.disabled)
}

// mockProbe answers per-endpoint health.
type mockProbe struct {
	unhealthy map[string]bool
}

func (m *mockProbe) IsHealthy(_ context.Context, endpoint string) bool {
	return !m.unhealthy[endpoint]
}

func transientErr() error {
	return types.NewAppError(types.ErrCodeUpstreamUnavailable, "upstream timeout", nil)
}

func terminalErr() error {
	return types.NewAppError(types.ErrCodeAccountCredentialInvalid, "credential rejected", nil)
}

func noSleep(time.Duration) {}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 4}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestWorker(t *testing.T, transport *mockTransport, repo *mockAccountRepo, dispatcher *mockDispatcher, shared *TaskQueue, ceiling int) (*Worker, *RunContext) {
	t.Helper()
	run := &RunContext{RunID: "run-test", StartedAt: time.Now(), Stats: NewRunStats()}
	worker := NewWorker(WorkerConfig{
		Kind:           types.TaskCheckIn,
		Transport:      transport,
		Shared:         shared,
		Accounts:       repo,
		Dispatcher:     dispatcher,
		Run:            run,
		FailureCeiling: ceiling,
		ItemDelay:      time.Nanosecond,
		SleepFn:        noSleep,
		Clock:          &mockClock{},
		Logger:         quietLogger(),
	})
	return worker, run
}

// ============================================================
// Tests
// ============================================================

func TestWorkerSuccessRecordsRunAndNotifies(t *testing.T) {
	transport := newMockTransport("direct")
	transport.message = "Checked in: 60 primogems."
	repo := newMockAccountRepo()
	dispatcher := &mockDispatcher{}

	q := NewTaskQueue(1)
	q.Push(testAccount("a"))
	worker, run := newTestWorker(t, transport, repo, dispatcher, q, 10)

	go func() {
		<-q.Drained()
		q.Close()
	}()
	if err := worker.Run(context.Background()); err != nil {
		t.Fatalf("worker returned error on clean drain: %v", err)
	}

	if _, ok := repo.lastRunTimes["a"]; !ok {
		t.Error("last run time was not recorded")
	}
	if len(dispatcher.results) != 1 {
		t.Fatalf("expected 1 result notification, got %d", len(dispatcher.results))
	}
	summary := run.Stats.Summary()
	if summary.Succeeded != 1 || summary.NotificationsSent != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func TestWorkerEmptyMessageSkipsNotification(t *testing.T) {
	transport := newMockTransport("direct")
	repo := newMockAccountRepo()
	dispatcher := &mockDispatcher{}

	q := NewTaskQueue(1)
	q.Push(testAccount("a"))
	worker, run := newTestWorker(t, transport, repo, dispatcher, q, 10)

	go func() {
		<-q.Drained()
		q.Close()
	}()
	if err := worker.Run(context.Background()); err != nil {
		t.Fatalf("worker returned error: %v", err)
	}

	if len(dispatcher.results) != 0 {
		t.Errorf("expected no notifications for empty message, got %d", len(dispatcher.results))
	}
	if run.Stats.Summary().Succeeded != 1 {
		t.Error("success was not recorded")
	}
}

func TestWorkerTerminalFailureDisablesFeatureOnce(t *testing.T) {
	transport := newMockTransport("direct")
	transport.script("bad", terminalErr())
	repo := newMockAccountRepo()
	dispatcher := &mockDispatcher{}

	q := NewTaskQueue(3)
	q.Push(testAccount("a"))
	q.Push(testAccount("bad"))
	q.Push(testAccount("c"))
	worker, run := newTestWorker(t, transport, repo, dispatcher, q, 10)

	go func() {
		<-q.Drained()
		q.Close()
	}()
	if err := worker.Run(context.Background()); err != nil {
		t.Fatalf("worker returned error: %v", err)
	}

	if len(repo.disabled) != 1 || repo.disabled[0] != "bad/check_in" {
		t.Errorf("expected exactly one disable for bad/check_in, got %v", repo.disabled)
	}
	if dispatcher.disabledCount() != 1 {
		t.Errorf("expected one disabled notice, got %d", dispatcher.disabledCount())
	}
	summary := run.Stats.Summary()
	if summary.Succeeded != 2 || summary.TerminalFailures != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	// The terminal account is never re-enqueued.
	if transport.callCount() != 3 {
		t.Errorf("expected 3 transport calls, got %d", transport.callCount())
	}
}

func TestWorkerTransientFailureReEnqueues(t *testing.T) {
	transport := newMockTransport("direct")
	transport.script("flaky", transientErr()) // fails once, then succeeds
	repo := newMockAccountRepo()
	dispatcher := &mockDispatcher{}

	q := NewTaskQueue(1)
	q.Push(testAccount("flaky"))
	worker, run := newTestWorker(t, transport, repo, dispatcher, q, 10)

	go func() {
		<-q.Drained()
		q.Close()
	}()
	if err := worker.Run(context.Background()); err != nil {
		t.Fatalf("worker returned error: %v", err)
	}

	if transport.callCount() != 2 {
		t.Fatalf("expected retry to reach the transport, got %d calls", transport.callCount())
	}
	summary := run.Stats.Summary()
	if summary.TransientFailures != 1 || summary.Succeeded != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func TestWorkerStopsAtFailureCeiling(t *testing.T) {
	transport := newMockTransport("direct")
	for i := 0; i < 20; i++ {
		transport.script("doomed", transientErr())
	}
	repo := newMockAccountRepo()
	dispatcher := &mockDispatcher{}

	q := NewTaskQueue(1)
	q.Push(testAccount("doomed"))
	worker, run := newTestWorker(t, transport, repo, dispatcher, q, 10)

	err := worker.Run(context.Background())
	if err == nil {
		t.Fatal("expected ceiling error, got nil")
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeUpstreamUnavailable {
		t.Fatalf("expected upstream_unavailable ceiling error, got %v", err)
	}
	if transport.callCount() != 10 {
		t.Errorf("expected exactly 10 attempts before the ceiling, got %d", transport.callCount())
	}
	if run.Stats.Summary().TransientFailures != 10 {
		t.Errorf("expected 10 transient failures recorded, got %d", run.Stats.Summary().TransientFailures)
	}
}

func TestWorkerSuccessResetsConsecutiveCounter(t *testing.T) {
	transport := newMockTransport("direct")
	// Alternate failure and success; with ceiling 3 the worker must survive.
	transport.script("a", transientErr())
	transport.script("b", transientErr())
	repo := newMockAccountRepo()
	dispatcher := &mockDispatcher{}

	q := NewTaskQueue(2)
	q.Push(testAccount("a"))
	q.Push(testAccount("b"))
	worker, _ := newTestWorker(t, transport, repo, dispatcher, q, 3)

	go func() {
		<-q.Drained()
		q.Close()
	}()
	if err := worker.Run(context.Background()); err != nil {
		t.Fatalf("interleaved successes should reset the counter, got %v", err)
	}
}

func TestWorkerAbortsOnFailedProbe(t *testing.T) {
	transport := newMockTransport("gw-a")
	repo := newMockAccountRepo()
	dispatcher := &mockDispatcher{}

	q := NewTaskQueue(1)
	q.Push(testAccount("a"))
	run := &RunContext{RunID: "run-test", StartedAt: time.Now(), Stats: NewRunStats()}
	worker := NewWorker(WorkerConfig{
		Kind:       types.TaskCheckIn,
		Transport:  transport,
		Endpoint:   "https://gw-a.example.com",
		Probe:      &mockProbe{unhealthy: map[string]bool{"https://gw-a.example.com": true}},
		Shared:     q,
		Accounts:   repo,
		Dispatcher: dispatcher,
		Run:        run,
		SleepFn:    noSleep,
		Logger:     quietLogger(),
	})

	err := worker.Run(context.Background())
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeGatewayUnhealthy {
		t.Fatalf("expected gateway_unhealthy error, got %v", err)
	}
	if transport.callCount() != 0 {
		t.Error("aborted worker must not touch the queue")
	}
}

func TestWorkerDrainsPrivateBeforeShared(t *testing.T) {
	transport := newMockTransport("direct")
	repo := newMockAccountRepo()
	dispatcher := &mockDispatcher{}

	private := NewTaskQueue(1)
	private.Push(testAccount("mainland"))
	shared := NewTaskQueue(1)
	shared.Push(testAccount("global"))

	run := &RunContext{RunID: "run-test", StartedAt: time.Now(), Stats: NewRunStats()}
	worker := NewWorker(WorkerConfig{
		Kind:       types.TaskCheckIn,
		Transport:  transport,
		Private:    private,
		Shared:     shared,
		Accounts:   repo,
		Dispatcher: dispatcher,
		Run:        run,
		ItemDelay:  time.Nanosecond,
		SleepFn:    noSleep,
		Clock:      &mockClock{},
		Logger:     quietLogger(),
	})

	go func() {
		<-private.Drained()
		private.Close()
		<-shared.Drained()
		shared.Close()
	}()
	if err := worker.Run(context.Background()); err != nil {
		t.Fatalf("worker returned error: %v", err)
	}

	if len(transport.calls) != 2 || transport.calls[0] != "mainland" || transport.calls[1] != "global" {
		t.Errorf("expected private queue drained first, got order %v", transport.calls)
	}
}
