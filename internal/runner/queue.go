// Package runner implements the per-task-kind worker pool: a shared bounded
// queue of account references drained concurrently by one worker per proxy
// gateway plus one direct worker, coordinated by a RunCoordinator that
// guarantees at most one run per task kind at a time.
package runner

import (
	"context"
	"sync"

	"questward/internal/types"
)

// TaskQueue is the single work queue shared by all workers of one run.
//
// Capacity is fixed at seed time. Because every re-enqueue is preceded by a
// pop, the number of buffered items never exceeds the seeded count, so sends
// never block. Each item carries a pending mark; the queue is drained when
// every pushed item has been marked done.
type TaskQueue struct {
	ch      chan *types.Account
	pending sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewTaskQueue creates a queue with room for the given number of items.
func NewTaskQueue(capacity int) *TaskQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &TaskQueue{
		ch: make(chan *types.Account, capacity),
	}
}

// Push enqueues an account and marks it pending. Pushing to a closed queue is
// a no-op returning false; this only happens when a worker re-enqueues after
// the coordinator has already observed a full drain, which the pending mark
// ordering prevents in normal operation.
func (q *TaskQueue) Push(account *types.Account) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.pending.Add(1)
	q.ch <- account
	return true
}

// Pop removes one account from the queue. It blocks until an item is
// available, the queue is closed, or the context is cancelled. The second
// return value is false when no more items will be delivered.
func (q *TaskQueue) Pop(ctx context.Context) (*types.Account, bool) {
	select {
	case account, ok := <-q.ch:
		if !ok {
			return nil, false
		}
		return account, true
	case <-ctx.Done():
		return nil, false
	}
}

// Done marks one previously pushed item as fully processed. A re-enqueued
// account counts as a new item: workers Push the retry before calling Done on
// the original so the queue is never observed drained mid-retry.
func (q *TaskQueue) Done() {
	q.pending.Done()
}

// Drained returns a channel that is closed once every pushed item has been
// marked done.
func (q *TaskQueue) Drained() <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		q.pending.Wait()
		close(ch)
	}()
	return ch
}

// Close stops the queue. Blocked Pop calls return immediately with ok=false,
// and items still buffered are released as unprocessed so a drain wait never
// hangs on work no consumer will take. Close is idempotent.
func (q *TaskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
	for range q.ch {
		q.pending.Done()
	}
}
