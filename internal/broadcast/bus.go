// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package broadcast delivers task record snapshots to subscribed
// observers. Observers subscribe to one task or to every task; delivery is
// decoupled from the orchestrator so a slow or vanished observer can never
// stall dispatch. See docs/ARCHITECTURE § Progress.
package broadcast

import (
	"log/slog"
	"sync"

	"github.com/pdiddy/docmark/pkg/types"
)

// defaultBuffer is the per-subscription channel capacity. When a slow
// observer falls behind, the oldest buffered snapshot is dropped in favor
// of the newest, so the observer always converges on the latest state and
// never observes a status regression.
const defaultBuffer = 16

// Subscription is one observer's view of task updates. Receive from
// Updates; call Cancel when done.
type Subscription struct {
	bus    *Bus
	taskID string // empty for all-task subscriptions
	ch     chan types.TaskRecord
	closed bool
}

// Updates returns the snapshot channel. It is closed by Cancel and by
// Bus.Close.
func (s *Subscription) Updates() <-chan types.TaskRecord {
	return s.ch
}

// Cancel removes the subscription and closes its channel. Safe to call
// more than once.
func (s *Subscription) Cancel() {
	s.bus.cancel(s)
}

// Bus fans task record snapshots out to subscribers. The zero value is not
// usable; construct with NewBus.
type Bus struct {
	mu     sync.Mutex
	byTask map[string]map[*Subscription]struct{}
	all    map[*Subscription]struct{}
	last   map[string]types.TaskRecord
	closed bool
	logger *slog.Logger
}

// NewBus creates an empty broadcaster.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		byTask: make(map[string]map[*Subscription]struct{}),
		all:    make(map[*Subscription]struct{}),
		last:   make(map[string]types.TaskRecord),
		logger: logger.With("component", "broadcast"),
	}
}

// Subscribe registers interest in one task. If the task has already
// published state — a terminal one included — the last known snapshot is
// delivered immediately, exactly once, before any newer updates.
func (b *Bus) Subscribe(taskID string) *Subscription {
	sub := &Subscription{bus: b, taskID: taskID, ch: make(chan types.TaskRecord, defaultBuffer)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.closed = true
		close(sub.ch)
		return sub
	}
	set, ok := b.byTask[taskID]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.byTask[taskID] = set
	}
	set[sub] = struct{}{}
	if rec, ok := b.last[taskID]; ok {
		sub.ch <- rec.Clone()
	}
	return sub
}

// SubscribeAll registers interest in every task, current and future.
// Last-known snapshots of already-published tasks are not replayed; batch
// dashboards combine SubscribeAll with a store read for the starting view.
func (b *Bus) SubscribeAll() *Subscription {
	sub := &Subscription{bus: b, ch: make(chan types.TaskRecord, defaultBuffer)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.closed = true
		close(sub.ch)
		return sub
	}
	b.all[sub] = struct{}{}
	return sub
}

// Publish delivers an immutable snapshot of rec to every current observer
// of rec.ID and to all-task observers, and retains it for late
// subscribers. Publish never blocks: a full observer buffer loses its
// oldest entry, not the new one.
func (b *Bus) Publish(rec types.TaskRecord) {
	snapshot := rec.Clone()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.last[rec.ID] = snapshot

	for sub := range b.byTask[rec.ID] {
		b.send(sub, snapshot)
	}
	for sub := range b.all {
		b.send(sub, snapshot)
	}
}

// send enqueues without blocking, evicting the oldest buffered snapshot
// when the observer is full. Called with b.mu held, so sends for one task
// keep their publish order.
func (b *Bus) send(sub *Subscription, rec types.TaskRecord) {
	select {
	case sub.ch <- rec.Clone():
		return
	default:
	}
	select {
	case dropped := <-sub.ch:
		b.logger.Debug("observer lagging, dropped snapshot",
			"task_id", dropped.ID, "status", dropped.Status)
	default:
	}
	select {
	case sub.ch <- rec.Clone():
	default:
	}
}

// Forget drops the retained snapshot for a task. Subscribers created after
// Forget receive nothing until the task publishes again.
func (b *Bus) Forget(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.last, taskID)
}

// Close cancels every subscription and rejects further publishes.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, set := range b.byTask {
		for sub := range set {
			sub.closed = true
			close(sub.ch)
		}
		delete(b.byTask, id)
	}
	for sub := range b.all {
		sub.closed = true
		close(sub.ch)
	}
	b.all = make(map[*Subscription]struct{})
}

func (b *Bus) cancel(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub.closed {
		return
	}
	sub.closed = true
	if sub.taskID != "" {
		if set, ok := b.byTask[sub.taskID]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(b.byTask, sub.taskID)
			}
		}
	} else {
		delete(b.all, sub)
	}
	close(sub.ch)
}
