// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package broadcast

import (
	"testing"

	"github.com/pdiddy/docmark/pkg/types"
)

func rec(id string, status types.Status, percent int) types.TaskRecord {
	return types.TaskRecord{ID: id, Status: status, ProgressPercent: percent}
}

func TestPublishDeliversToTaskSubscribers(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	sub := bus.Subscribe("t1")
	other := bus.Subscribe("t2")

	bus.Publish(rec("t1", types.StatusProcessing, 40))

	got := <-sub.Updates()
	if got.ID != "t1" || got.Status != types.StatusProcessing || got.ProgressPercent != 40 {
		t.Fatalf("unexpected snapshot: %+v", got)
	}

	select {
	case unwanted := <-other.Updates():
		t.Fatalf("subscriber of t2 received %+v", unwanted)
	default:
	}
}

func TestMultipleObserversSameTask(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	a := bus.Subscribe("t1")
	b := bus.Subscribe("t1")
	bus.Publish(rec("t1", types.StatusCompleted, 100))

	for _, sub := range []*Subscription{a, b} {
		got := <-sub.Updates()
		if got.Status != types.StatusCompleted {
			t.Fatalf("observer missed update: %+v", got)
		}
	}
}

func TestSubscribeAllSeesEveryTask(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	all := bus.SubscribeAll()
	bus.Publish(rec("t1", types.StatusQueued, 0))
	bus.Publish(rec("t2", types.StatusProcessing, 50))

	first := <-all.Updates()
	second := <-all.Updates()
	if first.ID != "t1" || second.ID != "t2" {
		t.Fatalf("all-subscription order: %s then %s", first.ID, second.ID)
	}
}

func TestLateSubscriberGetsLastKnownStateOnce(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	terminal := rec("t1", types.StatusFailed, 10)
	terminal.ErrorDetail = "engine crashed"
	bus.Publish(terminal)

	sub := bus.Subscribe("t1")
	got := <-sub.Updates()
	if got.Status != types.StatusFailed || got.ErrorDetail != "engine crashed" {
		t.Fatalf("late subscriber snapshot: %+v", got)
	}

	select {
	case extra := <-sub.Updates():
		t.Fatalf("late subscriber received more than once: %+v", extra)
	default:
	}
}

func TestForgetStopsReplay(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	bus.Publish(rec("t1", types.StatusCompleted, 100))
	bus.Forget("t1")

	sub := bus.Subscribe("t1")
	select {
	case got := <-sub.Updates():
		t.Fatalf("received replay after Forget: %+v", got)
	default:
	}
}

func TestSlowObserverConvergesOnLatest(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	sub := bus.Subscribe("t1")
	// Overflow the buffer without draining.
	for i := 0; i <= defaultBuffer+4; i++ {
		bus.Publish(rec("t1", types.StatusProcessing, i))
	}
	bus.Publish(rec("t1", types.StatusCompleted, 100))

	// Drain everything buffered; order must be non-decreasing and the
	// terminal snapshot must be present.
	lastPercent := -1
	sawTerminal := false
	for {
		select {
		case got := <-sub.Updates():
			if got.ProgressPercent < lastPercent {
				t.Fatalf("progress regressed: %d after %d", got.ProgressPercent, lastPercent)
			}
			lastPercent = got.ProgressPercent
			if got.Status == types.StatusCompleted {
				sawTerminal = true
			}
			continue
		default:
		}
		break
	}
	if !sawTerminal {
		t.Fatal("slow observer never saw the terminal snapshot")
	}
}

func TestSnapshotsAreImmutableCopies(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	sub := bus.Subscribe("t1")
	original := types.TaskRecord{
		ID:       "t1",
		Status:   types.StatusCompleted,
		Metadata: &types.DocumentMetadata{Title: "Report"},
	}
	bus.Publish(original)

	got := <-sub.Updates()
	got.Metadata.Title = "mutated"

	late := bus.Subscribe("t1")
	replay := <-late.Updates()
	if replay.Metadata.Title != "Report" {
		t.Fatalf("observer mutation leaked into retained snapshot: %q", replay.Metadata.Title)
	}
}

func TestCancelIsIdempotentAndIsolated(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	gone := bus.Subscribe("t1")
	stays := bus.Subscribe("t1")
	gone.Cancel()
	gone.Cancel()

	// Publishing after one observer left must still reach the other.
	bus.Publish(rec("t1", types.StatusProcessing, 10))
	got := <-stays.Updates()
	if got.ProgressPercent != 10 {
		t.Fatalf("remaining observer missed update: %+v", got)
	}

	if _, open := <-gone.Updates(); open {
		t.Fatal("cancelled subscription channel still open")
	}
}

func TestCloseClosesSubscriptions(t *testing.T) {
	bus := NewBus(nil)
	sub := bus.Subscribe("t1")
	all := bus.SubscribeAll()
	bus.Close()

	if _, open := <-sub.Updates(); open {
		t.Fatal("task subscription open after Close")
	}
	if _, open := <-all.Updates(); open {
		t.Fatal("all subscription open after Close")
	}

	// Publish after Close must be a no-op, not a panic.
	bus.Publish(rec("t1", types.StatusCompleted, 100))
}
