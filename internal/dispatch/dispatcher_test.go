package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/dwell.report/internal/vision"
	"github.com/banshee-data/dwell.report/internal/vision/behavior"
)

// fakeChannel records deliveries and can be made to fail every call.
type fakeChannel struct {
	name string
	err  error

	mu     sync.Mutex
	events []behavior.Event
}

func (c *fakeChannel) Name() string { return c.name }

func (c *fakeChannel) Deliver(_ context.Context, ev behavior.Event, _ []byte) error {
	if c.err != nil {
		return c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *fakeChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func testEvent(id string) behavior.Event {
	return behavior.Event{
		EventID:    id,
		Type:       behavior.EventStatic,
		Timestamp:  time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		TrackingID: 42,
		ClassName:  "person",
		Position:   vision.Position{X: 100, Y: 220},
		Confidence: 0.87,
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached within 2s")
}

func TestDispatcherDeliversToAllChannels(t *testing.T) {
	a := &fakeChannel{name: "a"}
	b := &fakeChannel{name: "b"}
	d := NewDispatcher(Config{QueueSize: 8}, []Channel{a, b})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	d.Enqueue(testEvent("evt-1"))
	waitFor(t, func() bool { return a.count() == 1 && b.count() == 1 })
	cancel()
	<-done

	stats := d.Stats()
	if stats.Enqueued != 1 || stats.Dropped != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.Delivered["a"] != 1 || stats.Delivered["b"] != 1 {
		t.Errorf("delivered = %v", stats.Delivered)
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	// No Run worker, so the queue never empties.
	d := NewDispatcher(Config{QueueSize: 2}, nil)

	d.Enqueue(testEvent("evt-1"))
	d.Enqueue(testEvent("evt-2"))
	d.Enqueue(testEvent("evt-3"))

	stats := d.Stats()
	if stats.Enqueued != 2 {
		t.Errorf("Enqueued = %d, want 2", stats.Enqueued)
	}
	if stats.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", stats.Dropped)
	}
	if stats.QueueDepth != 2 {
		t.Errorf("QueueDepth = %d, want 2", stats.QueueDepth)
	}
}

func TestDispatcherChannelFailuresAreIndependent(t *testing.T) {
	bad := &fakeChannel{name: "webhook", err: errors.New("connection refused")}
	good := &fakeChannel{name: "mqtt"}
	d := NewDispatcher(Config{QueueSize: 8}, []Channel{bad, good})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	d.Enqueue(testEvent("evt-1"))
	waitFor(t, func() bool { return good.count() == 1 })
	cancel()
	<-done

	stats := d.Stats()
	if stats.Failed["webhook"] != 1 {
		t.Errorf("Failed = %v", stats.Failed)
	}
	if stats.Delivered["mqtt"] != 1 {
		t.Errorf("Delivered = %v", stats.Delivered)
	}
}

func TestDispatcherDrainsQueueOnShutdown(t *testing.T) {
	sink := &fakeChannel{name: "sink"}
	d := NewDispatcher(Config{QueueSize: 8}, []Channel{sink})

	for _, id := range []string{"evt-1", "evt-2", "evt-3"} {
		d.Enqueue(testEvent(id))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Run(ctx)

	if sink.count() != 3 {
		t.Fatalf("delivered %d events during drain, want 3", sink.count())
	}
	if got := sink.events[2].EventID; got != "evt-3" {
		t.Errorf("last drained event = %s", got)
	}
}

func TestDispatcherDefaultQueueSize(t *testing.T) {
	d := NewDispatcher(Config{}, nil)
	if cap(d.queue) != 1000 {
		t.Errorf("default queue capacity = %d, want 1000", cap(d.queue))
	}
}
