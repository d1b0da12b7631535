// Package dispatch fans behavior events out to external sinks. The
// dispatcher decouples the frame loop from network latency with a bounded
// queue: Enqueue never blocks, and when the queue is full the newest event
// is dropped and counted rather than stalling analysis.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/dwell.report/internal/monitoring"
	"github.com/banshee-data/dwell.report/internal/vision/behavior"
)

// drainGrace bounds how long Run keeps delivering already-queued events
// after its context is cancelled.
const drainGrace = 5 * time.Second

// Channel delivers one encoded event to an external sink. Name is used as
// the key in delivery stats and logs.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, ev behavior.Event, payload []byte) error
}

// Config sizes the dispatcher.
type Config struct {
	// QueueSize caps how many events can wait for delivery. Zero means 1000.
	QueueSize int
}

// Stats is a point-in-time snapshot of dispatcher counters.
type Stats struct {
	Enqueued   int64            `json:"enqueued"`
	Dropped    int64            `json:"dropped"`
	Delivered  map[string]int64 `json:"delivered"`
	Failed     map[string]int64 `json:"failed"`
	QueueDepth int              `json:"queue_depth"`
}

// Dispatcher owns the delivery queue and worker. Construct with
// NewDispatcher, start the worker with Run, and feed it by registering
// Enqueue as a behavior listener.
type Dispatcher struct {
	queue    chan behavior.Event
	channels []Channel
	logf     func(format string, v ...interface{})

	mu        sync.Mutex
	enqueued  int64
	dropped   int64
	delivered map[string]int64
	failed    map[string]int64
}

func NewDispatcher(cfg Config, channels []Channel) *Dispatcher {
	size := cfg.QueueSize
	if size <= 0 {
		size = 1000
	}
	return &Dispatcher{
		queue:     make(chan behavior.Event, size),
		channels:  channels,
		logf:      monitoring.Scoped("dispatch"),
		delivered: make(map[string]int64),
		failed:    make(map[string]int64),
	}
}

// Enqueue hands ev to the delivery worker without blocking. When the queue
// is full the event is dropped and the drop counted. The signature matches
// behavior.Listener so it can be registered directly on the engine.
func (d *Dispatcher) Enqueue(ev behavior.Event) {
	select {
	case d.queue <- ev:
		d.mu.Lock()
		d.enqueued++
		d.mu.Unlock()
	default:
		d.mu.Lock()
		d.dropped++
		dropped := d.dropped
		d.mu.Unlock()
		d.logf("Queue full, dropped %s event %s (%d dropped total)", ev.Type, ev.EventID, dropped)
	}
}

// Run delivers queued events until ctx is cancelled, then drains whatever
// is already queued under a short grace deadline. It is the only goroutine
// that reads the queue.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			grace, cancel := context.WithTimeout(context.Background(), drainGrace)
			defer cancel()
			for {
				select {
				case ev := <-d.queue:
					d.dispatch(grace, ev)
				default:
					return
				}
			}
		case ev := <-d.queue:
			d.dispatch(ctx, ev)
		}
	}
}

// dispatch sends ev to every channel. Channels fail independently; one
// sink being down never starves the others.
func (d *Dispatcher) dispatch(ctx context.Context, ev behavior.Event) {
	payload, err := encodeEvent(ev)
	if err != nil {
		d.logf("Failed to encode event %s: %v", ev.EventID, err)
		return
	}
	for _, ch := range d.channels {
		if err := ch.Deliver(ctx, ev, payload); err != nil {
			d.mu.Lock()
			d.failed[ch.Name()]++
			d.mu.Unlock()
			d.logf("Delivery to %s failed for %s event %s: %v", ch.Name(), ev.Type, ev.EventID, err)
			continue
		}
		d.mu.Lock()
		d.delivered[ch.Name()]++
		d.mu.Unlock()
	}
}

// Stats snapshots the dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	delivered := make(map[string]int64, len(d.delivered))
	for name, n := range d.delivered {
		delivered[name] = n
	}
	failed := make(map[string]int64, len(d.failed))
	for name, n := range d.failed {
		failed[name] = n
	}
	return Stats{
		Enqueued:   d.enqueued,
		Dropped:    d.dropped,
		Delivered:  delivered,
		Failed:     failed,
		QueueDepth: len(d.queue),
	}
}
