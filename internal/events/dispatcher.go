package events

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/ksuid"
)

// TypeDropped is the summary event the dispatcher emits after it had to
// discard events. Its metadata carries the count per discarded type.
const TypeDropped = "events_dropped"

// Config controls dispatcher buffering.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull makes Emit discard instead of wait when the buffer is full.
	DropIfFull bool
	// Critical event types always wait for buffer space, even with
	// DropIfFull set. They are only lost when the caller's context ends.
	Critical []string
}

// Dispatcher forwards events to a sink from one goroutine. Discarded events
// are not silent: the next delivery is followed by a TypeDropped summary.
// A nil *Dispatcher is valid and discards everything.
type Dispatcher struct {
	sink       Sink
	dropIfFull bool
	critical   map[string]bool

	// mu guards closed and the close of queue. Emit holds the read lock
	// while sending so Close never closes a channel mid-send.
	mu      sync.RWMutex
	closed  bool
	queue   chan Event
	stopped chan struct{}

	total   atomic.Uint64
	pending sync.Map // event type -> *atomic.Uint64, drops not yet summarised
}

// NewDispatcher starts a dispatcher, or returns nil when cfg is disabled.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		critical:   make(map[string]bool, len(cfg.Critical)),
		queue:      make(chan Event, cfg.BufferSize),
		stopped:    make(chan struct{}),
	}
	for _, t := range cfg.Critical {
		d.critical[t] = true
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.stopped)
	for ev := range d.queue {
		d.deliver(ev)
		d.summarise(ev.Timestamp)
	}
	d.summarise(time.Now().UTC())
}

// deliver hands ev to the sink. A panicking sink loses that event only.
func (d *Dispatcher) deliver(ev Event) {
	defer func() {
		if recover() != nil {
			d.total.Add(1)
		}
	}()
	d.sink.Emit(context.Background(), ev)
}

// summarise emits one TypeDropped event covering every drop recorded since
// the previous summary.
func (d *Dispatcher) summarise(at time.Time) {
	counts := make(map[string]string)
	d.pending.Range(func(key, value any) bool {
		if n := value.(*atomic.Uint64).Swap(0); n > 0 {
			counts[key.(string)] = strconv.FormatUint(n, 10)
		}
		return true
	})
	if len(counts) == 0 {
		return
	}
	d.deliver(Event{
		ID:        ksuid.New().String(),
		Timestamp: at,
		Type:      TypeDropped,
		Metadata:  counts,
	})
}

func (d *Dispatcher) drop(eventType string) {
	d.total.Add(1)
	n, _ := d.pending.LoadOrStore(eventType, new(atomic.Uint64))
	n.(*atomic.Uint64).Add(1)
}

// Emit queues ev, assigning an id and timestamp when missing. Events
// emitted after Close are ignored.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if ev.ID == "" {
		ev.ID = ksuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if d.dropIfFull && !d.critical[ev.Type] {
		select {
		case d.queue <- ev:
		default:
			d.drop(ev.Type)
		}
		return
	}

	select {
	case d.queue <- ev:
	case <-ctx.Done():
		d.drop(ev.Type)
	}
}

// Close stops accepting events, delivers everything already queued and
// waits for the sink to finish.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.stopped
}

// Dropped reports how many events were discarded in total.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.total.Load()
}
