package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls buffering and the drop policy.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events instead of blocking when the buffer is full.
	// Event types listed in Critical always wait for space.
	DropIfFull bool
	Critical   []string
	// OnDrop, if set, is called once per dropped event with its type.
	OnDrop func(eventType string)
}

// Dispatcher forwards events to a sink from a single worker goroutine.
// A nil Dispatcher accepts and discards every call.
type Dispatcher struct {
	sink       Sink
	queue      chan Event
	stop       chan struct{}
	worker     sync.WaitGroup
	dropIfFull bool
	critical   map[string]struct{}
	onDrop     func(string)
	dropped    atomic.Uint64
	closed     atomic.Bool
	closeOnce  sync.Once
}

// NewDispatcher returns nil when cfg.Enabled is false.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}

	d := &Dispatcher{
		sink:       sink,
		queue:      make(chan Event, size),
		stop:       make(chan struct{}),
		dropIfFull: cfg.DropIfFull,
		onDrop:     cfg.OnDrop,
	}
	if len(cfg.Critical) > 0 {
		d.critical = make(map[string]struct{}, len(cfg.Critical))
		for _, t := range cfg.Critical {
			d.critical[t] = struct{}{}
		}
	}

	d.worker.Add(1)
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer d.worker.Done()
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-d.stop:
			for {
				select {
				case ev := <-d.queue:
					d.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

// deliver shields the worker from a panicking sink; the event counts as dropped.
func (d *Dispatcher) deliver(ev Event) {
	defer func() {
		if recover() != nil {
			d.drop(ev.EventType)
		}
	}()
	d.sink.Emit(context.Background(), ev)
}

// Emit queues event. Non-critical events are dropped on a full buffer when
// DropIfFull is set; otherwise Emit waits until there is space, ctx ends,
// or the dispatcher closes.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}

	if d.dropIfFull && !d.isCritical(event.EventType) {
		select {
		case d.queue <- event:
		default:
			d.drop(event.EventType)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- event:
	case <-d.stop:
	case <-ctx.Done():
		d.drop(event.EventType)
	}
}

func (d *Dispatcher) isCritical(eventType string) bool {
	_, ok := d.critical[eventType]
	return ok
}

func (d *Dispatcher) drop(eventType string) {
	d.dropped.Add(1)
	if d.onDrop != nil {
		d.onDrop(eventType)
	}
}

// Close stops intake and waits for queued events to reach the sink.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.stop)
		d.worker.Wait()
	})
}

// Dropped reports how many events never reached the sink.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
