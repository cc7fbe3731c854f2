package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Config sets the dispatcher's buffering and shutdown policy.
//
// DropIfFull decides what a full buffer costs: audit trails here are
// best-effort observability for a session core, so the default posture is to
// drop and count rather than stall a sign-in. OnDrop, when set, fires once
// per dropped event so the caller can surface drops in its own counters.
type Config struct {
	Enabled      bool
	BufferSize   int
	DropIfFull   bool
	DrainTimeout time.Duration
	OnDrop       func()
}

// Dispatcher forwards audit events to a sink from a single worker
// goroutine, decoupling sink latency from the session operations that emit.
type Dispatcher struct {
	cfg  Config
	sink Sink

	ch   chan Event
	quit chan struct{}
	done chan struct{}

	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

const defaultDrainTimeout = 2 * time.Second

// NewDispatcher starts the worker. A disabled config yields nil, and every
// method on a nil dispatcher is a no-op, so callers never branch on the
// audit setting.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:  cfg,
		sink: sink,
		ch:   make(chan Event, cfg.BufferSize),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}

	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for {
		select {
		case event := <-d.ch:
			d.sink.Emit(context.Background(), event)
		case <-d.quit:
			d.drain()
			return
		}
	}
}

// drain flushes events still queued at shutdown, giving the sink at most
// DrainTimeout in total. Events left behind at the deadline are counted as
// dropped, not silently lost.
func (d *Dispatcher) drain() {
	deadline := time.NewTimer(d.cfg.DrainTimeout)
	defer deadline.Stop()

	for {
		select {
		case <-deadline.C:
			for {
				select {
				case <-d.ch:
					d.drop()
				default:
					return
				}
			}
		default:
		}

		select {
		case event := <-d.ch:
			d.sink.Emit(context.Background(), event)
		default:
			return
		}
	}
}

// Emit hands an event to the worker. After Close, or on a full buffer with
// DropIfFull set, the event is discarded; without DropIfFull the caller
// blocks until there is room or its context ends.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- event:
		default:
			d.drop()
		}
		return
	}

	select {
	case d.ch <- event:
	case <-ctx.Done():
		d.drop()
	case <-d.quit:
	}
}

func (d *Dispatcher) drop() {
	d.dropped.Add(1)
	if d.cfg.OnDrop != nil {
		d.cfg.OnDrop()
	}
}

// Close stops accepting events, flushes the queue within the drain timeout,
// and waits for the worker to exit. Safe to call repeatedly.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.quit)
		<-d.done
	})
}

// Dropped reports how many events were discarded since the dispatcher
// started.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
