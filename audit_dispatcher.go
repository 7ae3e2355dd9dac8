package goSession

import (
	"context"
	"sync"
	"sync/atomic"
)

// auditDispatcher hands audit events to the sink on one goroutine, in the
// order they were queued. Session boundaries call Flush so the events of an
// ended session reach the sink before the next session starts.
type auditDispatcher struct {
	dropIfFull bool
	sink       AuditSink

	events  chan AuditEvent
	flushes chan chan struct{}
	stop    chan struct{}
	stopped chan struct{}

	dropped   atomic.Uint64
	closing   atomic.Bool
	closeOnce sync.Once
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &auditDispatcher{
		dropIfFull: cfg.DropIfFull,
		sink:       sink,
		events:     make(chan AuditEvent, size),
		flushes:    make(chan chan struct{}),
		stop:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *auditDispatcher) loop() {
	defer close(d.stopped)

	for {
		select {
		case event := <-d.events:
			d.sink.Emit(context.Background(), event)
		case reply := <-d.flushes:
			d.drain()
			close(reply)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

// drain delivers whatever is queued right now.
func (d *auditDispatcher) drain() {
	for {
		select {
		case event := <-d.events:
			d.sink.Emit(context.Background(), event)
		default:
			return
		}
	}
}

// Emit queues event. With dropIfFull a full buffer drops it and counts the
// drop; otherwise Emit waits for room until ctx ends or the dispatcher
// closes.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil || d.closing.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.dropIfFull {
		select {
		case d.events <- event:
		case <-d.stop:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.events <- event:
	case <-ctx.Done():
	case <-d.stop:
	}
}

// Flush waits until every event queued before the call has reached the sink.
func (d *auditDispatcher) Flush(ctx context.Context) error {
	if d == nil {
		return nil
	}
	reply := make(chan struct{})
	select {
	case d.flushes <- reply:
	case <-d.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events and delivers the ones already queued.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closing.Store(true)
		close(d.stop)
		<-d.stopped
	})
}

func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
