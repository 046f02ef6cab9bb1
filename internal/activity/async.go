package activity

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Async moves Record off the request path. When the buffer is full the
// event is dropped. Drops are logged at most once per dropLogEvery.
type Async struct {
	next    Sink
	log     *slog.Logger
	timeout time.Duration
	ch      chan Event
	wg      sync.WaitGroup

	dropped atomic.Int64
	dropLog rate.Sometimes

	mu     sync.RWMutex
	closed bool
}

const dropLogEvery = 10 * time.Second

func NewAsync(next Sink, log *slog.Logger, buffer int) *Async {
	if buffer <= 0 {
		buffer = 256
	}
	a := &Async{
		next:    next,
		log:     log,
		timeout: 5 * time.Second,
		ch:      make(chan Event, buffer),
		dropLog: rate.Sometimes{First: 1, Interval: dropLogEvery},
	}
	a.wg.Add(1)
	go a.run()
	return a
}

func (a *Async) run() {
	defer a.wg.Done()
	for e := range a.ch {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.next.Record(ctx, e); err != nil {
			a.log.Warn("activity_record_failed", "type", e.Type, "partition", e.Partition, "error", err)
		}
		cancel()
	}
}

func (a *Async) Record(_ context.Context, e Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil
	}
	select {
	case a.ch <- e:
	default:
		total := a.dropped.Add(1)
		a.dropLog.Do(func() {
			a.log.Warn("activity_dropped", "type", e.Type, "partition", e.Partition, "dropped_total", total)
		})
	}
	return nil
}

// Close stops accepting events and waits for the buffer to drain.
func (a *Async) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.ch)
	a.mu.Unlock()
	a.wg.Wait()
}
