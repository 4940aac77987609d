// Package eventbus publishes job lifecycle and progress notifications.
// Delivery to live subscribers is best-effort and at-most-once; events for a
// single job are delivered in strict emission order, with no cross-job
// guarantee. A durable log, when configured, additionally records every
// event for historical replay by job ID.
package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/ankala/maestro/pkg/api"
)

// DefaultBufferSize is the per-subscriber channel capacity. A subscriber
// that falls further behind than this starts losing events.
const DefaultBufferSize = 64

// Log is an append-only history of published events.
type Log interface {
	Append(ctx context.Context, ev api.Event) error
	List(ctx context.Context, jobID string) ([]api.Event, error)
}

// NoopLog discards all events.
type NoopLog struct{}

func (NoopLog) Append(ctx context.Context, ev api.Event) error { return nil }
func (NoopLog) List(ctx context.Context, jobID string) ([]api.Event, error) {
	return nil, nil
}

// Bus fans published events out to current subscribers. A late subscriber
// sees only events emitted after subscription.
type Bus struct {
	mu     sync.Mutex
	subs   map[uint64]*subscription
	nextID uint64
	log    Log
}

// NewBus creates a Bus backed by the given history log. A nil log disables
// history.
func NewBus(log Log) *Bus {
	if log == nil {
		log = NoopLog{}
	}
	return &Bus{
		subs: make(map[uint64]*subscription),
		log:  log,
	}
}

// Publish delivers the event to every matching subscriber and appends it to
// the history log. The send never blocks: a subscriber whose buffer is full
// misses the event.
func (b *Bus) Publish(ev api.Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	// History is best-effort too; a log write failure must not stall the
	// publisher.
	_ = b.log.Append(context.Background(), ev)

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		if !sub.filter.Matches(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// Subscribe registers a new subscriber with the given filter.
func (b *Bus) Subscribe(filter api.EventFilter) api.Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &subscription{
		bus:    b,
		id:     b.nextID,
		filter: filter,
		ch:     make(chan api.Event, DefaultBufferSize),
	}
	b.subs[sub.id] = sub
	return sub
}

// History replays a job's events from the log, oldest first.
func (b *Bus) History(ctx context.Context, jobID string) ([]api.Event, error) {
	return b.log.List(ctx, jobID)
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

type subscription struct {
	bus    *Bus
	id     uint64
	filter api.EventFilter
	ch     chan api.Event
	once   sync.Once
}

func (s *subscription) Events() <-chan api.Event {
	return s.ch
}

// Close unregisters the subscription and closes its channel. Safe to call
// more than once.
func (s *subscription) Close() {
	s.once.Do(func() {
		s.bus.remove(s.id)
		close(s.ch)
	})
}
