package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/lendmatch/backend/internal/domain"
	"github.com/lendmatch/backend/internal/metrics"
)

// subscriberBuffer is how many events a slow subscriber may lag behind
const subscriberBuffer = 8

// Broadcaster fans catalog change events out to live subscribers, one
// channel each. Publishing never blocks; a subscriber whose buffer is full
// misses the event.
type Broadcaster struct {
	logger *zap.Logger

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]chan domain.ChangeEvent
}

// NewBroadcaster creates an empty broadcaster
func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		logger: logger,
		subs:   make(map[uint64]chan domain.ChangeEvent),
	}
}

// Subscribe registers a new listener. The returned cancel func closes the
// channel and must be called once the caller stops reading.
func (b *Broadcaster) Subscribe() (<-chan domain.ChangeEvent, func()) {
	ch := make(chan domain.ChangeEvent, subscriberBuffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	metrics.EventSubscribers.Set(float64(len(b.subs)))
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			metrics.EventSubscribers.Set(float64(len(b.subs)))
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Notify publishes event to every subscriber
func (b *Broadcaster) Notify(_ context.Context, event domain.ChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.logger.Warn("Dropping event for slow subscriber", zap.Uint64("subscriber", id))
		}
	}
}

// Count returns the number of live subscribers
func (b *Broadcaster) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
