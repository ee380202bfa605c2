package streaming

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"compliance-lab/pkg/logger"
)

// EventBus distributes record events to in-process subscribers and, when
// NATS is configured, to other instances sharing the same store.
type EventBus struct {
	nats   *NATSPublisher
	origin string
	logger *logger.Logger

	mu          sync.RWMutex
	subscribers map[string]chan *RecordEvent
	nextID      int
}

// NewEventBus creates a new event bus. nats may be nil.
func NewEventBus(nats *NATSPublisher, log *logger.Logger) *EventBus {
	return &EventBus{
		nats:        nats,
		origin:      uuid.New().String(),
		logger:      log.WithComponent("event-bus"),
		subscribers: make(map[string]chan *RecordEvent),
	}
}

// Origin returns the id stamped on events published by this process
func (eb *EventBus) Origin() string {
	return eb.origin
}

// Publish publishes a record event to all subscribers
func (eb *EventBus) Publish(ctx context.Context, event *RecordEvent) error {
	if event.Origin == "" {
		event.Origin = eb.origin
	}

	if eb.nats != nil && eb.nats.IsConnected() {
		if err := eb.nats.Publish(ctx, event); err != nil {
			eb.logger.Warn().Err(err).Msg("failed to publish to NATS, using local broadcast only")
		}
	}

	eb.broadcast(event)
	return nil
}

func (eb *EventBus) broadcast(event *RecordEvent) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for id, ch := range eb.subscribers {
		select {
		case ch <- event:
		default:
			eb.logger.Debug().Str("subscriber", id).Msg("subscriber channel full, dropping event")
		}
	}
}

// Subscribe creates a new subscription and returns a channel for events.
// Events published by other instances arrive through NATS; this
// instance's own events are delivered locally only once.
func (eb *EventBus) Subscribe(ctx context.Context) (<-chan *RecordEvent, func()) {
	eb.mu.Lock()
	eb.nextID++
	id := fmt.Sprintf("sub-%d", eb.nextID)
	ch := make(chan *RecordEvent, 100)
	eb.subscribers[id] = ch
	eb.mu.Unlock()

	eb.logger.Debug().Str("subscriber_id", id).Msg("new subscriber")

	subCtx, cancel := context.WithCancel(ctx)
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			cancel()
			eb.mu.Lock()
			defer eb.mu.Unlock()
			if _, ok := eb.subscribers[id]; ok {
				close(ch)
				delete(eb.subscribers, id)
				eb.logger.Debug().Str("subscriber_id", id).Msg("subscriber removed")
			}
		})
	}

	if eb.nats != nil && eb.nats.IsConnected() {
		natsCh, err := eb.nats.Subscribe(subCtx)
		if err != nil {
			eb.logger.Warn().Err(err).Msg("remote events unavailable")
		} else {
			go eb.forward(subCtx, id, natsCh)
		}
	}

	return ch, unsubscribe
}

func (eb *EventBus) forward(ctx context.Context, id string, remote <-chan *RecordEvent) {
	for event := range remote {
		if event.Origin == eb.origin {
			continue
		}
		eb.mu.RLock()
		ch, ok := eb.subscribers[id]
		if ok {
			select {
			case ch <- event:
			case <-ctx.Done():
			default:
				eb.logger.Debug().Str("subscriber", id).Msg("subscriber channel full, dropping remote event")
			}
		}
		eb.mu.RUnlock()
		if !ok {
			return
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (eb *EventBus) SubscriberCount() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers)
}

// Close closes the event bus
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for id, ch := range eb.subscribers {
		close(ch)
		delete(eb.subscribers, id)
	}

	if eb.nats != nil {
		eb.nats.Close()
	}
}
