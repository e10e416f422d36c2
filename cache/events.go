package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"vizdirector/logger"

	"github.com/go-redis/redis/v8"
)

const (
	// lastEventKey keeps the most recent event of each type for late
	// observers. It is a mirror of in-memory state, not a store.
	lastEventKey = "%s:last"
	lastEventTTL = 10 * time.Minute
)

// Event is the wire form of a director notification on the bus.
type Event struct {
	Type    string          `json:"type"`
	Profile string          `json:"profile"`
	At      time.Time       `json:"at"`
	Data    json.RawMessage `json:"data"`
}

// NewEvent wraps payload as an Event.
func NewEvent(typ, profile string, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s event: %w", typ, err)
	}
	return Event{Type: typ, Profile: profile, At: time.Now().UTC(), Data: data}, nil
}

// EventBus publishes director events on a Redis channel.
type EventBus struct {
	client  *redis.Client
	channel string
}

// NewEventBus creates a bus on channel.
func NewEventBus(client *redis.Client, channel string) *EventBus {
	return &EventBus{client: client, channel: channel}
}

// Channel is the pub/sub channel name.
func (b *EventBus) Channel() string {
	return b.channel
}

// Publish sends ev and records it as the last event of its type.
func (b *EventBus) Publish(ctx context.Context, ev Event) error {
	if b.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	key := fmt.Sprintf(lastEventKey, b.channel)
	pipe := b.client.Pipeline()
	pipe.Publish(ctx, b.channel, payload)
	pipe.HSet(ctx, key, ev.Type, payload)
	pipe.Expire(ctx, key, lastEventTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", ev.Type, err)
	}
	return nil
}

// Last returns the most recent event of each type still cached.
func (b *EventBus) Last(ctx context.Context) (map[string]Event, error) {
	if b.client == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}
	raw, err := b.client.HGetAll(ctx, fmt.Sprintf(lastEventKey, b.channel)).Result()
	if err != nil {
		if err == redis.Nil {
			return map[string]Event{}, nil
		}
		return nil, err
	}
	out := make(map[string]Event, len(raw))
	for typ, data := range raw {
		var ev Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			logger.Warn("skipping malformed cached event", logger.String("type", typ), logger.ErrorField(err))
			continue
		}
		out[typ] = ev
	}
	return out, nil
}

// Subscribe calls fn for every event on the channel until ctx is cancelled.
func (b *EventBus) Subscribe(ctx context.Context, fn func(Event)) error {
	if b.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logger.Warn("skipping malformed event", logger.ErrorField(err))
				continue
			}
			fn(ev)
		}
	}
}

// Publisher forwards events to the bus from a bounded queue so callers on the
// tick goroutine never wait on Redis.
type Publisher struct {
	bus   *EventBus
	queue chan Event
}

// NewPublisher creates a publisher with room for size pending events.
func NewPublisher(bus *EventBus, size int) *Publisher {
	if size <= 0 {
		size = 256
	}
	return &Publisher{bus: bus, queue: make(chan Event, size)}
}

// Enqueue hands ev to the publisher. It reports false when the queue is full
// and the event was dropped.
func (p *Publisher) Enqueue(ev Event) bool {
	select {
	case p.queue <- ev:
		return true
	default:
		return false
	}
}

// Run publishes queued events until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-p.queue:
			pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if err := p.bus.Publish(pctx, ev); err != nil {
				logger.Warn("event publish failed", logger.String("type", ev.Type), logger.ErrorField(err))
			}
			cancel()
		}
	}
}
