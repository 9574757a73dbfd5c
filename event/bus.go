// Package event provides the in-process broadcaster for debate events,
// built on watermill's gochannel pub/sub. Events are published as JSON
// messages on a single topic; subscribers receive envelopes in publish order
// and may narrow them with a session id or a jq expression.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/hupe1980/agora/core"
	"github.com/hupe1980/agora/logging"
)

// Topic is the watermill topic every debate event is published on.
const Topic = "agora.events"

const (
	metaType    = "type"
	metaSession = "session_id"
)

// Envelope is one delivered event. Data holds the complete JSON encoded
// core.Event.
type Envelope struct {
	ID        string          `json:"id"`
	Type      core.EventType  `json:"type"`
	SessionID string          `json:"session_id"`
	Data      json.RawMessage `json:"data"`
}

// Decode unmarshals the envelope into an event whose Payload is the raw
// payload JSON.
func (e Envelope) Decode() (core.Event, json.RawMessage, error) {
	var raw struct {
		core.Event
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(e.Data, &raw); err != nil {
		return core.Event{}, nil, fmt.Errorf("decode event %s: %w", e.ID, err)
	}
	return raw.Event, raw.Payload, nil
}

// Filter selects envelopes for a subscriber.
type Filter func(Envelope) bool

// Options configures a Bus.
type Options struct {
	// Buffer is the per-subscriber channel size. Events for a subscriber
	// whose buffer is full are dropped.
	Buffer int
	Logger logging.Logger
}

// Bus is a core.Broadcaster backed by watermill.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger logging.Logger
	buffer int

	mu     sync.RWMutex
	closed bool
}

// NewBus creates a bus.
func NewBus(optFns ...func(o *Options)) *Bus {
	opts := Options{Buffer: 64}
	for _, fn := range optFns {
		fn(&opts)
	}
	logger := logging.OrNoOp(opts.Logger)
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer:            int64(opts.Buffer),
				Persistent:                     false,
				BlockPublishUntilSubscriberAck: true,
			},
			newWatermillLogger(logger),
		),
		logger: logger,
		buffer: opts.Buffer,
	}
}

// Broadcast implements core.Broadcaster.
func (b *Bus) Broadcast(_ context.Context, ev core.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil
	}
	env, err := NewEnvelope(ev)
	if err != nil {
		return err
	}
	msg := message.NewMessage(env.ID, []byte(env.Data))
	msg.Metadata.Set(metaType, string(env.Type))
	msg.Metadata.Set(metaSession, env.SessionID)
	return b.pubsub.Publish(Topic, msg)
}

// NewEnvelope encodes ev the way the bus delivers it.
func NewEnvelope(ev core.Event) (Envelope, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s event: %w", ev.Type, err)
	}
	return Envelope{ID: watermill.NewUUID(), Type: ev.Type, SessionID: ev.SessionID, Data: data}, nil
}

// Subscribe streams envelopes accepted by every filter until ctx is done or
// the bus is closed.
func (b *Bus) Subscribe(ctx context.Context, filters ...Filter) (<-chan Envelope, error) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil, fmt.Errorf("event bus closed")
	}
	msgs, err := b.pubsub.Subscribe(ctx, Topic)
	b.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	out := make(chan Envelope, b.buffer)
	go func() {
		defer close(out)
		for msg := range msgs {
			env := Envelope{
				ID:        msg.UUID,
				Type:      core.EventType(msg.Metadata.Get(metaType)),
				SessionID: msg.Metadata.Get(metaSession),
				Data:      json.RawMessage(msg.Payload),
			}
			msg.Ack()
			if !accept(env, filters) {
				continue
			}
			select {
			case out <- env:
			default:
				b.logger.Warn("event.subscriber.drop", "type", env.Type, "session", env.SessionID)
			}
		}
	}()
	return out, nil
}

func accept(env Envelope, filters []Filter) bool {
	for _, f := range filters {
		if f != nil && !f(env) {
			return false
		}
	}
	return true
}

// Close stops the bus and ends every subscription.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()
	return b.pubsub.Close()
}

// SessionFilter accepts events of one session.
func SessionFilter(sessionID string) Filter {
	return func(e Envelope) bool { return e.SessionID == sessionID }
}

// TypeFilter accepts the given event types.
func TypeFilter(types ...core.EventType) Filter {
	set := make(map[core.EventType]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return func(e Envelope) bool { return set[e.Type] }
}

var _ core.Broadcaster = (*Bus)(nil)
