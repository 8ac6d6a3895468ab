// Package broadcast carries priceTick, marketEvent and leaderboard payloads
// to socket clients, other processes and notification sinks.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Envelope is the wire shape of every real-time message.
type Envelope struct {
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
	SentAt time.Time       `json:"sent_at"`
}

func NewEnvelope(topic string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", topic, err)
	}
	return Envelope{Event: topic, Data: data, SentAt: time.Now().UTC()}, nil
}

type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Fanout publishes to every sink and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, topic string, payload any) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, topic, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops everything.
type Discard struct{}

func (Discard) Publish(context.Context, string, any) error { return nil }
