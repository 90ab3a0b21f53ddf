package events

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/charlesng35/jasamarket/pkg/logger"
)

// LogPublisher is used when the broker is disabled or unreachable at startup; events are only logged.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, routingKey string, envelope Envelope) error {
	logger.WithModule("events").Debug("publish skipped",
		zap.String("mode", "fallback"),
		zap.String("routing_key", routingKey),
		zap.String("event_id", envelope.ID),
	)
	return nil
}

func (LogPublisher) Close() error { return nil }

// Recorder keeps published envelopes in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
	err    error
}

// Recorded is a single envelope captured by Recorder.
type Recorded struct {
	RoutingKey string
	Envelope   Envelope
}

// FailWith makes subsequent Publish calls return err.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *Recorder) Publish(_ context.Context, routingKey string, envelope Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, Recorded{RoutingKey: routingKey, Envelope: envelope})
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of the recorded envelopes.
func (r *Recorder) Events() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Recorded, len(r.events))
	copy(out, r.events)
	return out
}

// Keys returns the routing keys in publish order.
func (r *Recorder) Keys() []string {
	events := r.Events()
	keys := make([]string, len(events))
	for i, e := range events {
		keys[i] = e.RoutingKey
	}
	return keys
}
