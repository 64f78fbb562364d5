// Package memory contains an in-memory publisher for tests and dev runs.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Published captures one publish call.
type Published struct {
	Topic   string
	Payload any
}

// Publisher records published payloads for inspection. A non-nil Err makes
// every publish fail, for exercising error paths.
type Publisher struct {
	Err error

	mu   sync.RWMutex
	sent []Published
}

// New returns an empty memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the message and returns a pseudo ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	if p.Err != nil {
		return "", p.Err
	}
	if topic == "" {
		return "", errors.New("topic name is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, Published{Topic: topic, Payload: payload})
	return fmt.Sprintf("mem-%d", len(p.sent)), nil
}

// Sent returns a copy of the recorded publishes.
func (p *Publisher) Sent() []Published {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Published, len(p.sent))
	copy(out, p.sent)
	return out
}
