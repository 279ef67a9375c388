package fanout

import (
	"context"
	"errors"
	"sync"

	"github.com/quizplatform/notification-server/internal/domain/gateway"
)

var errBusClosed = errors.New("fan-out bus closed")

// Loopback is an in-process fan-out bus. It serves single-node deployments
// and tests: several gateways subscribed to one Loopback behave like
// separate processes sharing a real bus.
type Loopback struct {
	mu       sync.RWMutex
	handlers []func(gateway.Instruction)
	closed   bool
}

// NewLoopback creates an in-process bus.
func NewLoopback() *Loopback {
	return &Loopback{}
}

var _ gateway.Bus = (*Loopback)(nil)

// Publish delivers the instruction to every subscriber synchronously.
func (b *Loopback) Publish(ctx context.Context, instr gateway.Instruction) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return errBusClosed
	}
	handlers := make([]func(gateway.Instruction), len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(instr)
	}
	return nil
}

// Subscribe registers a handler.
func (b *Loopback) Subscribe(ctx context.Context, handler func(gateway.Instruction)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errBusClosed
	}
	b.handlers = append(b.handlers, handler)
	return nil
}

// Close drops all subscribers.
func (b *Loopback) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = nil
	b.closed = true
	return nil
}
