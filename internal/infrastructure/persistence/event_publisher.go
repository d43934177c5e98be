package persistence

import (
	"context"
	"sync"

	"github.com/relicta-tech/lockable/internal/domain/resource"
)

// InMemoryEventPublisher keeps the resource events published during one run.
type InMemoryEventPublisher struct {
	mu     sync.RWMutex
	events []resource.DomainEvent
}

// NewInMemoryEventPublisher creates a new in-memory event publisher.
func NewInMemoryEventPublisher() *InMemoryEventPublisher {
	return &InMemoryEventPublisher{
		events: make([]resource.DomainEvent, 0, 16),
	}
}

// Publish records domain events.
func (p *InMemoryEventPublisher) Publish(ctx context.Context, events ...resource.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

// GetEvents returns all published events.
func (p *InMemoryEventPublisher) GetEvents() []resource.DomainEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]resource.DomainEvent{}, p.events...)
}
