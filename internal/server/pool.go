package server

import (
	"sync"

	"github.com/google/uuid"
	"github.com/metroloop/metroloop/internal/protocol"
	"github.com/metroloop/metroloop/pkg/logger"
)

// Subscriber is one raw socket consumer. Events pushed to it are delivered
// in order by its connection's writer.
type Subscriber struct {
	ID     string
	events *protocol.Queue[protocol.Event]
}

// Send queues ev for this subscriber only.
func (s *Subscriber) Send(ev protocol.Event) bool {
	return s.events.Push(ev)
}

// Events returns the subscriber's outgoing stream.
func (s *Subscriber) Events() <-chan protocol.Event {
	return s.events.Out()
}

// Pool is the set of connected raw socket subscribers.
type Pool struct {
	mu  sync.RWMutex
	m   map[string]*Subscriber
	log logger.Logger
}

func NewPool(l logger.Logger) *Pool {
	return &Pool{
		m:   make(map[string]*Subscriber),
		log: l,
	}
}

// Add registers a new subscriber with a fresh session id.
func (p *Pool) Add() *Subscriber {
	sub := &Subscriber{
		ID:     uuid.NewString(),
		events: protocol.NewQueue[protocol.Event](),
	}
	p.mu.Lock()
	p.m[sub.ID] = sub
	p.mu.Unlock()
	return sub
}

// Remove unregisters a subscriber and drops its undelivered events.
func (p *Pool) Remove(id string) {
	p.mu.Lock()
	sub, ok := p.m[id]
	delete(p.m, id)
	p.mu.Unlock()
	if ok {
		sub.events.Discard()
	}
}

// Broadcast queues ev for every subscriber. It never blocks on a slow
// consumer.
func (p *Pool) Broadcast(ev protocol.Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, sub := range p.m {
		sub.events.Push(ev)
	}
}

// Count returns the number of subscribers.
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.m)
}

// CloseAll removes every subscriber.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	subs := p.m
	p.m = make(map[string]*Subscriber)
	p.mu.Unlock()
	for _, sub := range subs {
		sub.events.Discard()
	}
	if len(subs) > 0 {
		p.log.Info("closed %d socket subscriber(s)", len(subs))
	}
}
