package events

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"backend/internal/model"

	"github.com/google/uuid"
)

// Event wraps a payload with identity and publish metadata.
type Event struct {
	ID        uuid.UUID
	Name      string
	Source    string
	Timestamp time.Time
	Payload   Payload
}

// Handler consumes a single event. Handlers run on their own goroutine;
// a panicking handler is logged and never affects the publisher or other
// handlers.
type Handler func(Event)

// LogStore persists the append-only event audit log.
type LogStore interface {
	Append(ctx context.Context, entry *model.EventLog) error
}

// Bus is the in-process publish/subscribe dispatcher. It is constructed
// explicitly and injected into the services that publish; there is no
// package-level singleton. Subscribers are registered at process startup.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]Handler
	store       LogStore
	wg          sync.WaitGroup
}

func NewBus(store LogStore) *Bus {
	return &Bus{
		subscribers: make(map[string][]Handler),
		store:       store,
	}
}

// Subscribe registers a handler for one event name.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[name] = append(b.subscribers[name], h)
}

// Publish records the event in the audit log synchronously, then
// dispatches to subscribers without waiting for them. Subscriber
// failures never surface to the caller.
func (b *Bus) Publish(ctx context.Context, source string, p Payload) {
	evt := Event{
		ID:        uuid.New(),
		Name:      p.EventName(),
		Source:    source,
		Timestamp: time.Now().UTC(),
		Payload:   p,
	}

	raw, err := json.Marshal(p)
	if err != nil {
		raw = []byte("{}")
	}
	if b.store != nil {
		entry := &model.EventLog{Name: evt.Name, Source: source, Payload: string(raw)}
		if err := b.store.Append(ctx, entry); err != nil {
			log.Printf("event audit append failed for %s: %v", evt.Name, err)
		}
	}

	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[evt.Name]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.wg.Add(1)
		go b.safeInvoke(h, evt)
	}
}

func (b *Bus) safeInvoke(h Handler, evt Event) {
	defer b.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("event handler panicked for %s: %v", evt.Name, r)
		}
	}()
	h(evt)
}

// Drain blocks until all in-flight handler invocations finish.
func (b *Bus) Drain() {
	b.wg.Wait()
}
