// Package events provides the bank's notification bus. Every successful
// mutating ledger operation publishes exactly one event.
package events

import (
	"sync"
	"time"
)

// Type classifies a ledger notification.
type Type string

const (
	AccountCreated     Type = "account.created"
	AccountDeactivated Type = "account.deactivated"
	Deposited          Type = "bank.deposited"
	Withdrawn          Type = "bank.withdrawn"
	Transferred        Type = "bank.transferred"
	Locked             Type = "lock.created"
	Claimed            Type = "lock.claimed"
	PauseChanged       Type = "bank.pause_changed"
)

// Event is a single ledger notification.
type Event struct {
	Type      Type      `json:"type"`
	Account   string    `json:"account"`
	Sender    string    `json:"sender,omitempty"`
	Amount    uint64    `json:"amount,omitempty"`
	LockIndex uint64    `json:"lock_index,omitempty"`
	Vesting   bool      `json:"vesting,omitempty"`
	Paused    bool      `json:"paused,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Handler processes events as they are published.
type Handler func(Event)

// defaultHistory bounds the retained event window.
const defaultHistory = 1024

// Bus is a synchronous in-process notification bus with bounded history.
type Bus struct {
	mu       sync.RWMutex
	handlers map[int]Handler
	nextID   int
	history  []Event
	max      int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[int]Handler),
		max:      defaultHistory,
	}
}

// Publish records the event and delivers it to all subscribers in order.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	b.history = append(b.history, e)
	if len(b.history) > b.max {
		b.history = b.history[len(b.history)-b.max:]
	}
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(e)
	}
}

// Subscribe registers a handler and returns an unsubscribe function.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}

// Recent returns up to n most recent events, newest last.
func (b *Bus) Recent(n int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 || n > len(b.history) {
		n = len(b.history)
	}
	out := make([]Event, n)
	copy(out, b.history[len(b.history)-n:])
	return out
}
