package service

import (
	"sync"
)

// Event reports a change in a derivative's job. Subscribers key on the
// derivative name.
type Event struct {
	Type    string `json:"type"` // "status"
	JobID   string `json:"job_id"`
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	URL     string `json:"url,omitempty"`
}

type EventPublisher interface {
	Publish(name string, event Event)
}

type EventBus struct {
	subscribers map[string][]chan Event
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string][]chan Event),
	}
}

func (eb *EventBus) Subscribe(name string) chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan Event, 16)
	eb.subscribers[name] = append(eb.subscribers[name], ch)
	return ch
}

func (eb *EventBus) Unsubscribe(name string, ch chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subs := eb.subscribers[name]
	for i, sub := range subs {
		if sub == ch {
			eb.subscribers[name] = append(subs[:i], subs[i+1:]...)
			close(ch)
			break
		}
	}

	if len(eb.subscribers[name]) == 0 {
		delete(eb.subscribers, name)
	}
}

func (eb *EventBus) Publish(name string, event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for _, ch := range eb.subscribers[name] {
		select {
		case ch <- event:
		default:
			// Drop event if subscriber is slow
		}
	}
}
