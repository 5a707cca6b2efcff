package events

import (
	"sync"
	"time"
)

type EventType string

const (
	// EventPlanGenerated is published after a new plan is stored.
	EventPlanGenerated EventType = "plan_generated"
	// EventOverrideApplied is published after a supervisor override lands on a plan.
	EventOverrideApplied EventType = "override_applied"
	EventPlanApproved    EventType = "plan_approved"
	EventPlanRejected    EventType = "plan_rejected"
	// EventSnapshotChanged is published by the watcher when the fleet snapshot file changes.
	EventSnapshotChanged EventType = "snapshot_changed"
)

type Event struct {
	Type      EventType
	Timestamp time.Time
	PlanID    string
	Data      map[string]any
}

type Subscriber func(Event)

// Bus is a non-blocking publish/subscribe bus. Each subscriber has a buffered channel drained
// by its own goroutine; when the buffer is full the event is dropped for that subscriber.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan Event
	bufferSize  int
	now         func() time.Time
}

func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Bus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
		now:         time.Now,
	}
}

// Subscribe registers fn for eventType and returns the function that removes it. A panicking
// subscriber loses that event only.
func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)

	go func() {
		for event := range ch {
			func() {
				defer func() { _ = recover() }()
				fn(event)
			}()
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			subs := b.subscribers[eventType]
			for i, subCh := range subs {
				if subCh == ch {
					b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
					close(ch)
					break
				}
			}
		})
	}
}

// Publish delivers an event to every subscriber of eventType without blocking.
func (b *Bus) Publish(eventType EventType, planID string, data map[string]any) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	event := Event{
		Type:      eventType,
		Timestamp: b.now().UTC(),
		PlanID:    planID,
		Data:      data,
	}
	for _, ch := range b.subscribers[eventType] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Close closes all subscriber channels and clears subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subscribers, eventType)
	}
}
