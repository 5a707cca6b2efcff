package events

import (
	"sync"
	"testing"
	"time"
)

func waitEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	got := make(chan Event, 1)
	unsub := bus.Subscribe(EventPlanGenerated, func(e Event) { got <- e })
	defer unsub()

	bus.Publish(EventPlanGenerated, "PLAN-1748754000000", map[string]any{"assignments": 4})

	e := waitEvent(t, got)
	if e.Type != EventPlanGenerated {
		t.Errorf("expected type %s, got %s", EventPlanGenerated, e.Type)
	}
	if e.PlanID != "PLAN-1748754000000" {
		t.Errorf("expected plan id PLAN-1748754000000, got %s", e.PlanID)
	}
	if n, ok := e.Data["assignments"].(int); !ok || n != 4 {
		t.Errorf("expected assignments 4, got %v", e.Data["assignments"])
	}
	if e.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	first := make(chan Event, 1)
	second := make(chan Event, 1)
	defer bus.Subscribe(EventOverrideApplied, func(e Event) { first <- e })()
	defer bus.Subscribe(EventOverrideApplied, func(e Event) { second <- e })()

	bus.Publish(EventOverrideApplied, "PLAN-1", map[string]any{"trainset_id": "TS-101"})

	if e := waitEvent(t, first); e.Data["trainset_id"] != "TS-101" {
		t.Errorf("subscriber 1 got %v", e.Data)
	}
	if e := waitEvent(t, second); e.Data["trainset_id"] != "TS-101" {
		t.Errorf("subscriber 2 got %v", e.Data)
	}
}

func TestBus_NonBlocking(t *testing.T) {
	bus := NewBus(1)
	defer bus.Close()

	release := make(chan struct{})
	unsub := bus.Subscribe(EventPlanGenerated, func(e Event) { <-release })
	defer unsub()
	defer close(release)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(EventPlanGenerated, "", nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	got := make(chan Event, 10)
	unsub := bus.Subscribe(EventPlanApproved, func(e Event) { got <- e })

	bus.Publish(EventPlanApproved, "PLAN-1", nil)
	waitEvent(t, got)

	unsub()
	unsub() // idempotent

	bus.Publish(EventPlanApproved, "PLAN-2", nil)
	select {
	case e := <-got:
		t.Errorf("received %s after unsubscribe", e.PlanID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_PanicRecovery(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	calls := make(chan int, 2)
	defer bus.Subscribe(EventPlanRejected, func(e Event) {
		calls <- 1
		panic("subscriber bug")
	})()

	bus.Publish(EventPlanRejected, "PLAN-1", nil)
	bus.Publish(EventPlanRejected, "PLAN-2", nil)

	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-time.After(time.Second):
			t.Fatalf("subscriber stopped receiving after panic (got %d calls)", i)
		}
	}
}

func TestBus_EventTypes(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	var mu sync.Mutex
	var wg sync.WaitGroup
	counts := map[EventType]int{}
	record := func(e Event) {
		mu.Lock()
		counts[e.Type]++
		mu.Unlock()
		wg.Done()
	}
	defer bus.Subscribe(EventPlanGenerated, record)()
	defer bus.Subscribe(EventSnapshotChanged, record)()

	wg.Add(3)
	bus.Publish(EventPlanGenerated, "PLAN-1", nil)
	bus.Publish(EventSnapshotChanged, "", map[string]any{"path": "fleet.yaml"})
	bus.Publish(EventPlanGenerated, "PLAN-2", nil)
	bus.Publish(EventPlanApproved, "PLAN-1", nil) // nobody listening
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if counts[EventPlanGenerated] != 2 {
		t.Errorf("expected 2 plan_generated events, got %d", counts[EventPlanGenerated])
	}
	if counts[EventSnapshotChanged] != 1 {
		t.Errorf("expected 1 snapshot_changed event, got %d", counts[EventSnapshotChanged])
	}
}

func TestBus_NilPublishIsNoop(t *testing.T) {
	var bus *Bus
	bus.Publish(EventPlanGenerated, "PLAN-1", nil)
}

func BenchmarkBus_Publish(b *testing.B) {
	bus := NewBus(100)
	defer bus.Close()

	for i := 0; i < 5; i++ {
		bus.Subscribe(EventPlanGenerated, func(e Event) {})
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		bus.Publish(EventPlanGenerated, "PLAN-1", map[string]any{"assignments": 25})
	}
}
