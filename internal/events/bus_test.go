package events

import (
	"sync"
	"testing"
)

func TestBus_PublishInOrder(t *testing.T) {
	bus := NewBus[int]()

	var got []string
	bus.Subscribe(func(v int) { got = append(got, "a") })
	bus.Subscribe(func(v int) { got = append(got, "b") })

	bus.Publish(1)

	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("expected [a b], got %v", got)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus[string]()

	calls := 0
	unsubscribe := bus.Subscribe(func(string) { calls++ })
	bus.Publish("one")
	unsubscribe()
	unsubscribe()
	bus.Publish("two")

	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if bus.Len() != 0 {
		t.Errorf("expected 0 subscribers, got %d", bus.Len())
	}
}

func TestBus_UnsubscribeFromHandler(t *testing.T) {
	bus := NewBus[int]()

	var unsubscribe func()
	calls := 0
	unsubscribe = bus.Subscribe(func(int) {
		calls++
		unsubscribe()
	})

	bus.Publish(1)
	bus.Publish(2)

	if calls != 1 {
		t.Errorf("expected handler to run once, ran %d times", calls)
	}
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := NewBus[int]()

	var mu sync.Mutex
	sum := 0
	bus.Subscribe(func(v int) {
		mu.Lock()
		sum += v
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			bus.Publish(v)
		}(i)
	}
	wg.Wait()

	if sum != 5050 {
		t.Errorf("expected sum 5050, got %d", sum)
	}
}
