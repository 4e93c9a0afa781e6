package pipeline

import (
	"testing"
	"time"
)

func TestQueuePreservesOrder(t *testing.T) {
	q := NewQueue[int](0)
	for i := 0; i < 100; i++ {
		q.Put(i, nil)
	}
	for i := 0; i < 100; i++ {
		got, ok := q.Get(time.Millisecond)
		if !ok || got != i {
			t.Fatalf("Get() = %d, %v, want %d, true", got, ok, i)
		}
		q.Done()
	}
	if _, ok := q.Get(time.Millisecond); ok {
		t.Fatalf("Get() on empty queue returned an item")
	}
}

func TestQueuePutBlocksWhileFull(t *testing.T) {
	q := NewQueue[int](1)
	q.Put(1, nil)

	put := make(chan bool)
	go func() { put <- q.Put(2, nil) }()

	select {
	case <-put:
		t.Fatalf("Put returned while queue was full")
	case <-time.After(20 * time.Millisecond):
	}

	if got, _ := q.TryGet(); got != 1 {
		t.Fatalf("TryGet() = %d, want 1", got)
	}
	select {
	case ok := <-put:
		if !ok {
			t.Fatalf("Put() = false, want true")
		}
	case <-time.After(time.Second):
		t.Fatalf("Put did not resume after space was freed")
	}
}

func TestQueuePutAbortsOnQuit(t *testing.T) {
	q := NewQueue[int](1)
	q.Put(1, nil)
	quit := make(chan struct{})
	close(quit)
	if q.Put(2, quit) {
		t.Fatalf("Put() = true after quit, want false")
	}
	if q.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", q.Len())
	}
}

func TestQueueJoinWaitsForDone(t *testing.T) {
	q := NewQueue[string](0)
	q.Put("a", nil)
	q.Put("b", nil)

	joined := make(chan struct{})
	go func() {
		q.Join()
		close(joined)
	}()

	for i := 0; i < 2; i++ {
		if _, ok := q.Get(time.Second); !ok {
			t.Fatalf("Get() found nothing")
		}
		select {
		case <-joined:
			t.Fatalf("Join returned with %d items outstanding", 2-i)
		case <-time.After(5 * time.Millisecond):
		}
		q.Done()
	}

	select {
	case <-joined:
	case <-time.After(time.Second):
		t.Fatalf("Join did not return after all items were done")
	}
}
