package mailbox

import (
	"sync"
	"testing"
)

func TestMailboxTakeEmpty(t *testing.T) {
	t.Parallel()
	m := New[int]()

	v, ok := m.Take()
	if ok {
		t.Fatalf("take on empty mailbox: got ok=true, v=%d", v)
	}
}

func TestMailboxPublishThenTake(t *testing.T) {
	t.Parallel()
	m := New[int]()

	m.Publish(42)
	v, ok := m.Take()
	if !ok {
		t.Fatal("take after publish returned ok=false")
	}
	if v != 42 {
		t.Errorf("value: got %d, want 42", v)
	}
}

func TestMailboxTakeIsLossy(t *testing.T) {
	t.Parallel()
	m := New[int]()

	m.Publish(1)
	if _, ok := m.Take(); !ok {
		t.Fatal("first take should succeed")
	}
	if _, ok := m.Take(); ok {
		t.Fatal("second take on drained mailbox should return ok=false")
	}
}

func TestMailboxPublishOverwrites(t *testing.T) {
	t.Parallel()
	m := New[int]()

	m.Publish(1)
	m.Publish(2)
	m.Publish(3)

	v, ok := m.Take()
	if !ok {
		t.Fatal("take should succeed")
	}
	if v != 3 {
		t.Errorf("overwrite semantics: got %d, want latest publish 3", v)
	}
	if _, ok := m.Take(); ok {
		t.Fatal("only one value should have been held, regardless of publish count")
	}
}

// TestMailboxNoFrameReturnedTwice interleaves a concurrent publisher and a
// single consumer and checks invariant 7: no taken value is ever observed
// twice, and every taken value was actually published.
func TestMailboxNoFrameReturnedTwice(t *testing.T) {
	t.Parallel()
	m := New[int]()

	const n = 2000
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			m.Publish(i)
		}
	}()

	seen := make(map[int]int)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
			}
			if v, ok := m.Take(); ok {
				seen[v]++
			}
		}
	}()

	wg.Wait()
	close(stop)
	<-done
	// Drain whatever remains after the producer and consumer finish.
	for i := 0; i < 1000; i++ {
		if v, ok := m.Take(); ok {
			seen[v]++
		}
	}

	for v, count := range seen {
		if count > 1 {
			t.Fatalf("value %d was returned %d times, want at most 1", v, count)
		}
		if v < 0 || v >= n {
			t.Fatalf("value %d was never published", v)
		}
	}
}

func TestMailboxGenericWithStruct(t *testing.T) {
	t.Parallel()
	type frame struct{ id int }
	m := New[*frame]()

	m.Publish(&frame{id: 7})
	v, ok := m.Take()
	if !ok || v.id != 7 {
		t.Fatalf("got %+v, ok=%v", v, ok)
	}
}
