package scheduler

import "testing"

func TestRetryHeapOrdersByDueTime(t *testing.T) {
	h := newRetryHeap()
	h.push(5.0, "c")
	h.push(1.0, "a")
	h.push(3.0, "b")

	var order []string
	for h.Len() > 0 {
		order = append(order, h.pop().messageID)
	}

	want := []string{"a", "b", "c"}
	for i, id := range want {
		if order[i] != id {
			t.Fatalf("order[%d] = %q, want %q (full order %v)", i, order[i], id, order)
		}
	}
}

func TestRetryHeapPeekDoesNotRemove(t *testing.T) {
	h := newRetryHeap()
	h.push(2.0, "only")

	entry, ok := h.peek()
	if !ok || entry.messageID != "only" {
		t.Fatalf("peek() = %+v, %v, want only/true", entry, ok)
	}
	if h.Len() != 1 {
		t.Fatalf("Len() after peek = %d, want 1", h.Len())
	}
}

func TestRetryHeapPeekEmpty(t *testing.T) {
	h := newRetryHeap()
	if _, ok := h.peek(); ok {
		t.Fatalf("peek() on empty heap returned ok=true")
	}
}

func TestRetryHeapToleratesStaleEntries(t *testing.T) {
	// Two entries for the same message id -- simulating a reschedule that
	// left the earlier entry behind. Both come out; the caller is
	// responsible for discarding the stale one via the index.
	h := newRetryHeap()
	h.push(1.0, "dup")
	h.push(2.0, "dup")

	if h.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", h.Len())
	}
	first := h.pop()
	second := h.pop()
	if first.nextRetryAt != 1.0 || second.nextRetryAt != 2.0 {
		t.Fatalf("got %+v then %+v, want ascending due times", first, second)
	}
}
