package scheduler

import "container/heap"

// retryEntry is one (due time, message id) pair in the retry heap. The heap
// may contain stale entries -- ids no longer in the index, or states that
// moved past PENDING -- by design; tick discards them lazily at pop time
// rather than paying to scrub the heap on every terminal transition.
type retryEntry struct {
	nextRetryAt float64
	messageID   string
}

// retryHeap is a min-heap over retryEntry.nextRetryAt, implementing
// container/heap.Interface.
type retryHeap []retryEntry

func (h retryHeap) Len() int { return len(h) }

func (h retryHeap) Less(i, j int) bool {
	return h[i].nextRetryAt < h[j].nextRetryAt
}

func (h retryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *retryHeap) Push(x interface{}) {
	*h = append(*h, x.(retryEntry))
}

func (h *retryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[:n-1]
	return entry
}

func newRetryHeap() *retryHeap {
	h := &retryHeap{}
	heap.Init(h)
	return h
}

func (h *retryHeap) push(nextRetryAt float64, messageID string) {
	heap.Push(h, retryEntry{nextRetryAt: nextRetryAt, messageID: messageID})
}

// peek returns the top entry without removing it. ok is false if empty.
func (h *retryHeap) peek() (retryEntry, bool) {
	if h.Len() == 0 {
		return retryEntry{}, false
	}
	return (*h)[0], true
}

func (h *retryHeap) pop() retryEntry {
	return heap.Pop(h).(retryEntry)
}
