package reactor

import "time"

// timerEntry is the (deadline, handler) pair of spec.md §3 "Timer
// entry". A handler may appear multiple times; staleness is detected
// at pop time by comparing the entry's deadline against the handler's
// recorded NextFire.
type timerEntry struct {
	deadline time.Time
	handler  *Base
	seq      int64 // insertion order, breaks equal-deadline ties
	index    int   // heap.Interface bookkeeping
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
