package queue

import (
	"container/heap"
	"sync"
)

// Item is a single entry in the queue.
type Item[T any] struct {
	Value    T
	Priority int
	seq      uint64
	index    int
}

type itemHeap[T any] []*Item[T]

func (h itemHeap[T]) Len() int { return len(h) }

// Lower priority values come first. Equal priorities keep insertion order.
func (h itemHeap[T]) Less(i, j int) bool {
	if h[i].Priority == h[j].Priority {
		return h[i].seq < h[j].seq
	}
	return h[i].Priority < h[j].Priority
}

func (h itemHeap[T]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap[T]) Push(x any) {
	item := x.(*Item[T])
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *itemHeap[T]) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// PriorityQueue is a thread-safe generic priority queue with stable ordering
// for items of equal priority.
type PriorityQueue[T any] struct {
	heap itemHeap[T]
	seq  uint64
	mu   sync.Mutex
}

func NewPriorityQueue[T any]() *PriorityQueue[T] {
	pq := &PriorityQueue[T]{
		heap: make(itemHeap[T], 0),
	}
	heap.Init(&pq.heap)
	return pq
}

func (pq *PriorityQueue[T]) Len() int {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	return pq.heap.Len()
}

// Enqueue adds a value with the given priority.
func (pq *PriorityQueue[T]) Enqueue(value T, priority int) {
	pq.mu.Lock()
	defer pq.mu.Unlock()

	pq.seq++
	heap.Push(&pq.heap, &Item[T]{
		Value:    value,
		Priority: priority,
		seq:      pq.seq,
	})
}

// Dequeue removes and returns the first item.
func (pq *PriorityQueue[T]) Dequeue() (T, bool) {
	pq.mu.Lock()
	defer pq.mu.Unlock()

	if pq.heap.Len() == 0 {
		var zero T
		return zero, false
	}

	item := heap.Pop(&pq.heap).(*Item[T])
	return item.Value, true
}

// RemoveFunc drops every queued value for which match returns true and
// reports how many were removed.
func (pq *PriorityQueue[T]) RemoveFunc(match func(T) bool) int {
	pq.mu.Lock()
	defer pq.mu.Unlock()

	kept := pq.heap[:0]
	removed := 0
	for _, item := range pq.heap {
		if match(item.Value) {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	for i := len(kept); i < len(pq.heap); i++ {
		pq.heap[i] = nil
	}
	pq.heap = kept
	for i, item := range pq.heap {
		item.index = i
	}
	heap.Init(&pq.heap)
	return removed
}

// DequeueAll drains the queue in order.
func (pq *PriorityQueue[T]) DequeueAll() []T {
	pq.mu.Lock()
	defer pq.mu.Unlock()

	items := make([]T, 0, pq.heap.Len())
	for pq.heap.Len() > 0 {
		items = append(items, heap.Pop(&pq.heap).(*Item[T]).Value)
	}
	return items
}
