package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriorityQueue_OrdersByPriority(t *testing.T) {
	pq := NewPriorityQueue[string]()
	pq.Enqueue("low", 10)
	pq.Enqueue("high", 1)
	pq.Enqueue("mid", 5)

	v, ok := pq.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, "high", v)

	v, ok = pq.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, "mid", v)

	v, ok = pq.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, "low", v)

	_, ok = pq.Dequeue()
	assert.False(t, ok)
}

func TestPriorityQueue_StableForEqualPriority(t *testing.T) {
	pq := NewPriorityQueue[string]()
	for _, v := range []string{"a", "b", "c", "d"} {
		pq.Enqueue(v, 1)
	}
	pq.Enqueue("urgent", 0)

	assert.Equal(t, []string{"urgent", "a", "b", "c", "d"}, pq.DequeueAll())
	assert.Equal(t, 0, pq.Len())
}

func TestPriorityQueue_RemoveFunc(t *testing.T) {
	pq := NewPriorityQueue[int]()
	for i := 1; i <= 6; i++ {
		pq.Enqueue(i, i%2)
	}

	removed := pq.RemoveFunc(func(v int) bool { return v%2 == 0 })
	assert.Equal(t, 3, removed)
	assert.Equal(t, []int{1, 3, 5}, pq.DequeueAll())
}

func TestPriorityQueue_ConcurrentEnqueue(t *testing.T) {
	pq := NewPriorityQueue[int]()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			pq.Enqueue(v, v)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, pq.Len())
}
