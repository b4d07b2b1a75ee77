package jobs

import (
	"container/heap"
	"context"
	"sync"

	"freightflow/internal/model"
)

// Queue is the in-process priority ordering over pending jobs. Dequeue
// order is priority descending, then created_at ascending, then enqueue
// sequence, so ties among equal timestamps stay FIFO. Safe for concurrent
// use.
type Queue struct {
	mu    sync.Mutex
	items entryHeap
	index map[string]*entry // job id → live heap entry
	seq   uint64
	wake  chan struct{}
}

type entry struct {
	job model.Job
	seq uint64
	idx int // heap position, maintained by Swap
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{
		index: make(map[string]*entry),
		wake:  make(chan struct{}, 1),
	}
}

// Enqueue adds the job and wakes one waiter. A job id already queued is
// ignored, keeping retries idempotent at the queue boundary.
func (q *Queue) Enqueue(j model.Job) {
	q.mu.Lock()
	if _, dup := q.index[j.ID]; dup {
		q.mu.Unlock()
		return
	}
	q.seq++
	e := &entry{job: j, seq: q.seq}
	heap.Push(&q.items, e)
	q.index[j.ID] = e
	q.mu.Unlock()

	q.nudge()
}

// Next blocks until a job is available or ctx is cancelled.
func (q *Queue) Next(ctx context.Context) (model.Job, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			e := heap.Pop(&q.items).(*entry)
			delete(q.index, e.job.ID)
			remaining := len(q.items)
			q.mu.Unlock()
			if remaining > 0 {
				// Pass the wakeup on so concurrent waiters drain the rest.
				q.nudge()
			}
			return e.job, nil
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-ctx.Done():
			return model.Job{}, ctx.Err()
		}
	}
}

// Remove takes a pending job out of the queue, reporting whether it was
// present. Used by cancellation before the job is claimed.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.index[id]
	if !ok {
		return false
	}
	heap.Remove(&q.items, e.idx)
	delete(q.index, id)
	return true
}

// Len reports the number of queued jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) nudge() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// entryHeap implements heap.Interface, keeping each entry's idx in sync
// through Swap so Remove by id stays O(log n).
type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.job.Priority != b.job.Priority {
		return a.job.Priority > b.job.Priority
	}
	if !a.job.CreatedAt.Equal(b.job.CreatedAt) {
		return a.job.CreatedAt.Before(b.job.CreatedAt)
	}
	return a.seq < b.seq
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].idx = i
	h[j].idx = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.idx = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.idx = -1
	*h = old[:n-1]
	return e
}
