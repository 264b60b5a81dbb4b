package scheduler

import (
	"container/heap"
	"time"
)

// deletionJob is a pending deletion in the timer queue
type deletionJob struct {
	ContentID string
	DueAt     time.Time
	index     int // Index in the heap (used by container/heap)
}

// jobHeap implements heap.Interface ordered by due time
type jobHeap []*deletionJob

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	// Earliest due time first, ties broken by id for determinism
	if !h[i].DueAt.Equal(h[j].DueAt) {
		return h[i].DueAt.Before(h[j].DueAt)
	}
	return h[i].ContentID < h[j].ContentID
}

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *jobHeap) Push(x interface{}) {
	n := len(*h)
	job := x.(*deletionJob)
	job.index = n
	*h = append(*h, job)
}

func (h *jobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	job := old[n-1]
	old[n-1] = nil  // avoid memory leak
	job.index = -1  // for safety
	*h = old[0 : n-1]
	return job
}

// timerQueue is the min-heap of planned deletions. It is owned exclusively
// by the scheduling goroutine (and by Start before that goroutine exists),
// so it needs no locking of its own.
type timerQueue struct {
	heap jobHeap
	jobs map[string]*deletionJob // For quick lookup by content ID
}

func newTimerQueue() *timerQueue {
	q := &timerQueue{
		heap: make(jobHeap, 0),
		jobs: make(map[string]*deletionJob),
	}
	heap.Init(&q.heap)
	return q
}

// Schedule arms (or re-arms) the timer for a content id. Scheduling an id
// that is already queued moves its due time instead of adding a duplicate.
func (q *timerQueue) Schedule(id string, dueAt time.Time) {
	if job, exists := q.jobs[id]; exists {
		job.DueAt = dueAt
		heap.Fix(&q.heap, job.index)
		return
	}
	job := &deletionJob{ContentID: id, DueAt: dueAt}
	heap.Push(&q.heap, job)
	q.jobs[id] = job
}

// Remove drops the timer for a content id if one exists.
func (q *timerQueue) Remove(id string) bool {
	job, exists := q.jobs[id]
	if !exists {
		return false
	}
	heap.Remove(&q.heap, job.index)
	delete(q.jobs, id)
	return true
}

// Contains reports whether a timer exists for the id.
func (q *timerQueue) Contains(id string) bool {
	_, exists := q.jobs[id]
	return exists
}

// Peek returns the earliest job without removing it, or nil if empty.
func (q *timerQueue) Peek() *deletionJob {
	if len(q.heap) == 0 {
		return nil
	}
	return q.heap[0]
}

// PopDue removes and returns every job whose due time is at or before now.
func (q *timerQueue) PopDue(now time.Time) []*deletionJob {
	var due []*deletionJob
	for len(q.heap) > 0 && !q.heap[0].DueAt.After(now) {
		job := heap.Pop(&q.heap).(*deletionJob)
		delete(q.jobs, job.ContentID)
		due = append(due, job)
	}
	return due
}

// Len returns the number of queued jobs.
func (q *timerQueue) Len() int {
	return len(q.heap)
}
