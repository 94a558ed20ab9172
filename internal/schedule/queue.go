// Package schedule implements the worker's in-process schedule queue:
// an ordered map from next-due time to job, deduplicated by job name
// (spec §4.9). Pop is non-blocking; a single mutex covers both the
// heap and the name index, never acquired while holding a job lock.
package schedule

import (
	"container/heap"
	"sync"
	"time"

	"github.com/cuemby/rtsync/internal/job"
)

// Entry is one scheduled job, as returned by Snapshot.
type Entry struct {
	Name string
	Due  time.Time
	Job  *job.Job
}

// entry is the internal heap element; index and seq back Remove/Fix and
// the insertion-order tiebreak respectively.
type entry struct {
	name  string
	due   time.Time
	job   *job.Job
	seq   uint64
	index int
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].due.Equal(h[j].due) {
		return h[i].seq < h[j].seq
	}
	return h[i].due.Before(h[j].due)
}
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Queue is the schedule queue. Zero value is not usable; use New.
type Queue struct {
	mu      sync.Mutex
	h       entryHeap
	byName  map[string]*entry
	nextSeq uint64
}

// New builds an empty schedule queue.
func New() *Queue {
	return &Queue{byName: make(map[string]*entry)}
}

// Add schedules job j to run at due, under its name. If name is
// already present, the old entry is removed first (spec §4.9: "if
// name is already present, first remove the old entry; then insert"),
// so there is never more than one entry per name.
func (q *Queue) Add(name string, due time.Time, j *job.Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removeLocked(name)
	e := &entry{name: name, due: due, job: j, seq: q.nextSeq}
	q.nextSeq++
	q.byName[name] = e
	heap.Push(&q.h, e)
}

// Pop removes and returns the earliest entry if its due time has
// passed (due <= now); otherwise it returns (Entry{}, false) without
// blocking.
func (q *Queue) Pop(now time.Time) (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.h.Len() == 0 {
		return Entry{}, false
	}
	top := q.h[0]
	if top.due.After(now) {
		return Entry{}, false
	}
	heap.Pop(&q.h)
	delete(q.byName, top.name)
	return Entry{Name: top.name, Due: top.due, Job: top.job}, true
}

// PopAllDue drains every entry whose due time has passed, in
// ascending due-time order.
func (q *Queue) PopAllDue(now time.Time) []Entry {
	var out []Entry
	for {
		e, ok := q.Pop(now)
		if !ok {
			return out
		}
		out = append(out, e)
	}
}

// Remove deletes the single entry for name, if any.
func (q *Queue) Remove(name string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removeLocked(name)
}

func (q *Queue) removeLocked(name string) {
	e, ok := q.byName[name]
	if !ok {
		return
	}
	heap.Remove(&q.h, e.index)
	delete(q.byName, name)
}

// Len reports the number of scheduled entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.h.Len()
}

// Snapshot returns every entry, unordered, for status reporting
// (spec §4.8 step 5, §4.9 "snapshot").
func (q *Queue) Snapshot() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Entry, 0, len(q.h))
	for _, e := range q.h {
		out = append(out, Entry{Name: e.name, Due: e.due, Job: e.job})
	}
	return out
}
