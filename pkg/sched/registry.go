package sched

import "container/heap"

// entry is a registry slot. due and id are captured at insert time and never
// change afterwards; together they form the total ordering key. Rescheduling
// a task (successor occurrence, deferral) always removes the old entry and
// inserts a fresh one.
type entry struct {
	due  int64
	id   uint64
	task Task
}

type entryHeap []entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].due != h[j].due {
		return h[i].due < h[j].due
	}
	return h[i].id < h[j].id
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) { *h = append(*h, x.(entry)) }

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = entry{}
	*h = old[:n-1]
	return e
}

// registry holds pending occurrences ordered by (due, id). It is not
// goroutine safe; the scheduler serializes access with its own mutex.
type registry struct {
	h entryHeap
}

func newRegistry() *registry {
	r := &registry{h: make(entryHeap, 0, 16)}
	heap.Init(&r.h)
	return r
}

func (r *registry) insert(due int64, t Task) {
	heap.Push(&r.h, entry{due: due, id: t.ID(), task: t})
}

// takeEarliest removes and returns the earliest entry.
func (r *registry) takeEarliest() (Task, int64, bool) {
	if len(r.h) == 0 {
		return nil, 0, false
	}
	e := heap.Pop(&r.h).(entry)
	return e.task, e.due, true
}

// peekEarliest reports the earliest due time without removing the entry.
func (r *registry) peekEarliest() (int64, bool) {
	if len(r.h) == 0 {
		return 0, false
	}
	return r.h[0].due, true
}

// reset discards every pending entry.
func (r *registry) reset() {
	r.h = r.h[:0]
}

func (r *registry) size() int { return len(r.h) }
