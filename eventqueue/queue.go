// Package eventqueue implements the priority event queue described in
// spec.md §4.1: events are ordered by (time, priority, sequence), strictly
// ascending, and the loop drains ties in priority order before advancing
// time.
package eventqueue

import "container/heap"

// Priority enumerates the fixed event classes of spec.md §3, lowest value
// first in tie-break order: occupancy/lifecycle transitions fire before
// trip completion, which fires before the phi update, new passenger
// arrivals, the state snapshot, the assignment tick, and finally MPC —
// matching original_source/Management.py's event ordering.
type Priority int

const (
	PriorityLifecycle      Priority = 0
	PriorityTripCompletion Priority = 1
	PriorityPhiUpdate      Priority = 2
	PriorityNewPassenger   Priority = 3
	PriorityStateUpdate    Priority = 4
	PriorityAssignment     Priority = 5
	PriorityMPC            Priority = 6
)

// Event is anything schedulable on the queue. Trigger is invoked by the
// driver when the event is popped; it returns only an error, and an event
// that schedules successors (or re-schedules itself) pushes them onto the
// queue during Trigger.
type Event interface {
	Time() float64
	Priority() Priority
	Trigger() error
}

type entry struct {
	event Event
	seq   int64
}

type pq []entry

func (p pq) Len() int { return len(p) }
func (p pq) Less(i, j int) bool {
	a, b := p[i], p[j]
	if a.event.Time() != b.event.Time() {
		return a.event.Time() < b.event.Time()
	}
	if a.event.Priority() != b.event.Priority() {
		return a.event.Priority() < b.event.Priority()
	}
	return a.seq < b.seq
}
func (p pq) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }
func (p *pq) Push(x any)        { *p = append(*p, x.(entry)) }
func (p *pq) Pop() any          { old := *p; n := len(old); v := old[n-1]; *p = old[:n-1]; return v }

// Queue is a min-heap of Events ordered by (time, priority, sequence).
type Queue struct {
	h       pq
	nextSeq int64
}

func New() *Queue {
	q := &Queue{}
	heap.Init(&q.h)
	return q
}

// Push schedules e, assigning it the next monotonically increasing
// sequence number so that same-(time,priority) ties resolve in insertion
// order (spec.md §3's sequence field).
func (q *Queue) Push(e Event) {
	heap.Push(&q.h, entry{event: e, seq: q.nextSeq})
	q.nextSeq++
}

// Pop removes and returns the earliest-ordered event, or nil if the queue
// is empty.
func (q *Queue) Pop() Event {
	if q.h.Len() == 0 {
		return nil
	}
	return heap.Pop(&q.h).(entry).event
}

func (q *Queue) Len() int { return q.h.Len() }

// Peek returns the earliest-ordered event without removing it.
func (q *Queue) Peek() Event {
	if q.h.Len() == 0 {
		return nil
	}
	return q.h[0].event
}
