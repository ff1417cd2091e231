package eventqueue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeEvent struct {
	t float64
	p Priority
}

func (e fakeEvent) Time() float64     { return e.t }
func (e fakeEvent) Priority() Priority { return e.p }
func (e fakeEvent) Trigger() error     { return nil }

func TestQueueOrdersByTimeThenPriority(t *testing.T) {
	q := New()
	q.Push(fakeEvent{t: 10, p: PriorityMPC})
	q.Push(fakeEvent{t: 5, p: PriorityAssignment})
	q.Push(fakeEvent{t: 5, p: PriorityPhiUpdate})
	q.Push(fakeEvent{t: 1, p: PriorityStateUpdate})

	order := []Event{}
	for q.Len() > 0 {
		order = append(order, q.Pop())
	}

	require.Equal(t, 1.0, order[0].Time())
	require.Equal(t, 5.0, order[1].Time())
	require.Equal(t, PriorityPhiUpdate, order[1].Priority())
	require.Equal(t, 5.0, order[2].Time())
	require.Equal(t, PriorityAssignment, order[2].Priority())
	require.Equal(t, 10.0, order[3].Time())
}

func TestQueueTiesResolveInInsertionOrder(t *testing.T) {
	q := New()
	first := fakeEvent{t: 1, p: PriorityAssignment}
	second := fakeEvent{t: 1, p: PriorityAssignment}
	q.Push(first)
	q.Push(second)

	require.Equal(t, Event(first), q.Pop())
	require.Equal(t, Event(second), q.Pop())
}

func TestQueuePopEmptyReturnsNil(t *testing.T) {
	q := New()
	require.Nil(t, q.Pop())
	require.Nil(t, q.Peek())
}

func TestQueuePeekDoesNotRemove(t *testing.T) {
	q := New()
	q.Push(fakeEvent{t: 3, p: PriorityMPC})
	require.Equal(t, 1, q.Len())
	peeked := q.Peek()
	require.NotNil(t, peeked)
	require.Equal(t, 1, q.Len())
}
