package ovenqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueueFIFO(t *testing.T) {
	t.Run("pops in push order", func(t *testing.T) {
		q := New()
		q.Push(1)
		q.Push(2)
		q.Push(3)

		car, ok := q.Pop()
		assert.True(t, ok)
		assert.Equal(t, 1, car)
		assert.Equal(t, 2, q.Len())
	})

	t.Run("Pop on empty queue reports false", func(t *testing.T) {
		q := New()
		_, ok := q.Pop()
		assert.False(t, ok)
		assert.True(t, q.IsEmpty())
	})
}

func TestQueuePushFront(t *testing.T) {
	t.Run("requeues to the head ahead of everything else", func(t *testing.T) {
		q := New()
		q.Push(1)
		q.Push(2)
		q.PushFront(99)

		car, ok := q.Pop()
		assert.True(t, ok)
		assert.Equal(t, 99, car)
	})
}

func TestQueuePeek(t *testing.T) {
	t.Run("does not remove the element", func(t *testing.T) {
		q := New()
		q.Push(7)

		car, ok := q.Peek()
		assert.True(t, ok)
		assert.Equal(t, 7, car)
		assert.Equal(t, 1, q.Len())
	})
}

func TestQueueSnapshot(t *testing.T) {
	t.Run("is independent of the live queue", func(t *testing.T) {
		q := New()
		q.Push(1)
		q.Push(2)

		snap := q.Snapshot()
		q.Push(3)

		assert.Equal(t, []int{1, 2}, snap)
		assert.Equal(t, 3, q.Len())
	})
}
