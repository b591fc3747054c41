// Package ovenqueue implements the FIFO queue of painted vehicles waiting
// to leave an oven for buffer assignment. Each oven (O1, O2) owns one
// queue; vehicles normally leave from the head, but a vehicle the
// Allocator could not place is pushed back onto the head so it is retried
// first on the next tick.
package ovenqueue

import "sync"

// Queue is a single oven's FIFO backlog of car ids.
type Queue struct {
	mu   sync.Mutex
	cars []int
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{cars: make([]int, 0, 64)}
}

// Push appends a car id to the tail, the normal arrival path.
func (q *Queue) Push(carID int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cars = append(q.cars, carID)
}

// PushFront returns a car id to the head of the queue. Used when the
// Allocator fails to place a vehicle and it must be retried before any
// later arrival.
func (q *Queue) PushFront(carID int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cars = append([]int{carID}, q.cars...)
}

// Pop removes and returns the car id at the head, and whether one existed.
func (q *Queue) Pop() (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.cars) == 0 {
		return 0, false
	}
	carID := q.cars[0]
	q.cars = q.cars[1:]
	return carID, true
}

// Peek returns the head car id without removing it.
func (q *Queue) Peek() (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.cars) == 0 {
		return 0, false
	}
	return q.cars[0], true
}

// Len returns the current backlog size.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.cars)
}

// IsEmpty reports whether the queue has no waiting vehicles.
func (q *Queue) IsEmpty() bool {
	return q.Len() == 0
}

// Snapshot returns a copy of the queue's current car ids, head first.
func (q *Queue) Snapshot() []int {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]int, len(q.cars))
	copy(out, q.cars)
	return out
}
