// Package buffer implements the finite-capacity FIFO buffer lane that sits
// between a paint oven and the conveyor. Each Lane owns its own vehicle
// list, occupancy counters, and color bookkeeping; the invariants in the
// package doc below must hold after every exported mutation.
//
// Invariants:
//   - occupancy == len(vehicles) <= capacity
//   - sum(colorCounts) == occupancy
//   - currentColor == "" iff occupancy == 0
package buffer

import (
	"sync"

	"github.com/paintshop/scheduler/internal/vehicle"
)

// Lane is a single buffer lane, identified by a short id like "L1".
type Lane struct {
	mu sync.Mutex

	id            string
	capacity      int
	vehicles      []int // car ids, head = index 0 = next to drain
	occupancy     int
	currentColor  vehicle.Color // "" when empty
	lastColor     vehicle.Color // color current before the last true changeover
	colorCounts   map[vehicle.Color]int
	isAvailable   bool
	isFlex        bool
	primaryColors []vehicle.Color
}

// New creates an empty, available lane with the given static metadata.
func New(id string, capacity int, isFlex bool, primaryColors []vehicle.Color) *Lane {
	return &Lane{
		id:            id,
		capacity:      capacity,
		vehicles:      make([]int, 0, capacity),
		colorCounts:   make(map[vehicle.Color]int),
		isAvailable:   true,
		isFlex:        isFlex,
		primaryColors: primaryColors,
	}
}

// ID returns the lane's identity.
func (l *Lane) ID() string { return l.id }

// Capacity returns the lane's fixed capacity.
func (l *Lane) Capacity() int { return l.capacity }

// IsFull reports whether the lane has no free space.
func (l *Lane) IsFull() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.occupancy >= l.capacity
}

// IsAvailable reports whether the lane currently accepts admissions.
func (l *Lane) IsAvailable() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isAvailable
}

// SetAvailable toggles maintenance mode. It never evicts vehicles already
// in the lane; it only suppresses future admissions.
func (l *Lane) SetAvailable(available bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.isAvailable = available
}

// Occupancy returns the current vehicle count.
func (l *Lane) Occupancy() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.occupancy
}

// CurrentColor returns the color of the most recently admitted vehicle, or
// "" if the lane is empty.
func (l *Lane) CurrentColor() vehicle.Color {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentColor
}

// AvailableSpace returns the lane's free capacity.
func (l *Lane) AvailableSpace() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.capacity - l.occupancy
}

// Admit appends carID/color to the tail of the lane. Callers (the
// Allocator) must already have verified admissibility — Admit performs the
// mutation and invariant bookkeeping only; it does not itself check
// capacity or availability. It returns whether this admission was a true
// changeover (lane non-empty and currentColor differed from color).
func (l *Lane) Admit(carID int, color vehicle.Color) (wasChangeover bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	wasEmpty := l.occupancy == 0
	wasChangeover = !wasEmpty && l.currentColor != color

	l.vehicles = append(l.vehicles, carID)
	l.occupancy++
	l.colorCounts[color]++

	if wasChangeover {
		l.lastColor = l.currentColor
	}
	l.currentColor = color

	return wasChangeover
}

// HeadRun returns the color and length of the longest same-color prefix of
// the lane's vehicle list. Returns ("", 0) for an empty lane.
func (l *Lane) HeadRun(colorOf func(carID int) vehicle.Color) (vehicle.Color, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.vehicles) == 0 {
		return "", 0
	}

	first := colorOf(l.vehicles[0])
	n := 1
	for _, carID := range l.vehicles[1:] {
		if colorOf(carID) != first {
			break
		}
		n++
	}
	return first, n
}

// Drain removes up to n vehicles from the head of the lane, decrementing
// occupancy and per-color counts. It returns the car ids removed, in head
// order. If the lane becomes empty, currentColor resets to "".
func (l *Lane) Drain(n int, colorOf func(carID int) vehicle.Color) []int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n > len(l.vehicles) {
		n = len(l.vehicles)
	}

	picked := make([]int, n)
	for i := 0; i < n; i++ {
		carID := l.vehicles[i]
		picked[i] = carID
		l.occupancy--
		c := colorOf(carID)
		if l.colorCounts[c] > 0 {
			l.colorCounts[c]--
		}
	}
	l.vehicles = l.vehicles[n:]

	if l.occupancy == 0 {
		l.currentColor = ""
	}

	return picked
}

// Snapshot is a deep-copied, read-only view of a lane's state for external
// consumption (gateway reads, persistence writes, telemetry).
type Snapshot struct {
	ID            string
	Capacity      int
	Occupancy     int
	CurrentColor  vehicle.Color
	LastColor     vehicle.Color
	Vehicles      []int
	ColorCounts   map[vehicle.Color]int
	IsAvailable   bool
	IsFlex        bool
	PrimaryColors []vehicle.Color
}

// Snapshot returns a deep copy of the lane's current state.
func (l *Lane) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	vehicles := make([]int, len(l.vehicles))
	copy(vehicles, l.vehicles)

	counts := make(map[vehicle.Color]int, len(l.colorCounts))
	for k, v := range l.colorCounts {
		counts[k] = v
	}

	primary := make([]vehicle.Color, len(l.primaryColors))
	copy(primary, l.primaryColors)

	return Snapshot{
		ID:            l.id,
		Capacity:      l.capacity,
		Occupancy:     l.occupancy,
		CurrentColor:  l.currentColor,
		LastColor:     l.lastColor,
		Vehicles:      vehicles,
		ColorCounts:   counts,
		IsAvailable:   l.isAvailable,
		IsFlex:        l.isFlex,
		PrimaryColors: primary,
	}
}
