// Package metrics implements the Metrics Aggregator: running counters fed
// by the Allocator and Dispatcher, plus the derived efficiency and zone
// occupancy figures exported on demand.
package metrics

import (
	"sync"

	"github.com/paintshop/scheduler/internal/buffer"
	"github.com/paintshop/scheduler/internal/topology"
	"github.com/paintshop/scheduler/internal/vehicle"
	pkgdecimal "github.com/paintshop/scheduler/pkg/decimal"
)

// Aggregator accumulates scheduling counters and derives shift-level
// statistics from them. All mutation methods are safe for concurrent use,
// though in practice only the single tick-engine goroutine calls them.
type Aggregator struct {
	mu sync.RWMutex

	vehiclesProcessed    int
	totalChangeovers     int
	o2StoppageEvents     int
	overflowEvents       int
	bufferOverflowEvents int
	throughput           int
	lastPaintedColor     vehicle.Color
	currentTick          int64
	running              bool
}

// New creates an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{}
}

// RecordAssignment updates counters for one allocator outcome: a buffer
// admission always increments vehicles processed, a changeover penalty
// bumps total changeovers, and an O1->O2 stoppage bumps its own counter.
func (a *Aggregator) RecordAssignment(changeoverPenalty int, isO2Stoppage bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.vehiclesProcessed++
	if changeoverPenalty > 0 {
		a.totalChangeovers++
	}
	if isO2Stoppage {
		a.o2StoppageEvents++
	}
}

// RecordOverflow marks a vehicle that could not be placed in any buffer.
func (a *Aggregator) RecordOverflow() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.overflowEvents++
	a.bufferOverflowEvents++
}

// RecordPick updates counters for one dispatcher pick: throughput grows by
// the number of vehicles drained, and a conveyor-side color switch from the
// previous pick counts as an additional changeover.
func (a *Aggregator) RecordPick(color vehicle.Color, count int, wasChangeover bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.throughput += count
	if wasChangeover {
		a.totalChangeovers++
	}
	if count > 0 {
		a.lastPaintedColor = color
	}
}

// SetTick records the engine's current tick number, for snapshot export.
func (a *Aggregator) SetTick(tick int64, running bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentTick = tick
	a.running = running
}

// Snapshot is a point-in-time, read-only export of every metric plus the
// derived figures.
type Snapshot struct {
	VehiclesProcessed    int
	TotalChangeovers     int
	O2StoppageEvents     int
	OverflowEvents       int
	BufferOverflowEvents int
	Throughput           int
	EfficiencyPercent    float64
	TotalLostTimeSeconds int64
	CurrentTick          int64
	Running              bool
	LastPaintedColor     vehicle.Color
	Oven1Occupancy       int
	Oven2Occupancy       int
	Oven1Capacity        int
	Oven2Capacity        int
}

// Snapshot derives a full metrics export. lanes supplies the live buffer
// state needed for zone occupancy sums; it may be nil to skip that part
// (used by tests that don't wire real lanes).
func (a *Aggregator) Snapshot(lanes map[string]*buffer.Lane) Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var o1Occ, o2Occ int
	if lanes != nil {
		for _, id := range topology.OvenZoneLanes[vehicle.O1] {
			if l := lanes[id]; l != nil {
				o1Occ += l.Occupancy()
			}
		}
		for _, id := range topology.OvenZoneLanes[vehicle.O2] {
			if l := lanes[id]; l != nil {
				o2Occ += l.Occupancy()
			}
		}
	}

	changeoverTime := pkgdecimal.NewSeconds(int64(a.totalChangeovers) * topology.PenaltyBase)
	stoppageTime := pkgdecimal.NewSeconds(int64(a.o2StoppageEvents) * topology.O2StoppageLostSeconds)
	totalLost := changeoverTime.Add(stoppageTime)

	efficiency := pkgdecimal.EfficiencyPercent(totalLost, pkgdecimal.NewSeconds(topology.EfficiencyShiftSeconds))

	return Snapshot{
		VehiclesProcessed:    a.vehiclesProcessed,
		TotalChangeovers:     a.totalChangeovers,
		O2StoppageEvents:     a.o2StoppageEvents,
		OverflowEvents:       a.overflowEvents,
		BufferOverflowEvents: a.bufferOverflowEvents,
		Throughput:           a.throughput,
		EfficiencyPercent:    efficiency.Float64(),
		TotalLostTimeSeconds: totalLost.Int64(),
		CurrentTick:          a.currentTick,
		Running:              a.running,
		LastPaintedColor:     a.lastPaintedColor,
		Oven1Occupancy:       o1Occ,
		Oven2Occupancy:       o2Occ,
		Oven1Capacity:        56,
		Oven2Capacity:        80,
	}
}

// Reset clears every counter, used when the engine resets the simulation.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.vehiclesProcessed = 0
	a.totalChangeovers = 0
	a.o2StoppageEvents = 0
	a.overflowEvents = 0
	a.bufferOverflowEvents = 0
	a.throughput = 0
	a.lastPaintedColor = ""
	a.currentTick = 0
	a.running = false
}
