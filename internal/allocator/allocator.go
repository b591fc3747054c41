// Package allocator implements the Allocator: the priority cascade that
// picks a buffer lane for a vehicle leaving an oven, tracks changeovers,
// and assigns batch ids.
package allocator

import (
	"context"
	"fmt"
	"sync"

	"github.com/paintshop/scheduler/internal/buffer"
	"github.com/paintshop/scheduler/internal/topology"
	"github.com/paintshop/scheduler/internal/vehicle"
	"github.com/paintshop/scheduler/pkg/messaging"
)

// Lanes is the subset of buffer state the Allocator needs to read and
// mutate. internal/engine wires a concrete *buffer.Lane set satisfying it
// via the laneSet adapter below.
type Lanes interface {
	Lane(id string) *buffer.Lane
}

// laneSet is the concrete Lanes implementation the engine constructs.
type laneSet struct {
	byID map[string]*buffer.Lane
}

// NewLaneSet builds a Lanes view over the given lane instances.
func NewLaneSet(lanes map[string]*buffer.Lane) Lanes {
	return &laneSet{byID: lanes}
}

func (s *laneSet) Lane(id string) *buffer.Lane { return s.byID[id] }

// Outcome is the result of one assignment attempt.
type Outcome struct {
	Success           bool
	CarID             int
	Color             vehicle.Color
	Oven              vehicle.Oven
	Buffer            string
	BatchID           string
	ChangeoverPenalty int
	BufferOccupancy   int
	BufferCapacity    int
	Error             string
}

// Allocator assigns vehicles to buffer lanes using the fixed priority
// cascade: continue an existing same-color batch, then an empty lane, then
// (for O1 colors) prefer staying inside the O1 zone unless every O1 lane is
// full, then minimize changeover penalty among what's left.
type Allocator struct {
	mu            sync.Mutex
	batchCounters map[vehicle.Color]int

	msgClient *messaging.Client
}

// New creates an Allocator. msgClient may be nil, in which case assignment
// events are silently dropped instead of published — used by tests and any
// deployment running without a message bus.
func New(msgClient *messaging.Client) *Allocator {
	return &Allocator{
		batchCounters: make(map[vehicle.Color]int),
		msgClient:     msgClient,
	}
}

// changeoverPenalty mirrors the fixed penalty table: no penalty for an
// empty or same-color lane, otherwise base + high-volume + large-batch
// surcharges.
func changeoverPenalty(current vehicle.Color, occupancy int, newColor vehicle.Color) int {
	if current == "" || occupancy == 0 {
		return 0
	}
	if current == newColor {
		return 0
	}

	penalty := topology.PenaltyBase
	if topology.HighVolumeColors[current] || topology.HighVolumeColors[newColor] {
		penalty += topology.PenaltyHighVolume
	}
	if occupancy > topology.LargeBatchThreshold {
		penalty += topology.PenaltyLargeBatch
	}
	return penalty
}

// findBestBuffer walks the color's preferred-buffer list and returns the
// chosen lane id and its changeover penalty, or ("", -1) if every
// candidate is unavailable or full.
func findBestBuffer(lanes Lanes, color vehicle.Color, oven vehicle.Oven) (string, int) {
	candidates := topology.PreferredBuffers[color]

	bestID := ""
	minPenalty := -1

	for _, laneID := range candidates {
		lane := lanes.Lane(laneID)
		if lane == nil || !lane.IsAvailable() || lane.IsFull() {
			continue
		}

		// Priority 1: continue an existing same-color batch.
		if lane.CurrentColor() == color && lane.AvailableSpace() > 0 {
			return laneID, 0
		}

		// Priority 2: an empty lane costs nothing.
		if lane.Occupancy() == 0 {
			return laneID, 0
		}

		// Priority 3: suppress O1 -> O2 cross-zone routing while O1 still
		// has room anywhere in its own zone. Preserved one-directional:
		// O2 vehicles are never suppressed from routing into O1 lanes.
		if topology.LaneOven[laneID] != oven && oven == vehicle.O1 {
			if o1HasSpace(lanes) {
				continue
			}
		}

		// Priority 4: minimize changeover penalty among what's left.
		penalty := changeoverPenalty(lane.CurrentColor(), lane.Occupancy(), color)
		if minPenalty == -1 || penalty < minPenalty {
			minPenalty = penalty
			bestID = laneID
		}
	}

	if bestID == "" {
		return "", -1
	}
	return bestID, minPenalty
}

func o1HasSpace(lanes Lanes) bool {
	for _, id := range topology.OvenZoneLanes[vehicle.O1] {
		if lane := lanes.Lane(id); lane != nil && !lane.IsFull() {
			return true
		}
	}
	return false
}

// Assign runs the full allocation pipeline for one vehicle: oven
// assignment, buffer selection, changeover/stoppage bookkeeping, batch id
// assignment, and lane admission. It mutates the target lane and the
// vehicle record in place, and publishes an event on success or rejection.
func (a *Allocator) Assign(ctx context.Context, lanes Lanes, v *vehicle.Vehicle) Outcome {
	v.Oven = topology.AssignOven(v.Color)

	laneID, penalty := findBestBuffer(lanes, v.Color, v.Oven)
	if laneID == "" {
		out := Outcome{
			Success: false,
			CarID:   v.CarID,
			Color:   v.Color,
			Oven:    v.Oven,
			Error:   "ALL BUFFERS FULL - PRODUCTION HALT",
		}
		a.publishRejected(ctx, out)
		return out
	}

	lane := lanes.Lane(laneID)

	a.mu.Lock()
	if lane.CurrentColor() != v.Color || lane.Occupancy() == 0 {
		a.batchCounters[v.Color]++
	}
	batchID := fmt.Sprintf("B-%s-%03d", v.Color, a.batchCounters[v.Color])
	a.mu.Unlock()

	lane.Admit(v.CarID, v.Color)

	v.Buffer = laneID
	v.Status = vehicle.StatusInBuffer
	v.BatchID = batchID

	out := Outcome{
		Success:           true,
		CarID:             v.CarID,
		Color:             v.Color,
		Oven:              v.Oven,
		Buffer:            laneID,
		BatchID:           batchID,
		ChangeoverPenalty: penalty,
		BufferOccupancy:   lane.Occupancy(),
		BufferCapacity:    lane.Capacity(),
	}

	a.publishAssigned(ctx, out)
	return out
}

// IsO2Stoppage reports whether an outcome represents an O1 vehicle routed
// into an O2-zone lane — the one-directional stoppage condition tracked by
// metrics.
func IsO2Stoppage(o Outcome) bool {
	if !o.Success || o.Oven != vehicle.O1 {
		return false
	}
	return topology.LaneOven[o.Buffer] == vehicle.O2
}

func (a *Allocator) publishAssigned(ctx context.Context, o Outcome) {
	if a.msgClient == nil {
		return
	}
	event := messaging.VehicleAssignedEvent{
		CarID:             o.CarID,
		Color:             string(o.Color),
		Oven:              string(o.Oven),
		Buffer:            o.Buffer,
		BatchID:           o.BatchID,
		ChangeoverPenalty: o.ChangeoverPenalty,
		BufferOccupancy:   o.BufferOccupancy,
		BufferCapacity:    o.BufferCapacity,
	}
	_ = a.msgClient.Publish(ctx, messaging.EventTypeVehicleAssigned, event)

	if o.ChangeoverPenalty > 0 {
		_ = a.msgClient.Publish(ctx, messaging.EventTypeChangeover, messaging.ChangeoverEvent{
			Location:       "buffer",
			LaneID:         o.Buffer,
			ToColor:        string(o.Color),
			PenaltySeconds: o.ChangeoverPenalty,
		})
	}

	if IsO2Stoppage(o) {
		_ = a.msgClient.Publish(ctx, messaging.EventTypeO2Stoppage, messaging.O2StoppageEvent{
			CarID:  o.CarID,
			Color:  string(o.Color),
			Buffer: o.Buffer,
		})
	}
}

func (a *Allocator) publishRejected(ctx context.Context, o Outcome) {
	if a.msgClient == nil {
		return
	}
	_ = a.msgClient.Publish(ctx, messaging.EventTypeVehicleRejected, messaging.VehicleRejectedEvent{
		CarID:  o.CarID,
		Color:  string(o.Color),
		Oven:   string(o.Oven),
		Reason: o.Error,
	})
}
