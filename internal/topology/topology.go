// Package topology holds the static, read-only configuration the scheduling
// core is built against: buffer capacities, per-color preferred buffer
// lists, buffer-to-oven zones, the high-volume color set, and changeover
// penalty weights. Nothing here changes at runtime.
package topology

import "github.com/paintshop/scheduler/internal/vehicle"

// BufferCapacity gives each lane's fixed capacity.
var BufferCapacity = map[string]int{
	"L1": 14, "L2": 14, "L3": 14, "L4": 14,
	"L5": 16, "L6": 16, "L7": 16, "L8": 16, "L9": 16,
}

// PreferredBuffers gives, for each color, the ordered candidate lanes the
// Allocator's priority cascade walks. Order matters: first-match-wins.
var PreferredBuffers = map[vehicle.Color][]string{
	vehicle.C1:  {"L1", "L2"},
	vehicle.C2:  {"L3", "L2", "L4"},
	vehicle.C3:  {"L4", "L2"},
	vehicle.C4:  {"L5", "L9"},
	vehicle.C5:  {"L5", "L9"},
	vehicle.C6:  {"L6", "L9"},
	vehicle.C7:  {"L6", "L9"},
	vehicle.C8:  {"L7", "L9"},
	vehicle.C9:  {"L7", "L9"},
	vehicle.C10: {"L8", "L9"},
	vehicle.C11: {"L8", "L9"},
	vehicle.C12: {"L9"},
}

// OvenZoneLanes lists, per oven, the lanes in that oven's zone.
var OvenZoneLanes = map[vehicle.Oven][]string{
	vehicle.O1: {"L1", "L2", "L3", "L4"},
	vehicle.O2: {"L5", "L6", "L7", "L8", "L9"},
}

// LaneOven maps each lane to the oven zone it belongs to.
var LaneOven = map[string]vehicle.Oven{
	"L1": vehicle.O1, "L2": vehicle.O1, "L3": vehicle.O1, "L4": vehicle.O1,
	"L5": vehicle.O2, "L6": vehicle.O2, "L7": vehicle.O2, "L8": vehicle.O2, "L9": vehicle.O2,
}

// FlexLanes marks lanes that accept more than one primary color.
var FlexLanes = map[string]bool{
	"L2": true, "L4": true, "L9": true,
}

// PrimaryColors lists each lane's static primary color set, used for
// reporting only — admission is governed by PreferredBuffers, not this.
var PrimaryColors = map[string][]vehicle.Color{
	"L1": {vehicle.C1},
	"L2": {vehicle.C1, vehicle.C2},
	"L3": {vehicle.C2},
	"L4": {vehicle.C2, vehicle.C3},
	"L5": {vehicle.C4, vehicle.C5},
	"L6": {vehicle.C6, vehicle.C7},
	"L7": {vehicle.C8, vehicle.C9},
	"L8": {vehicle.C10, vehicle.C11},
	"L9": {vehicle.C12},
}

// HighVolumeColors is the set driving oven assignment: high-volume colors
// are painted in O1, everything else in O2.
var HighVolumeColors = map[vehicle.Color]bool{
	vehicle.C1: true,
	vehicle.C2: true,
	vehicle.C3: true,
}

// ColorDistribution gives the production proportions used by the external
// input generator (not consulted by the core itself).
var ColorDistribution = map[vehicle.Color]float64{
	vehicle.C1: 0.40, vehicle.C2: 0.25, vehicle.C3: 0.12, vehicle.C4: 0.08,
	vehicle.C5: 0.03, vehicle.C6: 0.02, vehicle.C7: 0.02, vehicle.C8: 0.02,
	vehicle.C9: 0.02, vehicle.C10: 0.02, vehicle.C11: 0.02, vehicle.C12: 0.01,
}

// Changeover penalty weights, in seconds.
const (
	PenaltyBase            = 60
	PenaltyHighVolume      = 30
	PenaltyLargeBatch      = 20
	LargeBatchThreshold    = 5
	EfficiencyShiftSeconds = 28800
	O2StoppageLostSeconds  = 120

	// MaxConveyorPick caps how many vehicles the dispatcher drains from a
	// single lane in one pick, even if the head run is longer.
	MaxConveyorPick = 10
)

// AssignOven returns the oven a color is painted in: O1 for high-volume
// colors, O2 otherwise.
func AssignOven(c vehicle.Color) vehicle.Oven {
	if HighVolumeColors[c] {
		return vehicle.O1
	}
	return vehicle.O2
}

// LaneOrder is the fixed iteration order L1..L9, used anywhere the spec
// requires "lane-id order" (the conveyor dispatcher's scan, occupancy
// summaries).
var LaneOrder = []string{"L1", "L2", "L3", "L4", "L5", "L6", "L7", "L8", "L9"}
