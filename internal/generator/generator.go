// Package generator builds a synthetic vehicle queue from the shop's
// production color distribution, the same way the simulation seeds a fresh
// run before the tick loop starts.
package generator

import (
	"math/rand"

	"github.com/paintshop/scheduler/internal/topology"
	"github.com/paintshop/scheduler/internal/vehicle"
)

// colorOrder fixes the iteration order over colors so that count rounding
// and the remainder absorbed by C1 are deterministic for a given seed.
var colorOrder = []vehicle.Color{
	vehicle.C1, vehicle.C2, vehicle.C3, vehicle.C4, vehicle.C5, vehicle.C6,
	vehicle.C7, vehicle.C8, vehicle.C9, vehicle.C10, vehicle.C11, vehicle.C12,
}

// DefaultCount is the default shift size, matching the source scheduler's
// default vehicle queue length.
const DefaultCount = 900

// Generate builds count vehicles distributed across colors according to
// topology.ColorDistribution, shuffled into a realistic arrival order. seed
// makes the run reproducible; car ids are assigned 1..count before the
// shuffle, in color-order blocks.
func Generate(count int, seed int64) []*vehicle.Vehicle {
	if count <= 0 {
		count = DefaultCount
	}

	colorCounts := make(map[vehicle.Color]int, len(colorOrder))
	assigned := 0
	for _, c := range colorOrder {
		n := int(float64(count) * topology.ColorDistribution[c])
		colorCounts[c] = n
		assigned += n
	}
	colorCounts[vehicle.C1] += count - assigned

	vehicles := make([]*vehicle.Vehicle, 0, count)
	carID := 1
	for _, c := range colorOrder {
		for i := 0; i < colorCounts[c]; i++ {
			vehicles = append(vehicles, &vehicle.Vehicle{
				CarID:    carID,
				Color:    c,
				Oven:     topology.AssignOven(c),
				Status:   vehicle.StatusWaiting,
				Priority: priorityOf(c),
			})
			carID++
		}
	}

	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(vehicles), func(i, j int) {
		vehicles[i], vehicles[j] = vehicles[j], vehicles[i]
	})

	return vehicles
}

// priorityOf extracts the numeric suffix of a color id (C7 -> 7), matching
// the source scheduler's priority-from-color-name convention.
func priorityOf(c vehicle.Color) int {
	n := 0
	for _, r := range string(c) {
		if r < '0' || r > '9' {
			continue
		}
		n = n*10 + int(r-'0')
	}
	return n
}
