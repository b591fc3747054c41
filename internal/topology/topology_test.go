package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/paintshop/scheduler/internal/vehicle"
)

func TestAssignOven(t *testing.T) {
	t.Run("high-volume colors go to O1", func(t *testing.T) {
		assert.Equal(t, vehicle.O1, AssignOven(vehicle.C1))
		assert.Equal(t, vehicle.O1, AssignOven(vehicle.C2))
		assert.Equal(t, vehicle.O1, AssignOven(vehicle.C3))
	})

	t.Run("everything else goes to O2", func(t *testing.T) {
		assert.Equal(t, vehicle.O2, AssignOven(vehicle.C4))
		assert.Equal(t, vehicle.O2, AssignOven(vehicle.C12))
	})
}

func TestColorDistributionSumsToOne(t *testing.T) {
	t.Run("production proportions sum to ~1.01", func(t *testing.T) {
		total := 0.0
		for _, pct := range ColorDistribution {
			total += pct
		}
		assert.InDelta(t, 1.01, total, 0.001)
	})
}

func TestLaneOrderCoversEveryLane(t *testing.T) {
	t.Run("every lane has a capacity and oven zone", func(t *testing.T) {
		for _, id := range LaneOrder {
			assert.Contains(t, BufferCapacity, id)
			assert.Contains(t, LaneOven, id)
		}
	})
}
