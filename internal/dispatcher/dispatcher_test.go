package dispatcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paintshop/scheduler/internal/buffer"
	"github.com/paintshop/scheduler/internal/topology"
	"github.com/paintshop/scheduler/internal/vehicle"
)

func carColors(colorByCar map[int]vehicle.Color) func(int) vehicle.Color {
	return func(carID int) vehicle.Color { return colorByCar[carID] }
}

func newLanes() map[string]*buffer.Lane {
	lanes := make(map[string]*buffer.Lane, len(topology.LaneOrder))
	for _, id := range topology.LaneOrder {
		lanes[id] = buffer.New(id, topology.BufferCapacity[id], topology.FlexLanes[id], topology.PrimaryColors[id])
	}
	return lanes
}

func TestDispatcherPick(t *testing.T) {
	t.Run("empty lanes yield an empty pick", func(t *testing.T) {
		d := New(nil)
		pick := d.Pick(context.Background(), newLanes(), func(int) vehicle.Color { return "" })
		assert.Empty(t, pick.CarIDs)
	})

	t.Run("drains the longest head run", func(t *testing.T) {
		lanes := newLanes()
		colorByCar := map[int]vehicle.Color{1: vehicle.C1, 2: vehicle.C1, 3: vehicle.C2}
		lanes["L1"].Admit(1, vehicle.C1)
		lanes["L1"].Admit(2, vehicle.C1)
		lanes["L3"].Admit(3, vehicle.C2)

		d := New(nil)
		pick := d.Pick(context.Background(), lanes, carColors(colorByCar))

		require.Len(t, pick.CarIDs, 2)
		assert.Equal(t, "L1", pick.LaneID)
		assert.Equal(t, vehicle.C1, pick.Color)
	})

	t.Run("caps a pick at MaxConveyorPick even with a longer run", func(t *testing.T) {
		lanes := newLanes()
		colorByCar := map[int]vehicle.Color{}
		for i := 1; i <= topology.MaxConveyorPick+4; i++ {
			colorByCar[i] = vehicle.C1
			lanes["L1"].Admit(i, vehicle.C1)
		}

		d := New(nil)
		pick := d.Pick(context.Background(), lanes, carColors(colorByCar))

		assert.Len(t, pick.CarIDs, topology.MaxConveyorPick)
	})

	t.Run("tie-break overwrites the incumbent unconditionally when the later lane matches lastPaintedColor", func(t *testing.T) {
		lanes := newLanes()
		colorByCar := map[int]vehicle.Color{1: vehicle.C1, 2: vehicle.C1, 3: vehicle.C2, 4: vehicle.C2}
		lanes["L1"].Admit(1, vehicle.C1)
		lanes["L1"].Admit(2, vehicle.C1)
		lanes["L3"].Admit(3, vehicle.C2)
		lanes["L3"].Admit(4, vehicle.C2)

		d := New(nil)
		d.lastPaintedColor = vehicle.C2

		pick := d.Pick(context.Background(), lanes, carColors(colorByCar))

		assert.Equal(t, "L3", pick.LaneID, "later lane wins the tie because it matches lastPaintedColor")
		assert.Equal(t, vehicle.C2, pick.Color)
	})

	t.Run("reports a changeover when the picked color differs from the last one painted", func(t *testing.T) {
		lanes := newLanes()
		colorByCar := map[int]vehicle.Color{1: vehicle.C1}
		lanes["L1"].Admit(1, vehicle.C1)

		d := New(nil)
		d.lastPaintedColor = vehicle.C2

		pick := d.Pick(context.Background(), lanes, carColors(colorByCar))
		assert.True(t, pick.WasChangeover)
		assert.Equal(t, vehicle.C1, d.LastPaintedColor())
	})

	t.Run("first ever pick is never a changeover", func(t *testing.T) {
		lanes := newLanes()
		colorByCar := map[int]vehicle.Color{1: vehicle.C1}
		lanes["L1"].Admit(1, vehicle.C1)

		d := New(nil)
		pick := d.Pick(context.Background(), lanes, carColors(colorByCar))
		assert.False(t, pick.WasChangeover)
	})
}
