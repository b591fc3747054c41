package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/paintshop/scheduler/internal/vehicle"
)

func TestNewLane(t *testing.T) {
	t.Run("starts empty and available", func(t *testing.T) {
		l := New("L1", 14, false, []vehicle.Color{vehicle.C1})
		assert.Equal(t, "L1", l.ID())
		assert.Equal(t, 14, l.Capacity())
		assert.Equal(t, 0, l.Occupancy())
		assert.True(t, l.IsAvailable())
		assert.Equal(t, vehicle.Color(""), l.CurrentColor())
		assert.False(t, l.IsFull())
	})
}

func TestLaneAdmit(t *testing.T) {
	t.Run("first admission into an empty lane is never a changeover", func(t *testing.T) {
		l := New("L1", 2, false, nil)
		wasChangeover := l.Admit(1, vehicle.C1)
		assert.False(t, wasChangeover)
		assert.Equal(t, 1, l.Occupancy())
		assert.Equal(t, vehicle.C1, l.CurrentColor())
	})

	t.Run("same-color admission is not a changeover", func(t *testing.T) {
		l := New("L1", 3, false, nil)
		l.Admit(1, vehicle.C1)
		wasChangeover := l.Admit(2, vehicle.C1)
		assert.False(t, wasChangeover)
		assert.Equal(t, 2, l.Occupancy())
	})

	t.Run("color change mid-lane is a changeover", func(t *testing.T) {
		l := New("L1", 3, true, nil)
		l.Admit(1, vehicle.C1)
		wasChangeover := l.Admit(2, vehicle.C2)
		assert.True(t, wasChangeover)
		assert.Equal(t, vehicle.C2, l.CurrentColor())
	})

	t.Run("lastColor is left unchanged by a same-color admission", func(t *testing.T) {
		l := New("L1", 3, false, nil)
		l.Admit(1, vehicle.C1)
		snap := l.Snapshot()
		assert.Equal(t, vehicle.Color(""), snap.LastColor)

		l.Admit(2, vehicle.C1)
		snap = l.Snapshot()
		assert.Equal(t, vehicle.Color(""), snap.LastColor)
	})

	t.Run("colorCounts sums to occupancy", func(t *testing.T) {
		l := New("L1", 5, true, nil)
		l.Admit(1, vehicle.C1)
		l.Admit(2, vehicle.C2)
		l.Admit(3, vehicle.C1)
		snap := l.Snapshot()
		sum := 0
		for _, n := range snap.ColorCounts {
			sum += n
		}
		assert.Equal(t, snap.Occupancy, sum)
	})
}

func TestLaneHeadRun(t *testing.T) {
	colorOf := func(carID int) vehicle.Color {
		switch carID {
		case 1, 2, 3:
			return vehicle.C1
		case 4:
			return vehicle.C2
		}
		return ""
	}

	t.Run("empty lane has no head run", func(t *testing.T) {
		l := New("L1", 5, false, nil)
		color, n := l.HeadRun(colorOf)
		assert.Equal(t, vehicle.Color(""), color)
		assert.Equal(t, 0, n)
	})

	t.Run("counts the longest same-color prefix only", func(t *testing.T) {
		l := New("L1", 5, false, nil)
		l.Admit(1, vehicle.C1)
		l.Admit(2, vehicle.C1)
		l.Admit(3, vehicle.C1)
		l.Admit(4, vehicle.C2)

		color, n := l.HeadRun(colorOf)
		assert.Equal(t, vehicle.C1, color)
		assert.Equal(t, 3, n)
	})
}

func TestLaneDrain(t *testing.T) {
	colorOf := func(carID int) vehicle.Color { return vehicle.C1 }

	t.Run("drains from the head in order", func(t *testing.T) {
		l := New("L1", 5, false, nil)
		l.Admit(1, vehicle.C1)
		l.Admit(2, vehicle.C1)
		l.Admit(3, vehicle.C1)

		picked := l.Drain(2, colorOf)
		assert.Equal(t, []int{1, 2}, picked)
		assert.Equal(t, 1, l.Occupancy())
	})

	t.Run("clamps n to the lane's occupancy", func(t *testing.T) {
		l := New("L1", 5, false, nil)
		l.Admit(1, vehicle.C1)

		picked := l.Drain(10, colorOf)
		assert.Equal(t, []int{1}, picked)
		assert.Equal(t, 0, l.Occupancy())
	})

	t.Run("resets currentColor when emptied", func(t *testing.T) {
		l := New("L1", 5, false, nil)
		l.Admit(1, vehicle.C1)
		l.Drain(1, colorOf)
		assert.Equal(t, vehicle.Color(""), l.CurrentColor())
	})
}

func TestLaneAvailability(t *testing.T) {
	t.Run("SetAvailable toggles without evicting vehicles", func(t *testing.T) {
		l := New("L1", 5, false, nil)
		l.Admit(1, vehicle.C1)

		l.SetAvailable(false)
		assert.False(t, l.IsAvailable())
		assert.Equal(t, 1, l.Occupancy())

		l.SetAvailable(true)
		assert.True(t, l.IsAvailable())
	})
}
