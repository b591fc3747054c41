package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paintshop/scheduler/internal/allocator"
	"github.com/paintshop/scheduler/internal/buffer"
	"github.com/paintshop/scheduler/internal/dispatcher"
	"github.com/paintshop/scheduler/internal/metrics"
	"github.com/paintshop/scheduler/internal/vehicle"
)

// stubSource never has anything waiting; tests load vehicles directly via
// Enqueue instead, so Step's reload path always sees zero and can complete.
type stubSource struct {
	cleared []string
}

func (stubSource) LoadWaiting(ctx context.Context, limit int) ([]*vehicle.Vehicle, error) {
	return nil, nil
}

func (s *stubSource) ClearCollection(ctx context.Context, name string) error {
	s.cleared = append(s.cleared, name)
	return nil
}

func newTestEngine() *Engine {
	alloc := allocator.New(nil)
	disp := dispatcher.New(nil)
	agg := metrics.New()
	return New(alloc, disp, agg, &stubSource{}, Sink{})
}

func TestEngineStepOvenToConveyorInOneTick(t *testing.T) {
	t.Run("a lone vehicle is assigned, picked, and completes within one tick", func(t *testing.T) {
		eng := newTestEngine()
		eng.Enqueue(&vehicle.Vehicle{CarID: 1, Color: vehicle.C1, Status: vehicle.StatusWaiting})

		complete := eng.Step(context.Background())

		assert.True(t, complete, "oven step then conveyor pick both run within a single tick")
		snap := eng.Metrics().Snapshot(eng.Lanes())
		assert.Equal(t, 1, snap.Throughput)
	})
}

func TestEngineStepCompletesWhenDrained(t *testing.T) {
	t.Run("returns true once both ovens and every lane are empty with nothing left to load", func(t *testing.T) {
		eng := newTestEngine()
		eng.Enqueue(&vehicle.Vehicle{CarID: 1, Color: vehicle.C1, Status: vehicle.StatusWaiting})

		var complete bool
		for i := 0; i < 20 && !complete; i++ {
			complete = eng.Step(context.Background())
		}
		assert.True(t, complete)
	})

	t.Run("false while at least one vehicle is still in an oven queue", func(t *testing.T) {
		eng := newTestEngine()
		eng.Enqueue(&vehicle.Vehicle{CarID: 1, Color: vehicle.C1, Status: vehicle.StatusWaiting})
		eng.Enqueue(&vehicle.Vehicle{CarID: 2, Color: vehicle.C1, Status: vehicle.StatusWaiting})

		complete := eng.Step(context.Background())
		assert.False(t, complete, "one vehicle remains queued behind OvenProductionRate=1")
	})
}

func TestEngineOvenStepStopsOnAllocationFailure(t *testing.T) {
	t.Run("a full O1 zone halts the oven for the rest of the tick and requeues the vehicle", func(t *testing.T) {
		eng := newTestEngine()

		for _, id := range []string{"L1", "L2"} {
			lane := eng.lanes[id]
			for i := 0; i < lane.Capacity(); i++ {
				lane.Admit(9000+i, vehicle.C1)
			}
		}

		eng.Enqueue(&vehicle.Vehicle{CarID: 1, Color: vehicle.C1, Status: vehicle.StatusWaiting})
		eng.Step(context.Background())

		snap := eng.Metrics().Snapshot(eng.Lanes())
		assert.Equal(t, 1, snap.OverflowEvents)
	})
}

func TestEngineEnqueueAssignsOven(t *testing.T) {
	t.Run("registers the vehicle and assigns its oven from color", func(t *testing.T) {
		eng := newTestEngine()
		v := &vehicle.Vehicle{CarID: 5, Color: vehicle.C1}
		eng.Enqueue(v)
		assert.Equal(t, vehicle.O1, v.Oven)
	})
}

func TestEngineReset(t *testing.T) {
	t.Run("clears lanes, ovens, vehicles and metrics, and clears external collections", func(t *testing.T) {
		eng := newTestEngine()
		eng.Enqueue(&vehicle.Vehicle{CarID: 1, Color: vehicle.C1, Status: vehicle.StatusWaiting})
		eng.Step(context.Background())

		err := eng.Reset()
		require.NoError(t, err)

		assert.Equal(t, int64(0), eng.Tick())
		assert.False(t, eng.IsRunning())
		for _, lane := range eng.Lanes() {
			assert.Equal(t, 0, lane.Occupancy())
		}

		src := eng.source.(*stubSource)
		assert.ElementsMatch(t, []string{"vehicles", "buffers"}, src.cleared)
	})

	t.Run("rejects reset while the loop is running", func(t *testing.T) {
		eng := newTestEngine()
		eng.Start(context.Background(), DefaultTickInterval)

		err := eng.Reset()
		assert.ErrorIs(t, err, ErrRunning)

		eng.Stop()
	})
}

func TestEngineStartStop(t *testing.T) {
	t.Run("Start then Stop leaves the engine not running", func(t *testing.T) {
		eng := newTestEngine()
		eng.Start(context.Background(), DefaultTickInterval)
		assert.True(t, eng.IsRunning())
		eng.Stop()
		assert.False(t, eng.IsRunning())
	})

	t.Run("a second Start call while running is a no-op", func(t *testing.T) {
		eng := newTestEngine()
		eng.Start(context.Background(), DefaultTickInterval)
		eng.Start(context.Background(), DefaultTickInterval)
		eng.Stop()
	})

	t.Run("Stop flushes a final snapshot even when no flush-interval tick boundary was hit", func(t *testing.T) {
		var flushed bool
		alloc := allocator.New(nil)
		disp := dispatcher.New(nil)
		agg := metrics.New()
		eng := New(alloc, disp, agg, &stubSource{}, Sink{
			OnFlush: func(ctx context.Context, snap metrics.Snapshot, lanes map[string]buffer.Snapshot) {
				flushed = true
			},
		})

		eng.Enqueue(&vehicle.Vehicle{CarID: 1, Color: vehicle.C4, Status: vehicle.StatusWaiting})
		eng.Start(context.Background(), time.Hour)
		eng.Stop()

		assert.True(t, flushed, "Stop must guarantee a final flush")
	})
}
