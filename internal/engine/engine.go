// Package engine implements the Tick Engine: the single cooperative loop
// that owns every mutable scheduling structure (buffers, oven queues,
// metrics) and drives them forward one tick at a time.
package engine

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/paintshop/scheduler/internal/allocator"
	"github.com/paintshop/scheduler/internal/buffer"
	"github.com/paintshop/scheduler/internal/dispatcher"
	"github.com/paintshop/scheduler/internal/metrics"
	"github.com/paintshop/scheduler/internal/ovenqueue"
	"github.com/paintshop/scheduler/internal/topology"
	"github.com/paintshop/scheduler/internal/vehicle"
)

// ErrRunning is returned by Reset when the tick loop is still active.
// Reset may only run after Stop has completed.
var ErrRunning = errors.New("engine: reset rejected, loop is running")

// InitialLoadLimit and ReloadLimit cap how many waiting vehicles the
// engine pulls from the Source per load, matching the source scheduler's
// 500-on-start / 200-on-reload behavior.
const (
	InitialLoadLimit = 500
	ReloadLimit      = 200

	// OvenProductionRate is how many vehicles each oven advances per tick.
	OvenProductionRate = 1

	// FlushInterval is how often (in ticks) the engine flushes a metrics
	// snapshot out to its external collaborators.
	FlushInterval = 10

	// DefaultTickInterval paces the loop when run under Start; Step can be
	// called directly by tests or an external driver on its own cadence.
	DefaultTickInterval = 500 * time.Millisecond
)

// Source supplies waiting vehicles to load into oven queues and clears
// external persistence collections on Reset. Persistence implements this;
// tests can stub it.
type Source interface {
	LoadWaiting(ctx context.Context, limit int) ([]*vehicle.Vehicle, error)
	ClearCollection(ctx context.Context, name string) error
}

// Sink receives state changes for external durability/telemetry. Nil
// sub-fields are valid — the engine treats a nil func as "nothing to do."
// OnFlush and OnTelemetry are invoked concurrently on every flush, since
// one writes to Postgres/Redis and the other to InfluxDB and neither
// should block the other.
type Sink struct {
	OnVehicleUpdate func(ctx context.Context, updates []vehicle.Update)
	OnFlush         func(ctx context.Context, snap metrics.Snapshot, lanes map[string]buffer.Snapshot)
	OnTelemetry     func(ctx context.Context, snap metrics.Snapshot)
}

// Engine owns the buffer lanes, oven queues, allocator, dispatcher, and
// metrics aggregator, and advances them one tick at a time. Only the
// engine's own goroutine (the loop started by Start, or a caller driving
// Step directly) mutates this state; every other package observes it
// through snapshots.
type Engine struct {
	lanes      map[string]*buffer.Lane
	laneSet    allocator.Lanes
	ovens      map[vehicle.Oven]*ovenqueue.Queue
	vehicles   map[int]*vehicle.Vehicle
	vehiclesMu sync.RWMutex

	alloc *allocator.Allocator
	disp  *dispatcher.Dispatcher
	agg   *metrics.Aggregator

	source Source
	sink   Sink

	tick    int64
	running bool
	mu      sync.Mutex

	shutdown chan struct{}
	wg       sync.WaitGroup
}

// New constructs an Engine with freshly initialized lanes and oven queues.
func New(alloc *allocator.Allocator, disp *dispatcher.Dispatcher, agg *metrics.Aggregator, source Source, sink Sink) *Engine {
	lanes := make(map[string]*buffer.Lane, len(topology.LaneOrder))
	for _, id := range topology.LaneOrder {
		lanes[id] = buffer.New(id, topology.BufferCapacity[id], topology.FlexLanes[id], topology.PrimaryColors[id])
	}

	return &Engine{
		lanes:    lanes,
		laneSet:  allocator.NewLaneSet(lanes),
		ovens:    map[vehicle.Oven]*ovenqueue.Queue{vehicle.O1: ovenqueue.New(), vehicle.O2: ovenqueue.New()},
		vehicles: make(map[int]*vehicle.Vehicle),
		alloc:    alloc,
		disp:     disp,
		agg:      agg,
		source:   source,
		sink:     sink,
		shutdown: make(chan struct{}),
	}
}

// colorOf looks up a car's color for the buffer package's head-run and
// drain helpers.
func (e *Engine) colorOf(carID int) vehicle.Color {
	e.vehiclesMu.RLock()
	defer e.vehiclesMu.RUnlock()
	if v := e.vehicles[carID]; v != nil {
		return v.Color
	}
	return ""
}

// Enqueue registers a newly-generated vehicle and pushes it onto its
// oven's queue. Used by Start for the initial load and by Step for a
// reload, both fed from Source.LoadWaiting.
func (e *Engine) Enqueue(v *vehicle.Vehicle) {
	v.Oven = topology.AssignOven(v.Color)
	e.vehiclesMu.Lock()
	e.vehicles[v.CarID] = v
	e.vehiclesMu.Unlock()
	e.ovens[v.Oven].Push(v.CarID)
}

// Start launches the tick loop on its own goroutine, ticking every
// interval until Stop is called or the simulation completes on its own
// (both oven queues and every lane empty, with no more waiting vehicles to
// load).
func (e *Engine) Start(ctx context.Context, interval time.Duration) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.shutdown = make(chan struct{})
	e.mu.Unlock()

	if e.source != nil {
		if loaded, err := e.source.LoadWaiting(ctx, InitialLoadLimit); err == nil {
			for _, v := range loaded {
				e.Enqueue(v)
			}
		} else {
			log.Printf("engine: initial load failed: %v", err)
		}
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				done := e.Step(ctx)
				if done {
					e.mu.Lock()
					e.running = false
					e.mu.Unlock()
					return
				}
			case <-e.shutdown:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop signals the loop to exit, waits for it to finish, and guarantees a
// final metrics flush before returning (spec: "Stop ... guarantees a final
// metrics flush"). A Step that completed the simulation on its own already
// flushed and has set running false, so Stop on an already-stopped engine
// is a no-op and does not flush again.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.shutdown)
	e.mu.Unlock()
	e.wg.Wait()

	e.mu.Lock()
	tick := e.tick
	e.mu.Unlock()
	e.flush(context.Background(), tick)
}

// IsRunning reports whether the tick loop is currently active.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Tick returns the current tick count.
func (e *Engine) Tick() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tick
}

// Step runs exactly one tick: process each oven, run the conveyor pick,
// reload waiting vehicles if both ovens ran dry, and flush a snapshot
// every FlushInterval ticks. It returns true when the simulation has
// naturally completed (nothing left anywhere in the system).
func (e *Engine) Step(ctx context.Context) bool {
	e.mu.Lock()
	e.tick++
	tick := e.tick
	e.mu.Unlock()

	e.ovenStep(ctx, vehicle.O1)
	e.ovenStep(ctx, vehicle.O2)

	pick := e.disp.Pick(ctx, e.lanes, e.colorOf)
	if len(pick.CarIDs) > 0 {
		e.agg.RecordPick(pick.Color, len(pick.CarIDs), pick.WasChangeover)
		e.markPainted(pick.CarIDs)
	}

	complete := false
	if e.ovens[vehicle.O1].IsEmpty() && e.ovens[vehicle.O2].IsEmpty() {
		loaded := 0
		if e.source != nil {
			if vs, err := e.source.LoadWaiting(ctx, ReloadLimit); err == nil {
				for _, v := range vs {
					e.Enqueue(v)
				}
				loaded = len(vs)
			} else {
				log.Printf("engine: reload failed: %v", err)
			}
		}
		if loaded == 0 && e.totalOccupancy() == 0 {
			complete = true
		}
	}

	e.agg.SetTick(tick, !complete)

	if tick%FlushInterval == 0 || complete {
		e.flush(ctx, tick)
	}

	return complete
}

// ovenStep drains up to OvenProductionRate vehicles from one oven's queue
// through the allocator. A vehicle the allocator cannot place is pushed
// back onto the head of the queue and the oven stops for this tick,
// mirroring the source scheduler's requeue-and-pause behavior.
func (e *Engine) ovenStep(ctx context.Context, oven vehicle.Oven) {
	q := e.ovens[oven]
	for i := 0; i < OvenProductionRate; i++ {
		carID, ok := q.Pop()
		if !ok {
			return
		}

		e.vehiclesMu.RLock()
		v := e.vehicles[carID]
		e.vehiclesMu.RUnlock()
		if v == nil {
			continue
		}

		outcome := e.alloc.Assign(ctx, e.laneSet, v)
		if !outcome.Success {
			q.PushFront(carID)
			e.agg.RecordOverflow()
			return
		}

		e.agg.RecordAssignment(outcome.ChangeoverPenalty, allocator.IsO2Stoppage(outcome))
		e.reportUpdate(ctx, v)
	}
}

func (e *Engine) markPainted(carIDs []int) {
	e.vehiclesMu.Lock()
	updates := make([]vehicle.Update, 0, len(carIDs))
	for _, carID := range carIDs {
		if v := e.vehicles[carID]; v != nil {
			v.Status = vehicle.StatusPainted
			v.Buffer = ""
			status := vehicle.StatusPainted
			empty := ""
			updates = append(updates, vehicle.Update{CarID: carID, Fields: vehicle.Fields{Status: &status, Buffer: &empty}})
		}
	}
	e.vehiclesMu.Unlock()

	if e.sink.OnVehicleUpdate != nil && len(updates) > 0 {
		e.sink.OnVehicleUpdate(context.Background(), updates)
	}
}

func (e *Engine) reportUpdate(ctx context.Context, v *vehicle.Vehicle) {
	if e.sink.OnVehicleUpdate == nil {
		return
	}
	buf := v.Buffer
	status := v.Status
	batch := v.BatchID
	e.sink.OnVehicleUpdate(ctx, []vehicle.Update{{
		CarID:  v.CarID,
		Fields: vehicle.Fields{Buffer: &buf, Status: &status, BatchID: &batch},
	}})
}

func (e *Engine) totalOccupancy() int {
	total := 0
	for _, lane := range e.lanes {
		total += lane.Occupancy()
	}
	return total
}

// flush exports a metrics+lane snapshot via the sink's OnFlush and
// OnTelemetry hooks, fanning the two writers out concurrently with errgroup
// so a slow telemetry export never blocks the OnFlush work (persistence and
// the gateway's websocket broadcast) from completing on the same flush.
func (e *Engine) flush(ctx context.Context, tick int64) {
	if e.sink.OnFlush == nil && e.sink.OnTelemetry == nil {
		return
	}

	snap := e.agg.Snapshot(e.lanes)
	laneSnaps := make(map[string]buffer.Snapshot, len(e.lanes))
	for id, lane := range e.lanes {
		laneSnaps[id] = lane.Snapshot()
	}

	g, gctx := errgroup.WithContext(ctx)
	if e.sink.OnFlush != nil {
		g.Go(func() error {
			e.sink.OnFlush(gctx, snap, laneSnaps)
			return nil
		})
	}
	if e.sink.OnTelemetry != nil {
		g.Go(func() error {
			e.sink.OnTelemetry(gctx, snap)
			return nil
		})
	}
	_ = g.Wait()
}

// Reset clears every lane, oven queue, vehicle record, and metric, and
// starts counting from tick zero again. It also clears the external
// vehicle and buffer collections through the Source, mirroring the source
// simulation's clear_collection calls on reset. Reset may only run after
// Stop has completed; calling it while the loop is active returns
// ErrRunning instead of silently stopping the loop first.
func (e *Engine) Reset() error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ErrRunning
	}
	e.mu.Unlock()

	if e.source != nil {
		ctx := context.Background()
		if err := e.source.ClearCollection(ctx, "vehicles"); err != nil {
			log.Printf("engine: clear vehicles collection: %v", err)
		}
		if err := e.source.ClearCollection(ctx, "buffers"); err != nil {
			log.Printf("engine: clear buffers collection: %v", err)
		}
	}

	e.mu.Lock()
	e.tick = 0
	e.mu.Unlock()

	for _, id := range topology.LaneOrder {
		e.lanes[id] = buffer.New(id, topology.BufferCapacity[id], topology.FlexLanes[id], topology.PrimaryColors[id])
	}
	e.laneSet = allocator.NewLaneSet(e.lanes)

	e.ovens[vehicle.O1] = ovenqueue.New()
	e.ovens[vehicle.O2] = ovenqueue.New()

	e.vehiclesMu.Lock()
	e.vehicles = make(map[int]*vehicle.Vehicle)
	e.vehiclesMu.Unlock()

	e.agg.Reset()
	return nil
}

// OvenQueueDepth returns how many vehicles are currently queued for the
// given oven, waiting for their next production slot.
func (e *Engine) OvenQueueDepth(oven vehicle.Oven) int {
	return e.ovens[oven].Len()
}

// Lanes exposes a read-only view of the engine's lanes for the gateway and
// persistence layer. Callers must not retain the map across ticks.
func (e *Engine) Lanes() map[string]*buffer.Lane {
	return e.lanes
}

// Metrics exposes the engine's aggregator for direct snapshot reads.
func (e *Engine) Metrics() *metrics.Aggregator {
	return e.agg
}

// DispatcherLastColor exposes the last color painted, for API responses.
func (e *Engine) DispatcherLastColor() vehicle.Color {
	return e.disp.LastPaintedColor()
}
