// Package dispatcher implements the Conveyor Dispatcher: each tick it
// scans every buffer lane for the longest same-color run at its head and
// drains the winner onto the conveyor.
package dispatcher

import (
	"context"

	"github.com/paintshop/scheduler/internal/buffer"
	"github.com/paintshop/scheduler/internal/topology"
	"github.com/paintshop/scheduler/internal/vehicle"
	"github.com/paintshop/scheduler/pkg/messaging"
)

// Pick is the result of one dispatcher pass.
type Pick struct {
	LaneID        string
	Color         vehicle.Color
	CarIDs        []int
	WasChangeover bool
}

// Dispatcher tracks the color last sent to the conveyor, needed for the
// tie-break rule between equally long runs.
type Dispatcher struct {
	lastPaintedColor vehicle.Color
	msgClient        *messaging.Client
}

// New creates a Dispatcher. msgClient may be nil to disable event
// publishing.
func New(msgClient *messaging.Client) *Dispatcher {
	return &Dispatcher{msgClient: msgClient}
}

// LastPaintedColor returns the color most recently drained onto the
// conveyor, or "" if nothing has been painted yet.
func (d *Dispatcher) LastPaintedColor() vehicle.Color {
	return d.lastPaintedColor
}

// Pick scans all lanes in LaneOrder, finds the longest head run, and
// drains it (capped at topology.MaxConveyorPick). On a tie in run length,
// the candidate whose color matches lastPaintedColor overwrites the
// incumbent winner unconditionally — even when the incumbent itself
// already matched lastPaintedColor. This mirrors the original scheduler's
// pick_from_conveyor exactly; the resulting bias (later lane ids win ties)
// is intentional, not a bug.
func (d *Dispatcher) Pick(ctx context.Context, lanes map[string]*buffer.Lane, colorOf func(carID int) vehicle.Color) Pick {
	var bestLaneID string
	var bestColor vehicle.Color
	bestRun := 0

	for _, laneID := range topology.LaneOrder {
		lane := lanes[laneID]
		if lane == nil {
			continue
		}
		color, run := lane.HeadRun(colorOf)

		if run > bestRun {
			bestRun = run
			bestLaneID = laneID
			bestColor = color
		} else if run == bestRun && run > 0 {
			if color == d.lastPaintedColor {
				bestLaneID = laneID
				bestColor = color
			}
		}
	}

	if bestLaneID == "" || bestRun == 0 {
		return Pick{}
	}

	pickCount := bestRun
	if pickCount > topology.MaxConveyorPick {
		pickCount = topology.MaxConveyorPick
	}

	lane := lanes[bestLaneID]
	picked := lane.Drain(pickCount, colorOf)

	wasChangeover := d.lastPaintedColor != "" && bestColor != d.lastPaintedColor
	d.lastPaintedColor = bestColor

	if d.msgClient != nil {
		for _, carID := range picked {
			_ = d.msgClient.Publish(ctx, messaging.EventTypeVehiclePainted, messaging.VehiclePaintedEvent{
				CarID:  carID,
				Color:  string(bestColor),
				Buffer: bestLaneID,
			})
		}
		if wasChangeover {
			_ = d.msgClient.Publish(ctx, messaging.EventTypeChangeover, messaging.ChangeoverEvent{
				Location: "conveyor",
				LaneID:   bestLaneID,
				ToColor:  string(bestColor),
			})
		}
	}

	return Pick{
		LaneID:        bestLaneID,
		Color:         bestColor,
		CarIDs:        picked,
		WasChangeover: wasChangeover,
	}
}
