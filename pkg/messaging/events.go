package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventTypeVehicleAssigned  = "vehicle.assigned"
	EventTypeVehiclePainted   = "vehicle.painted"
	EventTypeVehicleRejected  = "vehicle.rejected"
	EventTypeBufferOverflow   = "buffer.overflow"
	EventTypeChangeover       = "buffer.changeover"
	EventTypeO2Stoppage       = "oven.o2_stoppage"
	EventTypeLaneMaintenance  = "buffer.maintenance"
	EventTypeMetricsSnapshot  = "metrics.snapshot"
	EventTypeEngineStarted    = "engine.started"
	EventTypeEngineStopped    = "engine.stopped"
	EventTypeEngineReset      = "engine.reset"
)

// Event is the base event structure
type Event struct {
	ID          uuid.UUID       `json:"id"`
	Type        string          `json:"type"`
	AggregateID string          `json:"aggregate_id"`
	Timestamp   time.Time       `json:"timestamp"`
	Version     int             `json:"version"`
	Data        json.RawMessage `json:"data"`
	Metadata    EventMetadata   `json:"metadata"`
}

// EventMetadata contains event metadata
type EventMetadata struct {
	CorrelationID string `json:"correlation_id"`
	CausationID   string `json:"causation_id"`
	Source        string `json:"source"`
}

// VehicleAssignedEvent is published when the Allocator places a vehicle
// into a buffer lane.
type VehicleAssignedEvent struct {
	CarID             int    `json:"car_id"`
	Color             string `json:"color"`
	Oven              string `json:"oven"`
	Buffer            string `json:"buffer"`
	BatchID           string `json:"batch_id"`
	ChangeoverPenalty int    `json:"changeover_penalty_seconds"`
	BufferOccupancy   int    `json:"buffer_occupancy"`
	BufferCapacity    int    `json:"buffer_capacity"`
}

// VehicleRejectedEvent is published when no buffer has room for a vehicle.
type VehicleRejectedEvent struct {
	CarID  int    `json:"car_id"`
	Color  string `json:"color"`
	Oven   string `json:"oven"`
	Reason string `json:"reason"`
}

// VehiclePaintedEvent is published for each vehicle drained onto the
// conveyor.
type VehiclePaintedEvent struct {
	CarID   int    `json:"car_id"`
	Color   string `json:"color"`
	Buffer  string `json:"buffer"`
	BatchID string `json:"batch_id"`
}

// ChangeoverEvent is published any time a changeover is recorded, either at
// buffer admission or at conveyor pick.
type ChangeoverEvent struct {
	Location  string `json:"location"` // "buffer" or "conveyor"
	LaneID    string `json:"lane_id,omitempty"`
	FromColor string `json:"from_color"`
	ToColor   string `json:"to_color"`
	PenaltySeconds int `json:"penalty_seconds,omitempty"`
}

// O2StoppageEvent is published when an O1 vehicle is routed into an O2
// zone lane, a stoppage-on-O1's-own-ovens indicator.
type O2StoppageEvent struct {
	CarID  int    `json:"car_id"`
	Color  string `json:"color"`
	Buffer string `json:"buffer"`
}

// MetricsSnapshotEvent carries a point-in-time aggregate metrics export.
type MetricsSnapshotEvent struct {
	VehiclesProcessed     int     `json:"vehicles_processed"`
	TotalChangeovers      int     `json:"total_changeovers"`
	O2StoppageEvents      int     `json:"o2_stoppage_events"`
	BufferOverflowEvents  int     `json:"buffer_overflow_events"`
	Throughput            int     `json:"throughput"`
	EfficiencyPercent     float64 `json:"efficiency_percent"`
	TotalLostTimeSeconds  int     `json:"total_lost_time_seconds"`
	Oven1Occupancy        int     `json:"oven1_occupancy"`
	Oven2Occupancy        int     `json:"oven2_occupancy"`
	Tick                  int64   `json:"tick"`
}

// NewEvent creates a new event envelope from any JSON-marshalable payload.
func NewEvent(eventType string, aggregateID string, data interface{}, metadata EventMetadata) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:          uuid.New(),
		Type:        eventType,
		AggregateID: aggregateID,
		Timestamp:   time.Now(),
		Version:     1,
		Data:        dataBytes,
		Metadata:    metadata,
	}, nil
}

// ParseEventData parses event data into the specified type
func ParseEventData[T any](event *Event) (*T, error) {
	var data T
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// EventBus interface for publishing domain events
type EventBus interface {
	Publish(ctx interface{}, event Event) error
	Subscribe(eventType string, handler func(Event) error) error
}
