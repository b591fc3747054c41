// Package events defines the wire-format payloads shared across process
// boundaries: the gateway's HTTP/websocket responses and its live-feed
// envelopes. Internal pub/sub domain events live in
// pkg/messaging instead — this package is for data that crosses the
// network, not the in-process event bus.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types for the websocket live feed.
const (
	FeedVehicleAssigned = "vehicle.assigned"
	FeedVehiclePainted  = "vehicle.painted"
	FeedBufferOverflow  = "buffer.overflow"
	FeedMetricsTick     = "metrics.tick"
	FeedLaneMaintenance = "buffer.maintenance"
)

// BaseEvent is the envelope every feed message is wrapped in.
type BaseEvent struct {
	ID            uuid.UUID       `json:"id"`
	Type          string          `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	Timestamp     time.Time       `json:"timestamp"`
	Data          json.RawMessage `json:"data"`
	Metadata      Metadata        `json:"metadata"`
}

// Metadata carries request correlation and tracing context. The gateway's
// feed broadcasts currently send it empty.
type Metadata struct {
	CorrelationID string `json:"correlation_id"`
	TraceID       string `json:"trace_id,omitempty"`
	SpanID        string `json:"span_id,omitempty"`
}

// VehicleRecord is the wire shape of a vehicle, used by the gateway's live
// feed.
type VehicleRecord struct {
	CarID    int    `json:"car_id"`
	Color    string `json:"color"`
	Oven     string `json:"oven"`
	Buffer   string `json:"buffer,omitempty"`
	Status   string `json:"status"`
	BatchID  string `json:"batch_id,omitempty"`
	Priority int    `json:"priority"`
}

// LaneRecord is the wire shape of a buffer lane's state.
type LaneRecord struct {
	ID            string         `json:"id"`
	Capacity      int            `json:"capacity"`
	Occupancy     int            `json:"occupancy"`
	CurrentColor  string         `json:"current_color,omitempty"`
	LastColor     string         `json:"last_color,omitempty"`
	IsAvailable   bool           `json:"is_available"`
	IsFlex        bool           `json:"is_flex"`
	ColorCounts   map[string]int `json:"color_counts"`
	PrimaryColors []string       `json:"primary_colors"`
}

// MetricsRecord is the wire shape of a point-in-time metrics snapshot.
type MetricsRecord struct {
	VehiclesProcessed    int     `json:"vehicles_processed"`
	TotalChangeovers     int     `json:"total_changeovers"`
	O2StoppageEvents     int     `json:"o2_stoppage_events"`
	BufferOverflowEvents int     `json:"buffer_overflow_events"`
	Throughput           int     `json:"throughput"`
	EfficiencyPercent    float64 `json:"efficiency_percent"`
	TotalLostTimeSeconds int     `json:"total_lost_time_seconds"`
	Oven1Occupancy       int     `json:"oven1_occupancy"`
	Oven2Occupancy       int     `json:"oven2_occupancy"`
	LastPaintedColor     string  `json:"last_painted_color,omitempty"`
}

// NewEvent wraps a payload in a BaseEvent envelope.
func NewEvent(eventType string, aggregateID string, aggregateType string, data interface{}, metadata Metadata) (*BaseEvent, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &BaseEvent{
		ID:            uuid.New(),
		Type:          eventType,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Timestamp:     time.Now(),
		Data:          dataBytes,
		Metadata:      metadata,
	}, nil
}

// ParseData unmarshals the event's payload into v.
func (e *BaseEvent) ParseData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// WithTracing sets trace context on the metadata and returns it for
// chaining.
func (m *Metadata) WithTracing(traceID, spanID string) *Metadata {
	m.TraceID = traceID
	m.SpanID = spanID
	return m
}
