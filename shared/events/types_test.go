package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	t.Run("wraps the payload in an envelope with a fresh id", func(t *testing.T) {
		rec := VehicleRecord{CarID: 1, Color: "C1", Status: "PAINTED"}
		evt, err := NewEvent(FeedVehiclePainted, "1", "vehicle", rec, Metadata{CorrelationID: "abc"})
		require.NoError(t, err)

		assert.NotEqual(t, "", evt.ID.String())
		assert.Equal(t, FeedVehiclePainted, evt.Type)
		assert.Equal(t, "vehicle", evt.AggregateType)
		assert.Equal(t, "abc", evt.Metadata.CorrelationID)
	})
}

func TestBaseEventParseData(t *testing.T) {
	t.Run("unmarshals the payload back into its typed form", func(t *testing.T) {
		want := LaneRecord{ID: "L1", Capacity: 14, Occupancy: 3, IsAvailable: true}
		evt, err := NewEvent(FeedLaneMaintenance, "L1", "lane", want, Metadata{})
		require.NoError(t, err)

		var got LaneRecord
		require.NoError(t, evt.ParseData(&got))
		assert.Equal(t, want, got)
	})
}

func TestMetadataWithTracing(t *testing.T) {
	t.Run("sets trace and span ids and returns itself for chaining", func(t *testing.T) {
		m := &Metadata{CorrelationID: "abc"}
		ret := m.WithTracing("trace-1", "span-1")

		assert.Same(t, m, ret)
		assert.Equal(t, "trace-1", m.TraceID)
		assert.Equal(t, "span-1", m.SpanID)
	})
}
