package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	t.Run("marshals the payload and stamps an id", func(t *testing.T) {
		payload := VehiclePaintedEvent{CarID: 7, Color: "C1", Buffer: "L1", BatchID: "B-C1-001"}
		evt, err := NewEvent(EventTypeVehiclePainted, "7", payload, EventMetadata{Source: "dispatcher"})
		require.NoError(t, err)

		assert.NotEqual(t, "", evt.ID.String())
		assert.Equal(t, EventTypeVehiclePainted, evt.Type)
		assert.Equal(t, "7", evt.AggregateID)
		assert.Equal(t, "dispatcher", evt.Metadata.Source)
	})
}

func TestParseEventData(t *testing.T) {
	t.Run("round-trips the typed payload", func(t *testing.T) {
		want := VehicleAssignedEvent{CarID: 3, Color: "C2", Oven: "O1", Buffer: "L3", BatchID: "B-C2-004"}
		evt, err := NewEvent(EventTypeVehicleAssigned, "3", want, EventMetadata{})
		require.NoError(t, err)

		got, err := ParseEventData[VehicleAssignedEvent](evt)
		require.NoError(t, err)
		assert.Equal(t, want, *got)
	})
}
