package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderPayload struct {
	TotalPrice string `json:"totalPrice"`
	Email      string `json:"email"`
}

func TestNewEvent_Fields(t *testing.T) {
	data := orderPayload{TotalPrice: "150", Email: "u@x.io"}
	event, err := NewEvent("order.created", "A1", "order", "order-service", data)
	require.NoError(t, err)

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "order.created", event.EventType)
	assert.Equal(t, "A1", event.AggregateID)
	assert.Equal(t, "order", event.AggregateType)
	assert.Equal(t, "order-service", event.Source)
	assert.Equal(t, 1, event.Version)
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, 2*time.Second)
	assert.NotNil(t, event.Metadata)

	var decoded orderPayload
	require.NoError(t, json.Unmarshal(event.Data, &decoded))
	assert.Equal(t, data, decoded)
}

func TestNewEvent_InvalidData(t *testing.T) {
	_, err := NewEvent("test.event", "agg-1", "test", "test-service", make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test.event")
}

func TestEvent_MarshalAndUnmarshal(t *testing.T) {
	original, err := NewEvent("receipt.sent", "A1", "order", "receipt-service", map[string]string{"recipient": "u@x.io"})
	require.NoError(t, err)
	original.WithCorrelationID("corr-abc").WithMetadata("attempt", "1")

	raw, err := original.Marshal()
	require.NoError(t, err)

	restored, err := UnmarshalEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, original.EventID, restored.EventID)
	assert.Equal(t, original.EventType, restored.EventType)
	assert.Equal(t, "corr-abc", restored.CorrelationID)
	assert.Equal(t, "1", restored.Metadata["attempt"])
	assert.JSONEq(t, string(original.Data), string(restored.Data))
}

func TestUnmarshalEvent_Invalid(t *testing.T) {
	_, err := UnmarshalEvent([]byte("{not json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal event envelope")
}

func TestEvent_WithMetadata_NilMap(t *testing.T) {
	e := &Event{}
	e.WithMetadata("k", "v")
	assert.Equal(t, "v", e.Metadata["k"])
}

func TestEvent_UnmarshalData(t *testing.T) {
	e := &Event{EventID: "e1", EventType: "order.created", Data: json.RawMessage(`{"totalPrice":"10","email":"a@b.c"}`)}

	var p orderPayload
	require.NoError(t, e.UnmarshalData(&p))
	assert.Equal(t, "10", p.TotalPrice)
	assert.Equal(t, "a@b.c", p.Email)
}

func TestEvent_UnmarshalData_Empty(t *testing.T) {
	for _, data := range []json.RawMessage{nil, json.RawMessage("null")} {
		e := &Event{EventID: "e1", Data: data}
		var p orderPayload
		err := e.UnmarshalData(&p)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "has no data")
	}
}

func TestEvent_UnmarshalData_WrongShape(t *testing.T) {
	e := &Event{EventID: "e1", EventType: "order.created", Data: json.RawMessage(`[1,2]`)}
	var p orderPayload
	err := e.UnmarshalData(&p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal order.created data")
}

func TestTopic(t *testing.T) {
	tests := []struct {
		domain string
		action string
		want   string
	}{
		{"order", "created", "ecommerce.order.created"},
		{"receipt", "sent", "ecommerce.receipt.sent"},
		{"receipt", "failed", "ecommerce.receipt.failed"},
	}

	for _, tt := range tests {
		t.Run(tt.domain+"."+tt.action, func(t *testing.T) {
			assert.Equal(t, tt.want, Topic(tt.domain, tt.action))
		})
	}
}
