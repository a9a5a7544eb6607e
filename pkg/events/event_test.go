package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	original := BaseEvent{
		Type:       TypeChatExchange,
		Data:       map[string]interface{}{"user_id": "u-1", "tokens": float64(12)},
		OccurredAt: at,
	}

	raw, err := Encode(original)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"CHAT_EXCHANGE","data":{"user_id":"u-1","tokens":12},"occurred_at":"2026-03-01T12:00:00Z"}`, string(raw))

	decoded, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, original.Type, decoded.EventType())
	assert.Equal(t, original.Data, decoded.Payload())
	assert.True(t, at.Equal(decoded.Timestamp()))
}

func TestDecodeGarbage(t *testing.T) {
	_, err := Decode([]byte("not json"))
	assert.Error(t, err)
}
