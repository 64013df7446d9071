package ingress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelopeFromBody(t *testing.T) {
	data := []byte(`{
		"version": 1,
		"event_id": "6a1f8f0e-3f7c-4c7e-9f20-0d8a27c3f001",
		"event_type": "message_create",
		"guild_id": "G1",
		"occurred_at": "2024-01-01T10:00:00Z",
		"payload": {"message_id": "M1"}
	}`)

	envelope, err := DecodeEnvelope(data, nil, time.Time{})
	require.NoError(t, err)
	require.Equal(t, EventMessageCreate, envelope.EventType)
	require.Equal(t, "G1", envelope.GuildID)
	require.Equal(t, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), envelope.OccurredAt)
	require.JSONEq(t, `{"message_id": "M1"}`, string(envelope.Payload))
}

func TestDecodeEnvelopeFallsBackToAttributes(t *testing.T) {
	publishTime := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	attributes := map[string]string{
		"event_type": "thread_create",
		"event_id":   "6a1f8f0e-3f7c-4c7e-9f20-0d8a27c3f002",
		"guild_id":   "G1",
	}

	envelope, err := DecodeEnvelope([]byte(`{"payload":{}}`), attributes, publishTime)
	require.NoError(t, err)
	require.Equal(t, EventThreadCreate, envelope.EventType)
	require.Equal(t, publishTime, envelope.OccurredAt)
}

func TestDecodeEnvelopeRejectsBadInput(t *testing.T) {
	publishTime := time.Now()
	cases := []struct {
		name       string
		data       string
		attributes map[string]string
	}{
		{"not json", `{{`, nil},
		{"unknown event type", `{"event_id":"x","event_type":"guild_nuke","guild_id":"G1"}`, nil},
		{"missing event id", `{"event_type":"message_create","guild_id":"G1"}`, nil},
		{"missing guild id", `{"event_id":"x","event_type":"message_create"}`, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeEnvelope([]byte(tc.data), tc.attributes, publishTime)
			require.Error(t, err)
		})
	}
}

func TestParseEventTypeCoversAllHandledTypes(t *testing.T) {
	for _, raw := range []string{
		"member_join", "member_leave", "user_update", "message_create",
		"voice_state_update", "thread_create", "presence_update",
	} {
		parsed, err := ParseEventType(raw)
		require.NoError(t, err)
		require.Equal(t, EventType(raw), parsed)
	}
}
