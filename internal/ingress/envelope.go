package ingress

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	pkgerrors "github.com/guildlytics/guildlytics-backend/pkg/errors"
)

// EventType names one gateway event the collector understands.
type EventType string

const (
	EventMemberJoin       EventType = "member_join"
	EventMemberLeave      EventType = "member_leave"
	EventUserUpdate       EventType = "user_update"
	EventMessageCreate    EventType = "message_create"
	EventVoiceStateUpdate EventType = "voice_state_update"
	EventThreadCreate     EventType = "thread_create"
	EventPresenceUpdate   EventType = "presence_update"
)

func ParseEventType(raw string) (EventType, error) {
	switch t := EventType(raw); t {
	case EventMemberJoin, EventMemberLeave, EventUserUpdate, EventMessageCreate,
		EventVoiceStateUpdate, EventThreadCreate, EventPresenceUpdate:
		return t, nil
	default:
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown event type %q", raw))
	}
}

// Envelope is one gateway event as published by the relay.
type Envelope struct {
	Version    int
	EventID    string
	EventType  EventType
	GuildID    string
	OccurredAt time.Time
	Payload    json.RawMessage
}

type envelopeWire struct {
	Version    int             `json:"version"`
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	GuildID    string          `json:"guild_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// DecodeEnvelope parses a published message. The body carries the full
// envelope; event_type, guild_id and event_id fall back to message attributes
// and a zero occurred_at falls back to the broker publish time.
func DecodeEnvelope(data []byte, attributes map[string]string, publishTime time.Time) (*Envelope, error) {
	var wire envelopeWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event envelope")
	}

	eventTypeRaw := strings.TrimSpace(wire.EventType)
	if eventTypeRaw == "" {
		eventTypeRaw = strings.TrimSpace(attributes["event_type"])
	}
	eventType, err := ParseEventType(eventTypeRaw)
	if err != nil {
		return nil, err
	}

	eventID := strings.TrimSpace(wire.EventID)
	if eventID == "" {
		eventID = strings.TrimSpace(attributes["event_id"])
	}
	if eventID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event_id missing")
	}

	guildID := strings.TrimSpace(wire.GuildID)
	if guildID == "" {
		guildID = strings.TrimSpace(attributes["guild_id"])
	}
	if guildID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "guild_id missing")
	}

	occurredAt := wire.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = publishTime
	}
	if occurredAt.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "occurred_at missing")
	}

	return &Envelope{
		Version:    wire.Version,
		EventID:    eventID,
		EventType:  eventType,
		GuildID:    guildID,
		OccurredAt: occurredAt.UTC(),
		Payload:    wire.Payload,
	}, nil
}

// Payload shapes per event type. Validation tags run before any record is
// buffered; a payload that fails them is dropped at the ingress layer.

type memberJoinPayload struct {
	UserID      string    `json:"user_id" validate:"required"`
	UserName    string    `json:"user_name" validate:"required"`
	DisplayName string    `json:"display_name"`
	IsBot       bool      `json:"is_bot"`
	IsBooster   bool      `json:"is_booster"`
	Role        string    `json:"role"`
	JoinedAt    time.Time `json:"joined_at"`
	Status      string    `json:"status"`
}

type memberLeavePayload struct {
	UserID string `json:"user_id" validate:"required"`
}

type userUpdatePayload struct {
	UserID   string `json:"user_id" validate:"required"`
	UserName string `json:"user_name" validate:"required"`
}

type messageCreatePayload struct {
	MessageID string `json:"message_id" validate:"required"`
	UserID    string `json:"user_id" validate:"required"`
	ChannelID string `json:"channel_id" validate:"required"`
	ThreadID  string `json:"thread_id"`
	Content   string `json:"content"`
	IsBot     bool   `json:"is_bot"`
}

type voiceStatePayload struct {
	UserID string `json:"user_id" validate:"required"`
	// empty channel id means the user left voice entirely
	ChannelID string `json:"channel_id"`
}

type threadCreatePayload struct {
	ThreadID   string `json:"thread_id" validate:"required"`
	ThreadName string `json:"thread_name"`
	ChannelID  string `json:"channel_id" validate:"required"`
	UserID     string `json:"user_id" validate:"required"`
}

type presenceUpdatePayload struct {
	UserID    string `json:"user_id" validate:"required"`
	UserName  string `json:"user_name"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status" validate:"required"`
}
