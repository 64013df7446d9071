package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/go-playground/validator/v10"

	"github.com/guildlytics/guildlytics-backend/internal/events"
	pkgerrors "github.com/guildlytics/guildlytics-backend/pkg/errors"
	"github.com/guildlytics/guildlytics-backend/pkg/logger"
)

const statusLeft = "left"
const statusOffline = "offline"

// Appender is the buffer surface the handlers push records into.
type Appender interface {
	Append(record events.Record) error
}

// Handlers translate validated gateway payloads into buffered records.
type Handlers struct {
	buffer   Appender
	logg     *logger.Logger
	validate *validator.Validate
	voice    *voiceTracker
}

func NewHandlers(buffer Appender, logg *logger.Logger) (*Handlers, error) {
	if buffer == nil {
		return nil, errors.New("buffer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Handlers{
		buffer:   buffer,
		logg:     logg,
		validate: validator.New(),
		voice:    newVoiceTracker(),
	}, nil
}

func (h *Handlers) decode(envelope Envelope, payload any) error {
	if err := json.Unmarshal(envelope.Payload, payload); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event payload")
	}
	if err := h.validate.Struct(payload); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validate event payload")
	}
	return nil
}

func (h *Handlers) HandleMemberJoin(ctx context.Context, envelope Envelope) error {
	var payload memberJoinPayload
	if err := h.decode(envelope, &payload); err != nil {
		return err
	}
	joinedAt := payload.JoinedAt
	if joinedAt.IsZero() {
		joinedAt = envelope.OccurredAt
	}
	status := payload.Status
	if status == "" {
		status = "active"
	}
	return h.buffer.Append(events.MemberRow{
		UserID:      payload.UserID,
		UserName:    payload.UserName,
		DisplayName: payload.DisplayName,
		IsBot:       payload.IsBot,
		IsBooster:   payload.IsBooster,
		Role:        payload.Role,
		JoinedAt:    joinedAt.UTC(),
		Status:      status,
		UpdatedAt:   envelope.OccurredAt,
	})
}

func (h *Handlers) HandleMemberLeave(ctx context.Context, envelope Envelope) error {
	var payload memberLeavePayload
	if err := h.decode(envelope, &payload); err != nil {
		return err
	}
	return h.buffer.Append(events.MemberFieldUpdate{
		UserID:    payload.UserID,
		Column:    events.MemberColumnStatus,
		NewValue:  statusLeft,
		UpdatedAt: envelope.OccurredAt,
	})
}

func (h *Handlers) HandleUserUpdate(ctx context.Context, envelope Envelope) error {
	var payload userUpdatePayload
	if err := h.decode(envelope, &payload); err != nil {
		return err
	}
	return h.buffer.Append(events.MemberFieldUpdate{
		UserID:    payload.UserID,
		Column:    events.MemberColumnUserName,
		NewValue:  payload.UserName,
		UpdatedAt: envelope.OccurredAt,
	})
}

// HandleMessageCreate counts every non-bot message and stores the body only
// when there is one; attachment-only messages still count.
func (h *Handlers) HandleMessageCreate(ctx context.Context, envelope Envelope) error {
	var payload messageCreatePayload
	if err := h.decode(envelope, &payload); err != nil {
		return err
	}
	if payload.IsBot {
		h.logg.Debug(h.logg.WithField(ctx, "user_id", payload.UserID), "skipping bot message")
		return nil
	}
	if err := h.buffer.Append(events.MessageCountRow{
		Date:         civil.DateOf(envelope.OccurredAt),
		UserID:       payload.UserID,
		ChannelID:    payload.ChannelID,
		MessageCount: 1,
	}); err != nil {
		return err
	}
	if payload.Content == "" {
		return nil
	}
	return h.buffer.Append(events.MessageDetailRow{
		MessageID:      payload.MessageID,
		CreatedAt:      envelope.OccurredAt,
		UserID:         payload.UserID,
		ChannelID:      payload.ChannelID,
		ThreadID:       payload.ThreadID,
		MessageContent: payload.Content,
	})
}

// HandleVoiceStateUpdate closes or opens in-memory voice sessions. A session
// ends when the user leaves voice or switches channels; the emitted row is
// dated by the session start so overnight sessions accrue to the day they
// began.
func (h *Handlers) HandleVoiceStateUpdate(ctx context.Context, envelope Envelope) error {
	var payload voiceStatePayload
	if err := h.decode(envelope, &payload); err != nil {
		return err
	}
	closed := h.voice.transition(payload.UserID, payload.ChannelID, envelope.OccurredAt)
	if closed == nil {
		return nil
	}
	return h.buffer.Append(*closed)
}

func (h *Handlers) HandleThreadCreate(ctx context.Context, envelope Envelope) error {
	var payload threadCreatePayload
	if err := h.decode(envelope, &payload); err != nil {
		return err
	}
	return h.buffer.Append(events.ThreadRow{
		CreatedAt:  envelope.OccurredAt,
		UserID:     payload.UserID,
		ThreadName: payload.ThreadName,
		ChannelID:  payload.ChannelID,
		ThreadID:   payload.ThreadID,
	})
}

// HandlePresenceUpdate records a login row only for offline to active
// transitions; status changes between active states are noise.
func (h *Handlers) HandlePresenceUpdate(ctx context.Context, envelope Envelope) error {
	var payload presenceUpdatePayload
	if err := h.decode(envelope, &payload); err != nil {
		return err
	}
	if payload.OldStatus != statusOffline || payload.NewStatus == statusOffline {
		return nil
	}
	return h.buffer.Append(events.PresenceLogRow{
		LoggedAt: envelope.OccurredAt,
		UserID:   payload.UserID,
		UserName: payload.UserName,
	})
}

type voiceSession struct {
	channelID string
	startedAt time.Time
}

// voiceTracker holds open voice sessions keyed by user. Sessions open on the
// first non-empty channel and close on leave or channel switch.
type voiceTracker struct {
	mu     sync.Mutex
	active map[string]voiceSession
}

func newVoiceTracker() *voiceTracker {
	return &voiceTracker{active: make(map[string]voiceSession)}
}

// transition applies one voice state change and returns the closed session's
// row, if any. Zero or negative durations produce no row.
func (t *voiceTracker) transition(userID, channelID string, at time.Time) *events.VoiceSessionRow {
	t.mu.Lock()
	defer t.mu.Unlock()

	previous, inVoice := t.active[userID]

	if channelID == "" {
		delete(t.active, userID)
	} else if !inVoice || previous.channelID != channelID {
		t.active[userID] = voiceSession{channelID: channelID, startedAt: at}
	}

	if !inVoice || previous.channelID == channelID {
		return nil
	}

	duration := int64(at.Sub(previous.startedAt).Seconds())
	if duration <= 0 {
		return nil
	}
	return &events.VoiceSessionRow{
		Date:            civil.DateOf(previous.startedAt.UTC()),
		UserID:          userID,
		ChannelID:       previous.channelID,
		DurationSeconds: duration,
	}
}
