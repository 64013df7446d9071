package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/guildlytics/guildlytics-backend/pkg/logger"
)

type fakeIdempotency struct {
	processed map[uuid.UUID]bool
	checkErr  error
	deleted   []uuid.UUID
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{processed: make(map[uuid.UUID]bool)}
}

func (f *fakeIdempotency) CheckAndMarkProcessed(_ context.Context, _ string, eventID uuid.UUID) (bool, error) {
	if f.checkErr != nil {
		return false, f.checkErr
	}
	if f.processed[eventID] {
		return true, nil
	}
	f.processed[eventID] = true
	return false, nil
}

func (f *fakeIdempotency) Delete(_ context.Context, _ string, eventID uuid.UUID) error {
	delete(f.processed, eventID)
	f.deleted = append(f.deleted, eventID)
	return nil
}

func newTestWorker(t *testing.T, buf Appender, idem idempotencyChecker) *Worker {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "worker-test", Output: io.Discard})
	handlers, err := NewHandlers(buf, logg)
	require.NoError(t, err)
	return &Worker{
		router:      NewRouter(handlers),
		idempotency: idem,
		logg:        logg,
		guildID:     "G1",
	}
}

func testEnvelope(t *testing.T, eventType EventType, guildID string, payload any) Envelope {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return Envelope{
		Version:    1,
		EventID:    uuid.NewString(),
		EventType:  eventType,
		GuildID:    guildID,
		OccurredAt: occurredAt,
		Payload:    raw,
	}
}

func threadPayload() map[string]any {
	return map[string]any{
		"thread_id":  "T1",
		"channel_id": "C1",
		"user_id":    "U1",
	}
}

func TestProcessEnvelopeBuffersRecordAndAcks(t *testing.T) {
	buf := &recordingBuffer{}
	worker := newTestWorker(t, buf, newFakeIdempotency())

	result := worker.processEnvelope(context.Background(), testEnvelope(t, EventThreadCreate, "G1", threadPayload()))
	require.False(t, result.nack)
	require.Len(t, buf.records, 1)
}

func TestProcessEnvelopeDropsForeignGuild(t *testing.T) {
	buf := &recordingBuffer{}
	worker := newTestWorker(t, buf, newFakeIdempotency())

	result := worker.processEnvelope(context.Background(), testEnvelope(t, EventThreadCreate, "G2", threadPayload()))
	require.False(t, result.nack)
	require.Empty(t, buf.records)
}

func TestProcessEnvelopeRedeliveryIsIdempotent(t *testing.T) {
	buf := &recordingBuffer{}
	worker := newTestWorker(t, buf, newFakeIdempotency())

	envelope := testEnvelope(t, EventThreadCreate, "G1", threadPayload())
	require.False(t, worker.processEnvelope(context.Background(), envelope).nack)
	require.False(t, worker.processEnvelope(context.Background(), envelope).nack)
	require.Len(t, buf.records, 1)
}

func TestProcessEnvelopeNacksOnIdempotencyOutage(t *testing.T) {
	idem := newFakeIdempotency()
	idem.checkErr = errors.New("redis down")
	worker := newTestWorker(t, &recordingBuffer{}, idem)

	result := worker.processEnvelope(context.Background(), testEnvelope(t, EventThreadCreate, "G1", threadPayload()))
	require.True(t, result.nack)
}

func TestProcessEnvelopeDropsInvalidPayloadWithoutNack(t *testing.T) {
	buf := &recordingBuffer{}
	worker := newTestWorker(t, buf, newFakeIdempotency())

	result := worker.processEnvelope(context.Background(), testEnvelope(t, EventThreadCreate, "G1", map[string]any{
		"thread_id": "T1",
	}))
	require.False(t, result.nack)
	require.Empty(t, buf.records)
}

func TestProcessEnvelopeClearsMarkerOnHandlerFailure(t *testing.T) {
	idem := newFakeIdempotency()
	buf := &recordingBuffer{err: errors.New("buffer rejected record")}
	worker := newTestWorker(t, buf, idem)

	envelope := testEnvelope(t, EventThreadCreate, "G1", threadPayload())
	result := worker.processEnvelope(context.Background(), envelope)
	require.True(t, result.nack)
	require.Len(t, idem.deleted, 1)

	// after the transient failure clears, redelivery succeeds
	buf.err = nil
	require.False(t, worker.processEnvelope(context.Background(), envelope).nack)
	require.Len(t, buf.records, 1)
}

func TestProcessEnvelopeDropsInvalidEventID(t *testing.T) {
	worker := newTestWorker(t, &recordingBuffer{}, newFakeIdempotency())

	envelope := testEnvelope(t, EventThreadCreate, "G1", threadPayload())
	envelope.EventID = "not-a-uuid"
	result := worker.processEnvelope(context.Background(), envelope)
	require.False(t, result.nack)
}
