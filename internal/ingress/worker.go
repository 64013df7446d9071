package ingress

import (
	"context"
	"errors"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	pkgerrors "github.com/guildlytics/guildlytics-backend/pkg/errors"
	"github.com/guildlytics/guildlytics-backend/pkg/logger"
	"github.com/guildlytics/guildlytics-backend/pkg/metrics"
)

const consumerName = "collector"

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// WorkerParams configure the ingress worker.
type WorkerParams struct {
	Subscription *gcppubsub.Subscriber
	Router       *Router
	Idempotency  idempotencyChecker
	Logger       *logger.Logger
	Metrics      *metrics.IngressMetrics
	GuildID      string
}

// Worker consumes gateway events from Pub/Sub, guarding against redelivery
// with the Redis idempotency marker before records reach the buffer.
type Worker struct {
	subscription *gcppubsub.Subscriber
	router       *Router
	idempotency  idempotencyChecker
	logg         *logger.Logger
	metrics      *metrics.IngressMetrics
	guildID      string
}

func NewWorker(params WorkerParams) (*Worker, error) {
	if params.Subscription == nil {
		return nil, errors.New("events subscription is required")
	}
	if params.Router == nil {
		return nil, errors.New("router is required")
	}
	if params.Idempotency == nil {
		return nil, errors.New("idempotency manager is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if strings.TrimSpace(params.GuildID) == "" {
		return nil, errors.New("guild id is required")
	}
	return &Worker{
		subscription: params.Subscription,
		router:       params.Router,
		idempotency:  params.Idempotency,
		logg:         params.Logger,
		metrics:      params.Metrics,
		guildID:      params.GuildID,
	}, nil
}

type processResult struct {
	nack bool
}

// Run consumes messages until the context is canceled.
func (w *Worker) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return w.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if w.process(innerCtx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (w *Worker) process(ctx context.Context, msg *gcppubsub.Message) processResult {
	logCtx := w.logg.WithField(ctx, "message_id", msg.ID)
	rawType := strings.TrimSpace(msg.Attributes["event_type"])

	envelope, err := DecodeEnvelope(msg.Data, msg.Attributes, msg.PublishTime)
	if err != nil {
		w.logg.Warn(w.logg.WithField(logCtx, "error", err.Error()), "dropping malformed event envelope")
		w.metrics.IncDropped(rawType, "malformed")
		return processResult{}
	}
	return w.processEnvelope(logCtx, *envelope)
}

func (w *Worker) processEnvelope(ctx context.Context, envelope Envelope) processResult {
	eventType := string(envelope.EventType)
	logCtx := w.logg.WithFields(ctx, map[string]any{
		"event_id":    envelope.EventID,
		"event_type":  eventType,
		"guild_id":    envelope.GuildID,
		"occurred_at": envelope.OccurredAt.Format(time.RFC3339Nano),
	})

	if envelope.GuildID != w.guildID {
		w.logg.Debug(logCtx, "dropping event from foreign guild")
		w.metrics.IncDropped(eventType, "foreign_guild")
		return processResult{}
	}
	w.metrics.IncReceived(eventType)

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		w.logg.Warn(logCtx, "dropping event with invalid event id")
		w.metrics.IncDropped(eventType, "malformed")
		return processResult{}
	}

	already, err := w.idempotency.CheckAndMarkProcessed(logCtx, consumerName, eventID)
	if err != nil {
		w.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		w.logg.Debug(logCtx, "event already processed")
		w.metrics.IncDropped(eventType, "duplicate")
		return processResult{}
	}

	if err := w.router.Dispatch(logCtx, envelope); err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeValidation {
			w.logg.Warn(w.logg.WithField(logCtx, "error", err.Error()), "dropping invalid event payload")
			w.metrics.IncDropped(eventType, "invalid_payload")
			return processResult{}
		}
		w.logg.Error(logCtx, "event handler failed", err)
		_ = w.idempotency.Delete(logCtx, consumerName, eventID)
		return processResult{nack: true}
	}

	w.metrics.IncHandled(eventType)
	return processResult{}
}
