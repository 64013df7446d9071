package ingress

import (
	"context"
	"fmt"

	pkgerrors "github.com/guildlytics/guildlytics-backend/pkg/errors"
)

// Handler processes one decoded envelope.
type Handler func(ctx context.Context, envelope Envelope) error

// Router maps event types to their handlers.
type Router struct {
	routes map[EventType]Handler
}

func NewRouter(handlers *Handlers) *Router {
	return &Router{routes: map[EventType]Handler{
		EventMemberJoin:       handlers.HandleMemberJoin,
		EventMemberLeave:      handlers.HandleMemberLeave,
		EventUserUpdate:       handlers.HandleUserUpdate,
		EventMessageCreate:    handlers.HandleMessageCreate,
		EventVoiceStateUpdate: handlers.HandleVoiceStateUpdate,
		EventThreadCreate:     handlers.HandleThreadCreate,
		EventPresenceUpdate:   handlers.HandlePresenceUpdate,
	}}
}

func (r *Router) Dispatch(ctx context.Context, envelope Envelope) error {
	handler, ok := r.routes[envelope.EventType]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("no handler for event type %q", envelope.EventType))
	}
	return handler(ctx, envelope)
}
