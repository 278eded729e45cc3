// Package auth carries the identity of the acting staff member through a request.
//
// Authentication itself happens upstream: the gateway verifies the caller and
// forwards the staff member's ID in the X-Actor-ID header. This package only
// moves that value into the context, where use cases read it to attribute
// state transitions (confirmedBy, startedBy, completedBy, cancelledBy).
package auth

import (
	"context"
	"errors"
	"strings"
)

// contextKey is an unexported type to prevent key collisions in context.
type contextKey string

const actorIDKey contextKey = "actor_id"

// ErrActorNotFound is returned when no actor exists in the request context.
// Handlers should return 401 when this error occurs.
var ErrActorNotFound = errors.New("actor not found in context")

// ActorFromCtx extracts the acting staff member's ID from the request context.
// Returns "" and ErrActorNotFound if no actor is set.
func ActorFromCtx(ctx context.Context) (string, error) {
	actor, ok := ctx.Value(actorIDKey).(string)
	if !ok || strings.TrimSpace(actor) == "" {
		return "", ErrActorNotFound
	}
	return actor, nil
}

// WithActor returns a new context with the given actor ID attached.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorIDKey, actorID)
}
