package service

import "context"

type actorKey struct{}

// SystemActor is recorded when no caller identity is attached to the context.
const SystemActor = "system"

// WithActor attaches the identity recorded on audit events.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the attached actor or SystemActor.
func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return SystemActor
}
