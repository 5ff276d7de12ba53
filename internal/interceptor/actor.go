package interceptor

import "context"

// actorKey is a context key type for the acting principal.
type actorKey struct{}

// ActorSystem is the principal recorded for changes made by background
// processes rather than a caller.
const ActorSystem = "system"

// WithActor attaches the acting principal to the context. The interceptor
// only consumes the opaque identifier; authentication happens upstream.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the acting principal, if one was attached.
func ActorFromContext(ctx context.Context) (string, bool) {
	actor, ok := ctx.Value(actorKey{}).(string)
	if !ok || actor == "" {
		return "", false
	}
	return actor, true
}
