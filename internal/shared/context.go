package shared

import "context"

// Actor identifies the authenticated caller supplied by the upstream
// identity layer. A zero UserID means the action has no human actor.
type Actor struct {
	UserID    int64
	IP        string
	UserAgent string
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
