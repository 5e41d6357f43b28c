package core

import "context"

// Actor identifies who performed an operation.
type Actor struct {
	ID    string
	Name  string
	Email string
}

// Label returns the most readable identifier for the actor.
func (a Actor) Label() string {
	switch {
	case a.Name != "":
		return a.Name
	case a.Email != "":
		return a.Email
	case a.ID != "":
		return a.ID
	}
	return systemActor.ID
}

var systemActor = Actor{ID: "system", Name: "system"}

// IdentityProvider resolves the acting user for an operation.
type IdentityProvider interface {
	CurrentActor(ctx context.Context) Actor
}

type actorKey struct{}

// WithActor returns a context that carries actor.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor stored by WithActor.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}

type contextIdentity struct{}

func (contextIdentity) CurrentActor(ctx context.Context) Actor {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor
	}
	return systemActor
}
