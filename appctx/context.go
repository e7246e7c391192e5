// Package appctx holds the request principal and correlation id carried on
// context.Context. It has no dependencies so config and utils can share it.
package appctx

import "context"

type ctxKey int

const (
	actorKey ctxKey = iota
	correlationKey
)

// Actor is who a request or background job acts as. UserId 0 is the system.
type Actor struct {
	UserId   int
	Username string
	Name     string
	Roles    []string
	IsAdmin  bool
	Token    string
}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey).(Actor)
	return a, ok
}

// UpdateActor applies fn to a copy of the current actor, starting from the
// zero Actor when none is set.
func UpdateActor(ctx context.Context, fn func(*Actor)) context.Context {
	a, _ := ActorFrom(ctx)
	a.Roles = append([]string(nil), a.Roles...)
	fn(&a)
	return WithActor(ctx, a)
}

func WithCorrelationId(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey, id)
}

func CorrelationId(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(correlationKey).(string)
	return id, ok && id != ""
}
