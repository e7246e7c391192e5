package utils

import (
	"context"

	"github.com/mmdatafocus/erp_backend/appctx"
)

func actorField[T any](ctx context.Context, get func(appctx.Actor) T) (T, bool) {
	a, ok := appctx.ActorFrom(ctx)
	if !ok {
		var zero T
		return zero, false
	}
	return get(a), true
}

func GetTokenFromContext(ctx context.Context) (string, bool) {
	t, ok := actorField(ctx, func(a appctx.Actor) string { return a.Token })
	return t, ok && t != ""
}

func GetUsernameFromContext(ctx context.Context) (string, bool) {
	return actorField(ctx, func(a appctx.Actor) string { return a.Username })
}

func GetUserIdFromContext(ctx context.Context) (int, bool) {
	return actorField(ctx, func(a appctx.Actor) int { return a.UserId })
}

func GetUserNameFromContext(ctx context.Context) (string, bool) {
	return actorField(ctx, func(a appctx.Actor) string { return a.Name })
}

func GetRolesFromContext(ctx context.Context) ([]string, bool) {
	return actorField(ctx, func(a appctx.Actor) []string { return a.Roles })
}

func GetIsAdminFromContext(ctx context.Context) (bool, bool) {
	return actorField(ctx, func(a appctx.Actor) bool { return a.IsAdmin })
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.CorrelationId(ctx)
}

func SetTokenInContext(ctx context.Context, token string) context.Context {
	return appctx.UpdateActor(ctx, func(a *appctx.Actor) { a.Token = token })
}

func SetUsernameInContext(ctx context.Context, username string) context.Context {
	return appctx.UpdateActor(ctx, func(a *appctx.Actor) { a.Username = username })
}

func SetUserIdInContext(ctx context.Context, userId int) context.Context {
	return appctx.UpdateActor(ctx, func(a *appctx.Actor) { a.UserId = userId })
}

func SetUserNameInContext(ctx context.Context, userName string) context.Context {
	return appctx.UpdateActor(ctx, func(a *appctx.Actor) { a.Name = userName })
}

func SetRolesInContext(ctx context.Context, roles []string) context.Context {
	return appctx.UpdateActor(ctx, func(a *appctx.Actor) { a.Roles = roles })
}

func SetIsAdminInContext(ctx context.Context, isAdmin bool) context.Context {
	return appctx.UpdateActor(ctx, func(a *appctx.Actor) { a.IsAdmin = isAdmin })
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.WithCorrelationId(ctx, correlationId)
}

// SystemContext replaces the actor with the system user for background work.
// Admin rights are not implied.
func SystemContext(ctx context.Context, correlationId string) context.Context {
	ctx = appctx.WithActor(ctx, appctx.Actor{Name: "System"})
	if correlationId != "" {
		ctx = appctx.WithCorrelationId(ctx, correlationId)
	}
	return ctx
}
