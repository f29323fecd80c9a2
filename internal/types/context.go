package types

import (
	"context"
)

// Context Keys
type contextKey string

const (
	userIDKey    contextKey = "user_id"
	requestIDKey contextKey = "request_id"
	tierKey      contextKey = "resolved_tier"
)

// WithUserID stores the verified user identifier in the context.
// The identifier is produced by the token-verification collaborator; this
// service treats it as opaque.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserID retrieves the verified user identifier from the context.
func GetUserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// ResolvedTier carries the tier and limits attached by the RequireTier gate
// for downstream handlers, so they do not re-read the subscription row.
type ResolvedTier struct {
	Tier   PlanTier
	Limits PlanLimits
}

// WithResolvedTier stores the gate-resolved tier in the context.
func WithResolvedTier(ctx context.Context, rt ResolvedTier) context.Context {
	return context.WithValue(ctx, tierKey, rt)
}

// GetResolvedTier retrieves the gate-resolved tier from the context.
func GetResolvedTier(ctx context.Context) (ResolvedTier, bool) {
	rt, ok := ctx.Value(tierKey).(ResolvedTier)
	return rt, ok
}
