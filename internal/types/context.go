package types

import (
	"context"
)

// ContextKey is a type for the keys of values stored in the context
type ContextKey string

const (
	CtxRequestID     ContextKey = "ctx_request_id"
	CtxUserID        ContextKey = "ctx_user_id"
	CtxProvider      ContextKey = "ctx_provider"
	CtxPlugin        ContextKey = "ctx_plugin"
	CtxDBTransaction ContextKey = "ctx_db_transaction"

	// Default values
	DefaultUserID   = "00000000-0000-0000-0000-000000000000"
	DefaultProvider = "local"
)

func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(CtxUserID).(string); ok {
		return userID
	}
	return ""
}

func GetProvider(ctx context.Context) string {
	if provider, ok := ctx.Value(CtxProvider).(string); ok {
		return provider
	}
	return ""
}

func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(CtxRequestID).(string); ok {
		return requestID
	}
	return ""
}

// GetPlugin returns the finance plugin name a background worker is running for
func GetPlugin(ctx context.Context) string {
	if plugin, ok := ctx.Value(CtxPlugin).(string); ok {
		return plugin
	}
	return ""
}

// SetUserID sets the user ID in the context
func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, CtxUserID, userID)
}

// SetProvider sets the identity provider in the context
func SetProvider(ctx context.Context, provider string) context.Context {
	return context.WithValue(ctx, CtxProvider, provider)
}

// SetPlugin sets the finance plugin name in the context
func SetPlugin(ctx context.Context, plugin string) context.Context {
	return context.WithValue(ctx, CtxPlugin, plugin)
}
