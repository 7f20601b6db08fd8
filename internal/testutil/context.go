package testutil

import (
	"context"

	"github.com/cloudfin/finance/internal/types"
)

// SetupContext returns a request-like context carrying the default finance
// user and a fresh request id
func SetupContext() context.Context {
	ctx := types.SetUserID(context.Background(), types.DefaultUserID)
	ctx = types.SetProvider(ctx, types.DefaultProvider)
	return context.WithValue(ctx, types.CtxRequestID, types.GenerateUUID())
}
