package directory

import (
	"context"

	"clinicsync-backend/lib/userstore"
)

func withCaller(ctx context.Context, caller userstore.Public) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

func callerFrom(ctx context.Context) userstore.Public {
	caller, _ := ctx.Value(callerKey).(userstore.Public)
	return caller
}
