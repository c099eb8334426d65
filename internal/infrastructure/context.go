package infrastructure

import (
	"context"

	"github.com/google/uuid"
)

// NewRunID mints the identifier a CLI run is traced under.
func NewRunID() string {
	return uuid.New().String()
}

// ContextWithRunID returns a context carrying a freshly minted run id as
// its trace id. Every binary calls this once at startup so all log lines
// and spans of one invocation share an id.
func ContextWithRunID(ctx context.Context) context.Context {
	return WithTraceID(ctx, NewRunID())
}

// EnsureTraceID installs a run id only when the context has none.
func EnsureTraceID(ctx context.Context) context.Context {
	if GetTraceID(ctx) == "" {
		return ContextWithRunID(ctx)
	}
	return ctx
}
