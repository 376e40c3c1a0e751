package logging

import (
	"context"

	"go.viam.com/utils"
)

type traceKeyType int

const traceKey = traceKeyType(iota)

// WithTrace marks ctx as traced under name; an empty name gets a random six letter one. The C
// variants of the debug methods log for a traced context whatever the logger's level is, and tag
// each entry with the trace name so interleaved operations on different buses can be told apart.
func WithTrace(ctx context.Context, name string) context.Context {
	if name == "" {
		name = utils.RandomAlphaString(6)
	}
	return context.WithValue(ctx, traceKey, name)
}

// TraceName returns the name ctx is traced under, or "" if it is not traced.
func TraceName(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	name, _ := ctx.Value(traceKey).(string)
	return name
}
