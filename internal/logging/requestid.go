// Package logging tags log lines with a short operation id carried in the
// context, so the steps of one switch or login can be grepped together.
package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
)

type contextKey string

const opIDKey contextKey = "opId"

// NewOpID creates an 8-character hex operation id.
func NewOpID() string {
	b := make([]byte, 4)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// WithOpID stores an operation id in the context.
func WithOpID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, opIDKey, id)
}

// OpID returns the operation id from ctx, or "" if none was set.
func OpID(ctx context.Context) string {
	if id, ok := ctx.Value(opIDKey).(string); ok {
		return id
	}
	return ""
}

// EnsureOpID returns ctx unchanged if it already carries an id, otherwise a
// child context with a fresh one.
func EnsureOpID(ctx context.Context) context.Context {
	if OpID(ctx) != "" {
		return ctx
	}
	return WithOpID(ctx, NewOpID())
}

// Printf logs through the standard logger, prefixed with "[component opid]".
func Printf(ctx context.Context, component, format string, args ...any) {
	prefix := "[" + component
	if id := OpID(ctx); id != "" {
		prefix += " " + id
	}
	prefix += "] "
	log.Print(prefix + fmt.Sprintf(format, args...))
}
