package shared

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ContextKey is the type of the context keys set by the API layer.
type ContextKey string

const (
	// TraceIDKey is the key for the trace ID in the request context
	TraceIDKey ContextKey = "traceID"

	// TraceIDHeader carries the trace ID on requests and responses.
	TraceIDHeader = "X-Trace-ID"

	// TraceIDLength is the number of bytes used to generate the trace ID
	TraceIDLength = 16 // 32 hex characters
)

// validTraceID accepts caller-supplied trace IDs that are safe to log.
var validTraceID = regexp.MustCompile(`^[A-Za-z0-9\-]{8,64}$`)

// WithTraceID returns a copy of ctx carrying traceID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID retrieves the trace ID from the context.
// If no trace ID exists, it returns an empty string.
func GetTraceID(ctx context.Context) string {
	traceID, ok := ctx.Value(TraceIDKey).(string)
	if !ok {
		return ""
	}
	return traceID
}

// TraceIDFromHeader returns the caller's trace ID when it is well formed,
// or a fresh one.
func TraceIDFromHeader(header string) string {
	header = strings.TrimSpace(header)
	if validTraceID.MatchString(header) {
		return header
	}
	return NewTraceID()
}

// NewTraceID returns a random 32-character hex trace ID.
func NewTraceID() string {
	b := make([]byte, TraceIDLength)
	if n, err := rand.Read(b); err != nil || n != TraceIDLength {
		slog.Error("failed to generate secure random trace ID",
			slog.Any("error", err),
			slog.Int("bytes_read", n))
		// A random UUID has the same length once its dashes are dropped.
		return strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	return hex.EncodeToString(b)
}
