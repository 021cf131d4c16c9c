package requestid

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

type contextKey string

const (
	// requestIDKey is the context key for the request ID
	requestIDKey contextKey = "request_id"

	// Header is the HTTP header carrying the request ID
	Header = "X-Request-ID"
)

var (
	// ErrNoRequestID is returned when no request ID is found in the context
	ErrNoRequestID = errors.New("no request ID found in context")
)

// New returns a fresh random request ID
func New() string {
	return uuid.NewString()
}

// WithRequestID returns a new context with the given request ID
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID returns the request ID from the context
func GetRequestID(ctx context.Context) (string, error) {
	id, ok := ctx.Value(requestIDKey).(string)
	if !ok || id == "" {
		return "", ErrNoRequestID
	}
	return id, nil
}

// Ensure returns ctx unchanged if it already carries a request ID, otherwise a
// child context with a new one
func Ensure(ctx context.Context) (context.Context, string) {
	if id, err := GetRequestID(ctx); err == nil {
		return ctx, id
	}
	id := New()
	return WithRequestID(ctx, id), id
}
