package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/run-bigpig/llm-guardrails/pkg/requestid"
)

// Logger is an interface for logging
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
	Error(ctx context.Context, msg string, fields map[string]interface{})
	Debug(ctx context.Context, msg string, fields map[string]interface{})
}

// ZeroLogger implements Logger using zerolog
type ZeroLogger struct {
	logger zerolog.Logger
}

// Option configures a ZeroLogger
type Option func(*ZeroLogger)

// New creates a new ZeroLogger writing human-readable lines to stderr
func New(options ...Option) *ZeroLogger {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	l := &ZeroLogger{
		logger: zerolog.New(output).With().Timestamp().Logger().Level(zerolog.InfoLevel),
	}

	for _, option := range options {
		option(l)
	}

	return l
}

// WithLevel sets the minimum level; unknown levels fall back to info
func WithLevel(level string) Option {
	return func(l *ZeroLogger) {
		lvl, err := zerolog.ParseLevel(level)
		if err != nil || lvl == zerolog.NoLevel {
			lvl = zerolog.InfoLevel
		}
		l.logger = l.logger.Level(lvl)
	}
}

// WithJSON switches to one JSON object per line on w
func WithJSON(w io.Writer) Option {
	return func(l *ZeroLogger) {
		l.logger = zerolog.New(w).With().Timestamp().Logger().Level(l.logger.GetLevel())
	}
}

// WithOutput keeps the console format but writes to w
func WithOutput(w io.Writer) Option {
	return func(l *ZeroLogger) {
		output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
		l.logger = zerolog.New(output).With().Timestamp().Logger().Level(l.logger.GetLevel())
	}
}

// Nop returns a logger that discards everything
func Nop() *ZeroLogger {
	return &ZeroLogger{logger: zerolog.Nop()}
}

// Info logs an info message
func (l *ZeroLogger) Info(ctx context.Context, msg string, fields map[string]interface{}) {
	l.write(ctx, l.logger.Info(), msg, fields)
}

// Warn logs a warning message
func (l *ZeroLogger) Warn(ctx context.Context, msg string, fields map[string]interface{}) {
	l.write(ctx, l.logger.Warn(), msg, fields)
}

// Error logs an error message
func (l *ZeroLogger) Error(ctx context.Context, msg string, fields map[string]interface{}) {
	l.write(ctx, l.logger.Error(), msg, fields)
}

// Debug logs a debug message
func (l *ZeroLogger) Debug(ctx context.Context, msg string, fields map[string]interface{}) {
	l.write(ctx, l.logger.Debug(), msg, fields)
}

func (l *ZeroLogger) write(ctx context.Context, event *zerolog.Event, msg string, fields map[string]interface{}) {
	// disabled levels hand back a nil event
	if event == nil {
		return
	}

	if ctx != nil {
		if id, err := requestid.GetRequestID(ctx); err == nil {
			event = event.Str("request_id", id)
		}
	}

	event.Fields(fields).Msg(msg)
}
