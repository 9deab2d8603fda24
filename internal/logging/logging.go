// Package logging provides the Logger interface consumed by the facade,
// plus a default adapter backed by zerolog. The interface exists so
// callers can swap in their own adapter, mirroring the jackc/pgx tracelog
// package's Logger/LoggerFunc split.
package logging

import (
	"context"

	"github.com/rs/zerolog"
)

// Level mirrors tracelog's LogLevel, smallest-first so zero value means
// "unspecified".
type Level int

const (
	LevelNone Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

// Logger is the minimal structured-logging contract used throughout this
// module. data may be nil.
type Logger interface {
	Log(ctx context.Context, level Level, msg string, data map[string]any)
}

// Func adapts a plain function to Logger.
type Func func(ctx context.Context, level Level, msg string, data map[string]any)

func (f Func) Log(ctx context.Context, level Level, msg string, data map[string]any) {
	f(ctx, level, msg, data)
}

// Zerolog adapts a zerolog.Logger to Logger.
type Zerolog struct {
	Logger zerolog.Logger
}

func NewZerolog(l zerolog.Logger) Zerolog {
	return Zerolog{Logger: l}
}

func (z Zerolog) Log(_ context.Context, level Level, msg string, data map[string]any) {
	var event *zerolog.Event
	switch level {
	case LevelTrace:
		event = z.Logger.Trace()
	case LevelDebug:
		event = z.Logger.Debug()
	case LevelInfo:
		event = z.Logger.Info()
	case LevelWarn:
		event = z.Logger.Warn()
	case LevelError:
		event = z.Logger.Error()
	default:
		return
	}
	for k, v := range data {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}

// Noop discards everything; used as the default when no logger is configured.
type Noop struct{}

func (Noop) Log(context.Context, Level, string, map[string]any) {}
