package logging_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibur/vibur-dbcp-sub001/internal/logging"
)

func TestFuncAdapterForwardsArguments(t *testing.T) {
	var gotLevel logging.Level
	var gotMsg string
	var gotData map[string]any

	adapter := logging.Func(func(_ context.Context, level logging.Level, msg string, data map[string]any) {
		gotLevel = level
		gotMsg = msg
		gotData = data
	})

	adapter.Log(context.Background(), logging.LevelWarn, "held too long", map[string]any{"elapsed": "1s"})

	assert.Equal(t, logging.LevelWarn, gotLevel)
	assert.Equal(t, "held too long", gotMsg)
	assert.Equal(t, "1s", gotData["elapsed"])
}

func TestNoopDiscardsEverything(t *testing.T) {
	require.NotPanics(t, func() {
		logging.Noop{}.Log(context.Background(), logging.LevelError, "ignored", map[string]any{"x": 1})
	})
}

func TestZerologAdapterWritesStructuredEvent(t *testing.T) {
	var buf []byte
	writer := zerolog.ConsoleWriter{Out: writerFunc(func(p []byte) (int, error) {
		buf = append(buf, p...)
		return len(p), nil
	}), NoColor: true}
	z := logging.NewZerolog(zerolog.New(writer))

	z.Log(context.Background(), logging.LevelInfo, "query execution longer than threshold", map[string]any{"sql": "select 1"})

	assert.Contains(t, string(buf), "query execution longer than threshold")
}

func TestZerologAdapterSkipsLevelNone(t *testing.T) {
	var buf []byte
	z := logging.NewZerolog(zerolog.New(writerFunc(func(p []byte) (int, error) {
		buf = append(buf, p...)
		return len(p), nil
	})))

	z.Log(context.Background(), logging.LevelNone, "should not appear", nil)

	assert.Empty(t, buf)
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
