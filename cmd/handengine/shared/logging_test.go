package shared

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		name string
		opts LogOptions
		want zerolog.Level
	}{
		{"default", LogOptions{}, zerolog.InfoLevel},
		{"configured", LogOptions{Level: "warn"}, zerolog.WarnLevel},
		{"debug wins", LogOptions{Level: "error", Debug: true}, zerolog.DebugLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, logger.GetLevel())
		})
	}

	_, err := NewLogger(LogOptions{Level: "loud"})
	assert.Error(t, err)
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LogOptions{JSON: true, Out: &buf})
	require.NoError(t, err)

	logger.Info().Str("table_id", "t1").Msg("Hand started")
	logger.Debug().Msg("hidden")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "t1", line["table_id"])
	assert.Equal(t, "Hand started", line["message"])
	assert.Contains(t, line, "time")
}

func TestSignalContextStop(t *testing.T) {
	ctx, stop := SignalContext(context.Background(), zerolog.Nop())
	assert.NoError(t, ctx.Err())
	stop()
	<-ctx.Done()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}
