package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewDefaults(t *testing.T) {
	logger, err := New(nil)
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(&Config{Level: "info", Format: "xml"})
	assert.Error(t, err)

	_, err = New(&Config{Level: "loud", Format: "json"})
	assert.Error(t, err)
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"trace", TraceLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"info", zapcore.InfoLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"bogus", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := LevelFromString(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTestLoggerObservation(t *testing.T) {
	tl := NewTestLogger()
	tl.Info("commit created")
	tl.Warn("retrying after lock conflict")

	assert.Len(t, tl.All(), 2)
	assert.Equal(t, 1, tl.FilterMessage("commit created").Len())
	tl.AssertLogged(t, zapcore.WarnLevel, "lock conflict")
}
