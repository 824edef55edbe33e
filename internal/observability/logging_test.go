package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/spec-kit/repairdesk/internal/config"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.LoggerConfig
		wantDebug bool
		wantErr   bool
	}{
		{name: "defaults", cfg: config.LoggerConfig{}},
		{name: "debug console", cfg: config.LoggerConfig{Level: "DEBUG", Format: "console"}, wantDebug: true},
		{name: "unknown level", cfg: config.LoggerConfig{Level: "loud", Format: "json"}},
		{name: "unknown format", cfg: config.LoggerConfig{Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDebug, logger.Core().Enabled(zapcore.DebugLevel))
			assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
		})
	}
}
