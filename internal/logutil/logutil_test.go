package logutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestLogConfig_getter(t *testing.T) {
	tests := []struct {
		name      string
		cfg       LogConfig
		wantLevel zap.AtomicLevel
		wantErr   bool
	}{
		{
			name:      "defaults",
			cfg:       DefaultLogConfig(),
			wantLevel: zap.NewAtomicLevelAt(zap.InfoLevel),
		},
		{
			name:      "debug json",
			cfg:       LogConfig{Level: "debug", Format: "json"},
			wantLevel: zap.NewAtomicLevelAt(zap.DebugLevel),
		},
		{
			name:    "bad level",
			cfg:     LogConfig{Level: "loud"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lvl, err := tt.cfg.getLevel()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantLevel.Level(), lvl.Level())
			opts, err := tt.cfg.getOptions()
			require.NoError(t, err)
			require.Len(t, opts, 2)
		})
	}
}

func TestUnsupportedFormat(t *testing.T) {
	_, err := LogConfig{Format: "xml"}.Build()
	require.EqualError(t, err, "logutil: unsupported log format: xml")
}

func TestSetupLoggerToFile(t *testing.T) {
	prev := GetGlobalLogger()
	defer ReplaceGlobalLogger(prev)

	path := filepath.Join(t.TempDir(), "msgpool.log")
	l, err := SetupLogger(LogConfig{Level: "info", Format: "json", Filename: path, MaxSize: 1})
	require.NoError(t, err)
	require.Same(t, l, GetGlobalLogger())

	GetGlobalLogger().Debug("hidden")
	GetGlobalLogger().Info("worker started", zap.Int("workers", 3))
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"msg":"worker started"`)
	require.Contains(t, string(data), `"workers":3`)
	require.NotContains(t, string(data), "hidden")
}

func TestEncoderOutput(t *testing.T) {
	enc, err := LogConfig{Format: "console"}.getEncoder()
	require.NoError(t, err)
	buf, err := enc.EncodeEntry(zapcore.Entry{Level: zapcore.WarnLevel, Message: "depth high"}, nil)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "WARN")
	require.Contains(t, buf.String(), "depth high")
}
