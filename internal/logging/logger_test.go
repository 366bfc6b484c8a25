package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/egd-cxr-toolkit/internal/domain"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_LevelAndFormat(t *testing.T) {
	tests := []struct {
		name          string
		cfg           domain.LoggingConfig
		expectedLevel logrus.Level
		json          bool
	}{
		{"json debug", domain.LoggingConfig{Level: "debug", Format: "json"}, logrus.DebugLevel, true},
		{"text warn", domain.LoggingConfig{Level: "warn", Format: "text"}, logrus.WarnLevel, false},
		{"invalid level falls back to info", domain.LoggingConfig{Level: "chatty"}, logrus.InfoLevel, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, closer, err := New(tt.cfg)
			require.NoError(t, err)
			defer closer.Close()

			assert.Equal(t, tt.expectedLevel, logger.GetLevel())
			_, isJSON := logger.Formatter.(*logrus.JSONFormatter)
			assert.Equal(t, tt.json, isJSON)
		})
	}
}

func TestNew_JSONFieldNames(t *testing.T) {
	logger, closer, err := New(domain.LoggingConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	defer closer.Close()

	var buf bytes.Buffer
	logger.SetOutput(&buf)
	logger.WithField("dicom_id", "abc").Info("sampled case")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "sampled case", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "abc", entry["dicom_id"])
	assert.Contains(t, entry, "timestamp")
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")

	logger, closer, err := New(domain.LoggingConfig{Level: "info", Output: path})
	require.NoError(t, err)
	logger.Warn("transcript directory missing")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "transcript directory missing"))
}

func TestNew_BadFileOutput(t *testing.T) {
	_, _, err := New(domain.LoggingConfig{Output: filepath.Join(t.TempDir(), "missing", "dir", "x.log")})
	assert.Error(t, err)
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	assert.NotPanics(t, func() { logger.Error("dropped") })
}
