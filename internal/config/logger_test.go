package config

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_ProductionWritesJSONAtInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "production")

	logger.Debug("hidden")
	logger.Info("search finished", "matches", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "search finished", entry["msg"])
	assert.Equal(t, serviceName, entry["service"])
	assert.EqualValues(t, 3, entry["matches"])
	assert.NotContains(t, buf.String(), "hidden")
}

func TestNewLogger_DevelopmentWritesTextAtDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "development")

	logger.Debug("cache miss")

	out := buf.String()
	assert.Contains(t, out, "msg=\"cache miss\"")
	assert.Contains(t, out, "service=facematch")
	assert.Contains(t, out, "source=")
}
