package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/almaty-air/internal/config"
)

func TestNew_ProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{Environment: "production", LogLevel: slog.LevelInfo}

	logger := newWithWriter(&buf, cfg, "airbot")
	logger.Info("cycle done", "sent", 3)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "cycle done", line["msg"])
	assert.Equal(t, "airbot", line["app"])
	assert.Equal(t, "production", line["env"])
	assert.EqualValues(t, 3, line["sent"])
}

func TestNew_DevelopmentRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{Environment: "development", LogLevel: slog.LevelWarn}

	logger := newWithWriter(&buf, cfg, "airbot")
	logger.Info("hidden")
	assert.Empty(t, buf.String())

	logger.Warn("visible")
	assert.Contains(t, buf.String(), "visible")
}
