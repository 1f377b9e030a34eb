package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrettyHandler_RedactsCredentials(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "pretty", "info")

	log.Info("login attempt", "username", "admin", "password", "admin123", "refreshToken", "abc")

	out := buf.String()
	assert.Contains(t, out, "login attempt")
	assert.Contains(t, out, "admin")
	assert.NotContains(t, out, "admin123")
	assert.NotContains(t, out, "=abc")
	assert.Contains(t, out, redacted)
}

func TestJSONHandler_RedactsCredentials(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "json", "debug")

	log.Debug("token issued", "token", "eyJhbGciOi", "user_id", "u1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, redacted, line["token"])
	assert.Equal(t, "u1", line["user_id"])
}

func TestPrettyHandler_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "pretty", "warn")

	log.Info("hidden")
	log.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestPrettyHandler_GroupsAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewPrettyHandler(&buf, nil)).With("service", "auth").WithGroup("req")

	log.Info("done", "status", 200)

	assert.Contains(t, buf.String(), "service")
	assert.Contains(t, buf.String(), "req.status")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}
