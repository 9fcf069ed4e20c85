package events_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/vaultsync/internal/events"
)

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.WarnLevel, "text", &buf)

	logger.Debug("dropped")
	logger.Info("dropped")
	logger.Warn("kept warn")
	logger.Error("kept error")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "kept warn")
	assert.Contains(t, out, "kept error")
}

func TestLogger_TextFormatFields(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "text", &buf)

	logger.WithFields(map[string]interface{}{
		"b_second": 2,
		"a_first":  1,
	}).Info("ordered fields")

	line := buf.String()
	assert.Contains(t, line, "[INFO] ordered fields")
	// Field keys are emitted sorted.
	assert.Less(t, strings.Index(line, "a_first=1"), strings.Index(line, "b_second=2"))
}

func TestLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "json", &buf)

	logger.WithField("component", "store").Info("json entry")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "json entry", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "store", entry["component"])
	assert.NotEmpty(t, entry["time"])
}

func TestLogger_WithFieldDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := events.NewTestLogger(events.DebugLevel, "json", &buf)

	child := parent.WithField("child_key", "v")
	parent.Info("from parent")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	_, hasChildKey := entry["child_key"]
	assert.False(t, hasChildKey)

	buf.Reset()
	child.Info("from child")
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "v", entry["child_key"])
}

func TestLogger_WithError(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "json", &buf)

	logger.WithError(errors.New("boom")).Error("operation failed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "boom", entry["error"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, events.DebugLevel, events.ParseLevel("debug"))
	assert.Equal(t, events.InfoLevel, events.ParseLevel("info"))
	assert.Equal(t, events.WarnLevel, events.ParseLevel("WARN"))
	assert.Equal(t, events.ErrorLevel, events.ParseLevel("error"))
	assert.Equal(t, events.InfoLevel, events.ParseLevel("anything"))
}
