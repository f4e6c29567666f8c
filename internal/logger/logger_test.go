package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text")

	Debug("hidden debug line")
	Info("visible info line")

	out := buf.String()
	assert.NotContains(t, out, "hidden debug line")
	assert.Contains(t, out, "visible info line")
}

func TestSetLevelTakesEffect(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "ERROR", "text")

	Warn("suppressed warn")
	assert.Empty(t, buf.String())

	SetLevel("DEBUG")
	Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestInvalidLevelIgnored(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text")

	SetLevel("NOISY") // ignored
	Info("still info")
	assert.Contains(t, buf.String(), "still info")
}

func TestStructuredFieldsInTextOutput(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text")

	Info("upload complete", "path", "/a/b", "bytes", 42)

	out := buf.String()
	assert.Contains(t, out, "upload complete")
	assert.Contains(t, out, "path=/a/b")
	assert.Contains(t, out, "bytes=42")
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "json")

	Info("structured line", "key", "value")

	line := strings.TrimSpace(buf.String())
	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &record))
	assert.Equal(t, "structured line", record["msg"])
	assert.Equal(t, "value", record["key"])
}

func TestWithPreBoundFields(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text")

	l := With("conn_id", "abc123")
	l.Info("request served")

	out := buf.String()
	assert.Contains(t, out, "conn_id=abc123")
	assert.Contains(t, out, "request served")
}
