package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONToStdout(t *testing.T) {
	var buf bytes.Buffer
	log, closer, err := New(Options{Level: "debug", Format: "json", Stdout: &buf})
	require.NoError(t, err)
	defer closer.Close()

	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	log.WithField("run_id", "abc").Info("run started")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "run started", line["message"])
	assert.Equal(t, "abc", line["run_id"])
	assert.Contains(t, line, "timestamp")
}

func TestNewBothWritesFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "whosout.log")
	log, closer, err := New(Options{Level: "nonsense", Output: "both", Path: path, Stdout: &buf})
	require.NoError(t, err)

	assert.Equal(t, logrus.InfoLevel, log.GetLevel(), "bad level falls back to info")
	log.Warn("selection counter stuck")
	require.NoError(t, closer.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "selection counter stuck")
	assert.Contains(t, buf.String(), "selection counter stuck")
}

func TestNewRejectsBadOutput(t *testing.T) {
	_, _, err := New(Options{Output: "file"})
	require.Error(t, err)

	_, _, err = New(Options{Output: "syslog"})
	require.Error(t, err)
}
