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

	"vkads-report/config"
)

func TestNew_DefaultsToInfo(t *testing.T) {
	log, err := New(config.LoggingConfig{})
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestNew_JSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	log, err := newWithOutput(config.LoggingConfig{Level: "debug", JSON: true}, &buf)
	require.NoError(t, err)

	log.WithField("group", "ЦР25_A").Debug("captured")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "captured", entry["msg"])
	assert.Equal(t, "ЦР25_A", entry["group"])
}

func TestNew_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	var buf bytes.Buffer
	log, err := newWithOutput(config.LoggingConfig{File: path, MaxSizeMB: 1}, &buf)
	require.NoError(t, err)

	log.Info("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, buf.String(), "hello")
}
