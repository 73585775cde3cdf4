package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogAppendsTimestampedLines(t *testing.T) {
	logger, err := NewPayloadLogger(t.TempDir())
	require.NoError(t, err)
	defer logger.Close()

	require.NoError(t, logger.Log("run-1", []byte(`{"status":"success"}`)))
	require.NoError(t, logger.Log("run-1", []byte(`{"coverage":true}`)))

	data, err := os.ReadFile(logger.PathFor("run-1"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `{"status":"success"}`)
	assert.Contains(t, lines[1], `{"coverage":true}`)
	for _, line := range lines {
		// Each line starts with an RFC3339 timestamp.
		assert.Regexp(t, `^\d{4}-\d{2}-\d{2}T`, line)
	}
}

func TestLogSeparatesRunsIntoFiles(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewPayloadLogger(dir)
	require.NoError(t, err)
	defer logger.Close()

	require.NoError(t, logger.Log("run-a", []byte(`{"a":1}`)))
	require.NoError(t, logger.Log("run-b", []byte(`{"b":2}`)))

	a, err := os.ReadFile(filepath.Join(dir, "run-a.log"))
	require.NoError(t, err)
	b, err := os.ReadFile(filepath.Join(dir, "run-b.log"))
	require.NoError(t, err)

	assert.Contains(t, string(a), `{"a":1}`)
	assert.NotContains(t, string(a), `{"b":2}`)
	assert.Contains(t, string(b), `{"b":2}`)
}

func TestPathForSanitizesUUID(t *testing.T) {
	logger, err := NewPayloadLogger(t.TempDir())
	require.NoError(t, err)
	defer logger.Close()

	path := logger.PathFor("../evil/run id")
	assert.Equal(t, ".._evil_run_id.log", filepath.Base(path))

	require.NoError(t, logger.Log("../evil/run id", []byte(`{}`)))
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	logger, err := NewPayloadLogger(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, logger.Log("run-1", []byte(`{}`)))
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())
}
