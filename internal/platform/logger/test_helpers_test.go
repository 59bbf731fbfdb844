package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestLogBuffer(t *testing.T) {
	t.Parallel()
	log, buf := NewTestLogger(t)

	log.Info("first", "n", 1)
	log.Warn("second")

	entries, err := buf.GetLogEntries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "first", entries[0]["msg"])
	assert.Equal(t, float64(1), entries[0]["n"])
	assert.Equal(t, "WARN", entries[1]["level"])

	buf.Reset()
	assert.Empty(t, buf.String())
	entries, err = buf.GetLogEntries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTestLogBuffer_InvalidJSON(t *testing.T) {
	t.Parallel()
	buf := &TestLogBuffer{}
	_, err := buf.Write([]byte("not json\n"))
	require.NoError(t, err)

	_, err = buf.GetLogEntries()
	assert.Error(t, err)
}
