package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRejectsBadFlags(t *testing.T) {
	assert.Equal(t, 2, run([]string{"-interval", "0"}))
	assert.Equal(t, 2, run([]string{"-fetch-workers", "0"}))
	assert.Equal(t, 2, run([]string{"-no-such-flag"}))
}

func TestRunJSONReturnsZeroAndFlushesLog(t *testing.T) {
	dir := t.TempDir()
	out, err := os.Create(filepath.Join(dir, "out.json"))
	require.NoError(t, err)
	stdout := os.Stdout
	os.Stdout = out
	defer func() { os.Stdout = stdout }()

	logPath := filepath.Join(dir, "wrtmon.log")
	code := run([]string{"-json", "-interval", "100ms", "-log-level", "info", "-log-file", logPath})
	require.NoError(t, out.Close())
	assert.Equal(t, 0, code)

	written, err := os.ReadFile(filepath.Join(dir, "out.json"))
	require.NoError(t, err)
	assert.Contains(t, string(written), `"property": "BATTERY"`)

	logged, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(logged), "profile")
}
