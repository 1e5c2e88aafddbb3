package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCheck(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "config.yaml")
	base := []string{"--config", cfg, "--no-audit"}

	assert.Equal(t, 0, run(append(base, "check", "-c", "ls | xargs cat")))
	assert.Equal(t, 2, run(append(base, "check", "-c", "echo test >file | cat")))
	assert.Equal(t, 2, run(append(base, "check", "-c", "ps | get name")))
}

func TestRunUsageErrors(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "config.yaml")
	assert.Equal(t, 2, run([]string{"--config", cfg, "--no-such-flag"}))
	assert.Equal(t, 2, run([]string{"--config", cfg, "-c", "true", "script.monch"}))
}

func TestRunConfigTypes(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("types:\n  ps: {input: none, output: objects}\naudit: {enabled: false}\n"), 0o644))

	assert.Equal(t, 0, run([]string{"--config", cfg, "check", "-c", "ps | get name"}))
}

func TestSource(t *testing.T) {
	src, script, err := source("echo hi", true, nil)
	require.NoError(t, err)
	assert.Equal(t, "echo hi", src)
	assert.False(t, script)

	path := filepath.Join(t.TempDir(), "s.monch")
	require.NoError(t, os.WriteFile(path, []byte("echo a\necho b\n"), 0o644))
	src, script, err = source("", false, []string{path})
	require.NoError(t, err)
	assert.Equal(t, "echo a\necho b\n", src)
	assert.True(t, script)

	_, _, err = source("x", true, []string{path})
	assert.Error(t, err)
}
