package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the command tree with args and returns stdout and stderr.
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestNewRootCmd(t *testing.T) {
	cmd := NewRootCmd()

	assert.Equal(t, "sondectl", cmd.Use)
	names := make(map[string]bool)
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"parse", "ingest", "archive"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}

	f := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, f)
	assert.Equal(t, defaultConfigPath(), f.DefValue)
	assert.True(t, strings.HasSuffix(f.DefValue, filepath.Join(appName, "config.yaml")), f.DefValue)
}

func TestLoadConfig_ExplicitFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ingest:\n  collection: hurricane-drops\n"), 0o600))

	cmd := NewRootCmd()
	require.NoError(t, cmd.PersistentFlags().Set("config", path))

	cfg, _, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "hurricane-drops", cfg.Ingest.Collection)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	cmd := NewRootCmd()
	require.NoError(t, cmd.PersistentFlags().Set("config", filepath.Join(t.TempDir(), "nope.yaml")))

	_, _, err := loadConfig(cmd)
	assert.Error(t, err)
}

func TestLoadConfig_MissingDefaultFileUsesDefaults(t *testing.T) {
	cmd := NewRootCmd()
	// the default path only matters when it exists; point it somewhere empty
	require.NoError(t, cmd.PersistentFlags().Lookup("config").Value.Set(filepath.Join(t.TempDir(), "config.yaml")))

	cfg, _, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "dropsondes", cfg.Ingest.Collection)
}

func TestIngestCmd_RejectsBadURL(t *testing.T) {
	_, _, err := run(t, "ingest", "ftp://archive.example/x.dat")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheme must be http or https")
}

func TestArchiveCmd_Flags(t *testing.T) {
	cmd := NewArchiveCmd()
	for flag, short := range map[string]string{"concurrency": "c", "json": "j"} {
		f := cmd.Flags().Lookup(flag)
		require.NotNil(t, f, flag)
		assert.Equal(t, short, f.Shorthand)
	}
}

func TestArchiveCmd_RejectsBadConcurrency(t *testing.T) {
	t.Setenv("CATALOG_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", ":memory:")

	_, _, err := run(t, "archive", "--concurrency", "500", "https://archive.example/drops/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--concurrency")
}
