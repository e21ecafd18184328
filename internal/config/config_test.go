package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, DefaultListenPort, cfg.ListenPort)
	require.Equal(t, DefaultSeedAddress, cfg.SeedAddress)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(dir, 0o755))

	want := Config{Author: "ren", ListenPort: 9001, SeedAddress: "tcp://10.0.0.1:5577", LogLevel: "debug"}
	require.NoError(t, Save(dir, want))

	got, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestLoadFillsMissingFieldsWithDefaults(t *testing.T) {
	dir := t.TempDir()
	partial := "author = \"ren\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, fileName), []byte(partial), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, "ren", cfg.Author)
	require.Equal(t, DefaultListenPort, cfg.ListenPort)
}
