package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesm/knowledge-harvest/config"
)

func TestRun_InitAndAddRepository(t *testing.T) {
	t.Setenv(config.EnvGithubToken, "")
	path := filepath.Join(t.TempDir(), "config.json")
	log := zerolog.New(io.Discard)

	require.NoError(t, run(context.Background(), options{configPath: path, createConfig: true}, log))
	require.NoError(t, run(context.Background(), options{configPath: path, addRepo: "octo/hello"}, log))

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"example/repo", "octo/hello"}, cfg.Repositories)

	err = run(context.Background(), options{configPath: path, addRepo: "octo/.."}, log)
	assert.Error(t, err)
}

func TestRun_InvalidConfigurationIsReturned(t *testing.T) {
	t.Setenv(config.EnvStorageMode, "")
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"repositories":["octo/hello"]}`), 0644))

	err := run(context.Background(), options{configPath: path, syncAll: true, storageMode: "tape"}, zerolog.New(io.Discard))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestRun_FailedRepositoryClosesStore(t *testing.T) {
	t.Setenv(config.EnvStorageMode, "")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"storage":{"mode":"sqlite"}}`), 0644))

	err := run(context.Background(), options{configPath: path, syncRepo: "not-a-repo"}, zerolog.New(io.Discard))
	assert.ErrorIs(t, err, errHarvestFailed)

	// the database was created and released; removing it must succeed
	dbPath := filepath.Join(dir, "knowledge.db")
	require.FileExists(t, dbPath)
	assert.NoError(t, os.Remove(dbPath))
}
