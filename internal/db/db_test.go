package db

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesm/knowledge-harvest/internal/models"
	"github.com/wesm/knowledge-harvest/internal/storage"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := New(filepath.Join(t.TempDir(), "knowledge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.Initialize())
	return database
}

func TestDB_ImplementsStore(t *testing.T) {
	var _ storage.Store = openTestDB(t)
}

func TestDB_LoadMissing(t *testing.T) {
	database := openTestDB(t)

	res, err := database.Load(context.Background(), storage.Key{Project: "octo/hello", Kind: models.KindIssue})
	require.NoError(t, err)
	assert.Equal(t, storage.NotFound, res.Status)
	assert.NotNil(t, res.Snapshot)
}

func TestDB_RoundTripAndOverwrite(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	key := storage.Key{Project: "octo/hello", Kind: models.KindPullRequest}

	first := storage.Snapshot{"5": json.RawMessage(`{"size":"L"}`)}
	require.NoError(t, database.Save(ctx, key, first))

	res, err := database.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, storage.Found, res.Status)
	assert.Equal(t, first, res.Snapshot)

	second := storage.Snapshot{
		"5": json.RawMessage(`{"size":"L"}`),
		"6": json.RawMessage(`{"size":null}`),
	}
	require.NoError(t, database.Save(ctx, key, second))

	res, err = database.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, second, res.Snapshot)

	var entities int
	require.NoError(t, database.QueryRow(`SELECT entities FROM snapshots WHERE project = ? AND kind = ?`,
		key.Project, string(key.Kind)).Scan(&entities))
	assert.Equal(t, 2, entities)
}

func TestDB_KindsAreSeparate(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)

	issues := storage.Key{Project: "octo/hello", Kind: models.KindIssue}
	pulls := storage.Key{Project: "octo/hello", Kind: models.KindPullRequest}
	require.NoError(t, database.Save(ctx, issues, storage.Snapshot{"1": json.RawMessage(`{}`)}))

	res, err := database.Load(ctx, pulls)
	require.NoError(t, err)
	assert.Equal(t, storage.NotFound, res.Status)
}
