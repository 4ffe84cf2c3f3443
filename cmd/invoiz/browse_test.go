package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoiz/internal/model"
	"invoiz/internal/store"
)

func testDB(t *testing.T) *store.SQLiteStore {
	t.Helper()
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "invoiz.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBrowseScope_AllRuns(t *testing.T) {
	runID, heading, err := browseScope(context.Background(), testDB(t), false)
	require.NoError(t, err)
	assert.Empty(t, runID)
	assert.Empty(t, heading)
}

func TestBrowseScope_LastWithoutRuns(t *testing.T) {
	_, _, err := browseScope(context.Background(), testDB(t), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no runs recorded")
}

func TestBrowseScope_LastRun(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	require.NoError(t, db.StartRun(ctx, "run-1", "older", 5))
	require.NoError(t, db.SaveRecord(ctx, "run-1", model.EmailRecord{MessageID: "a"}))
	require.NoError(t, db.FinishRun(ctx, "run-1", 1, nil))

	require.NoError(t, db.StartRun(ctx, "run-2", "invoice", 5))
	require.NoError(t, db.SaveRecord(ctx, "run-2", model.EmailRecord{MessageID: "b"}))
	require.NoError(t, db.SaveRecord(ctx, "run-2", model.EmailRecord{MessageID: "c"}))
	require.NoError(t, db.FinishRun(ctx, "run-2", 2, errors.New("quota exceeded")))

	runID, heading, err := browseScope(ctx, db, true)
	require.NoError(t, err)
	assert.Equal(t, "run-2", runID)
	assert.Contains(t, heading, `Last run "invoice"`)
	assert.Contains(t, heading, "2 record(s)")
	assert.Contains(t, heading, "(error: quota exceeded)")

	recs, err := db.LoadRecords(ctx, runID)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestBrowseScope_UnfinishedRunCountsSavedRecords(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	require.NoError(t, db.StartRun(ctx, "run-1", "invoice", 0))
	require.NoError(t, db.SaveRecord(ctx, "run-1", model.EmailRecord{MessageID: "a"}))

	runID, heading, err := browseScope(ctx, db, true)
	require.NoError(t, err)
	assert.Equal(t, "run-1", runID)
	assert.Contains(t, heading, "1 record(s) (unfinished)")
}
