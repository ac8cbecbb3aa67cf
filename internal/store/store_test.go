package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acheong08/spr-behavior/pkg/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "data", "behavior.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleSummary() *models.Summary {
	return &models.Summary{
		Files: &models.FilesReport{
			WorkingDirectory: "/srv/pkg",
			ReadFilenames:    []string{"/etc/passwd"},
			Opened: models.OpenedFiles{
				All:      []string{"/etc/passwd"},
				Readonly: []string{"/etc/passwd"},
			},
		},
		Network: &models.NetworkReport{
			ConnectedIPs:     []string{"1.2.3.4:80"},
			ConnectedSockets: []string{},
		},
		APIStats: models.APIStats{"100": {"openat": 1, "read": 1}},
	}
}

func TestSaveAndLoadSummary(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, db.SaveSummary(ctx, &SummaryRecord{
		ID:         "a1",
		Collection: "pkg@1.0.0",
		CreatedAt:  created,
		Summary:    sampleSummary(),
	}))

	rec, err := db.LoadSummary(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "pkg@1.0.0", rec.Collection)
	assert.True(t, created.Equal(rec.CreatedAt))
	assert.Equal(t, "/srv/pkg", rec.Summary.Files.WorkingDirectory)
	assert.Equal(t, []string{"1.2.3.4:80"}, rec.Summary.Network.ConnectedIPs)
	assert.Equal(t, 1, rec.Summary.APIStats["100"]["read"])
}

func TestLoadSummaryNotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := db.LoadSummary(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveSummaryDuplicateID(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	rec := &SummaryRecord{ID: "dup", Collection: "c", CreatedAt: time.Now(), Summary: sampleSummary()}
	require.NoError(t, db.SaveSummary(ctx, rec))
	assert.Error(t, db.SaveSummary(ctx, rec))
}

func TestSummariesWith(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.SaveSummary(ctx, &SummaryRecord{ID: "old", Collection: "c", CreatedAt: base, Summary: sampleSummary()}))
	require.NoError(t, db.SaveSummary(ctx, &SummaryRecord{ID: "new", Collection: "c", CreatedAt: base.Add(time.Hour), Summary: sampleSummary()}))
	require.NoError(t, db.SaveSummary(ctx, &SummaryRecord{ID: "empty", Collection: "c", CreatedAt: base, Summary: &models.Summary{}}))

	ids, err := db.SummariesWith(ctx, "/etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "old"}, ids)

	ids, err = db.SummariesWith(ctx, "1.2.3.4:80")
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	ids, err = db.SummariesWith(ctx, "/nowhere")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestObservationsFlattenEverySet(t *testing.T) {
	obs := observations(sampleSummary())
	kinds := make(map[string]int)
	for _, o := range obs {
		kinds[o.kind]++
	}
	assert.Equal(t, map[string]int{KindOpened: 1, KindReadonly: 1, KindRead: 1, KindIP: 1}, kinds)
}
