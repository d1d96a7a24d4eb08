package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubhacking/commitboard/internal/models"
)

// setupTestDB connects to the database named by TEST_DATABASE_URL and
// migrates it. Tests are skipped when the variable is unset.
func setupTestDB(t *testing.T) (*PostgresStore, func()) {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	store, err := NewPostgresStore(dsn)
	require.NoError(t, err)
	require.NoError(t, store.Migrate())

	cleanup := func() {
		_, err := store.db.Exec(`
			DROP TABLE IF EXISTS metrics;
			DROP TABLE IF EXISTS commits;
			DROP TABLE IF EXISTS repositories;
			DROP TABLE IF EXISTS goose_db_version;
		`)
		require.NoError(t, err)
		store.db.Close()
	}

	return store, cleanup
}

func TestPostgresRepositoryRoundTrip(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := &models.Repository{
		URL:         "https://github.com/hackers/widget",
		Name:        "widget",
		OwnerName:   "Ada",
		OwnerEmail:  "ada@example.com",
		OwnerHash:   "deadbeef",
		Description: "a widget",
		FirstSeen:   time.Date(2012, 4, 21, 20, 0, 0, 0, time.UTC),
		LastUpdate:  time.Date(2012, 4, 21, 20, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.SaveRepository(ctx, repo))
	require.NotZero(t, repo.ID)

	saved, err := store.GetRepositoryByURL(ctx, repo.URL)
	require.NoError(t, err)
	assert.Equal(t, repo.Name, saved.Name)
	assert.Equal(t, repo.OwnerEmail, saved.OwnerEmail)
	assert.False(t, saved.Approved)

	// Upsert on the same URL keeps the row identity.
	repo.Description = "updated"
	require.NoError(t, store.SaveRepository(ctx, repo))
	again, err := store.GetRepositoryByURL(ctx, repo.URL)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, again.ID)
	assert.Equal(t, "updated", again.Description)

	require.NoError(t, store.ApproveRepository(ctx, repo.URL))
	approved, err := store.GetRepositoryByURL(ctx, repo.URL)
	require.NoError(t, err)
	assert.True(t, approved.Approved)
}

func TestPostgresCommitAndMetrics(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := &models.Repository{
		URL:        "https://github.com/hackers/widget",
		Name:       "widget",
		OwnerName:  "Ada",
		OwnerEmail: "ada@example.com",
		FirstSeen:  time.Now().UTC(),
		LastUpdate: time.Now().UTC(),
	}
	require.NoError(t, store.SaveRepository(ctx, repo))
	require.NoError(t, store.ApproveRepository(ctx, repo.URL))

	commit := &models.Commit{
		CommitID:     "abc123",
		RepositoryID: repo.ID,
		URL:          "https://github.com/hackers/widget/commit/abc123",
		AuthorName:   "Ada",
		AuthorEmail:  "ada@example.com",
		AuthorHash:   "deadbeef",
		Timestamp:    time.Date(2012, 4, 21, 20, 0, 0, 0, time.UTC),
		Message:      "damn it works",
		Summary:      "damn it works",
		Added:        []string{"main.go"},
	}
	require.NoError(t, store.SaveCommit(ctx, commit))

	deltas := []models.MetricDelta{
		{Scope: models.ScopeGlobal, Nature: models.NatureCommit, Delta: 1},
		{Scope: models.ScopeGlobal, Nature: models.NatureCurse, Delta: 1},
		{Scope: models.ScopeRepo, Key: repo.URL, Nature: models.NatureCommit, Delta: 1},
		{Scope: models.ScopeAuthor, Key: "ada@example.com", Nature: models.NatureCommit, Delta: 1,
			AuthorName: "Ada", LinkRepoURL: repo.URL},
	}
	applied, err := store.ApplyMetricsBatch(ctx, "abc123", 1, deltas)
	require.NoError(t, err)
	require.Len(t, applied, 4)
	assert.Equal(t, int64(1), applied[0].Count)
	assert.Equal(t, applied[2].ID, applied[3].RepoMetricID)

	// Replayed batch increments again, no dedup by commit id.
	applied, err = store.ApplyMetricsBatch(ctx, "abc123", 1, deltas)
	require.NoError(t, err)
	assert.Equal(t, int64(2), applied[0].Count)

	got, err := store.GetCommitByCommitID(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, 1, got.NumCurses)
	assert.Equal(t, []string{"main.go"}, got.Added)
	assert.Equal(t, repo.URL, got.RepoURL)

	recent, err := store.RecentApprovedCommits(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "abc123", recent[0].CommitID)

	top, err := store.TopMetrics(ctx, models.ScopeAuthor, models.NatureCommit, 10, false)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "Ada", top[0].AuthorName)
	assert.Equal(t, int64(2), top[0].Count)
}
