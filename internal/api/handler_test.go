package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubhacking/commitboard/internal/db"
	"github.com/ubhacking/commitboard/internal/ingest"
	"github.com/ubhacking/commitboard/internal/models"
	"github.com/ubhacking/commitboard/internal/tokens"
)

type recordingQueue struct {
	jobs []string
}

func (q *recordingQueue) Enqueue(ctx context.Context, name string, payload interface{}) error {
	q.jobs = append(q.jobs, name)
	return nil
}

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(nullWriter{})
	return logger
}

func newTestRouter(t *testing.T) (*gin.Engine, *db.MemStore, *tokens.Registry, *recordingQueue) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := db.NewMemStore()
	q := &recordingQueue{}
	logger := quietLogger()
	registry := tokens.NewRegistry(tokens.NewMemSlot(), 2*time.Hour, logger)
	ingestService := ingest.NewService(store, q, logger, 139)

	h := NewHandler(ingestService, store, registry, logger)
	return SetupRouter(h), store, registry, q
}

const webhookBody = `{
	"repository": {"url": "https://github.com/hackers/widget", "owner": {"name": "Ada", "email": "ada@example.com"}},
	"commits": [{"id": "abc123", "url": "https://github.com/hackers/widget/commit/abc123",
		"author": {"name": "Ada", "email": "ada@example.com"},
		"timestamp": "2012-01-01T10:00:00-05:00", "message": "first commit"}]
}`

func TestWebhookJSONBody(t *testing.T) {
	router, store, _, q := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/github", bytes.NewBufferString(webhookBody))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	_, err := store.GetRepositoryByURL(context.Background(), "https://github.com/hackers/widget")
	assert.NoError(t, err)
	assert.Equal(t, []string{models.JobMetric, models.JobBroadcast}, q.jobs)
}

func TestWebhookFormEncodedPayload(t *testing.T) {
	router, store, _, _ := newTestRouter(t)

	form := url.Values{"payload": {webhookBody}}
	req := httptest.NewRequest(http.MethodPost, "/github", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	_, err := store.GetRepositoryByURL(context.Background(), "https://github.com/hackers/widget")
	assert.NoError(t, err)
}

func TestWebhookValidationError(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	body := `{"repository": {"owner": {"name": "a", "email": "a@b.c"}}, "commits": []}`
	req := httptest.NewRequest(http.MethodPost, "/github", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp["error"], "repository.url")
}

func TestDashboardIssuesTokenAndReturnsContext(t *testing.T) {
	router, store, registry, _ := newTestRouter(t)
	ctx := context.Background()

	repo := &models.Repository{URL: "https://x/widget", Name: "widget", OwnerName: "a", OwnerEmail: "a@b.c", Approved: true}
	require.NoError(t, store.SaveRepository(ctx, repo))
	require.NoError(t, store.SaveCommit(ctx, &models.Commit{
		CommitID:     "abc123",
		RepositoryID: repo.ID,
		URL:          "https://x/widget/c/abc123",
		AuthorName:   "Ada",
		AuthorEmail:  "ada@example.com",
		Timestamp:    time.Now(),
		Message:      "first commit",
	}))
	_, err := store.ApplyMetricsBatch(ctx, "", 0, []models.MetricDelta{
		{Scope: models.ScopeGlobal, Nature: models.NatureCommit, Delta: 12},
		{Scope: models.ScopeGlobal, Nature: models.NatureCurse, Delta: 4},
		{Scope: models.ScopeAuthor, Key: "ada@example.com", Nature: models.NatureCommit, Delta: 12, AuthorName: "Ada"},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Token             string             `json:"token"`
		GlobalCommitCount int64              `json:"global_commit_count"`
		GlobalCurseCount  int64              `json:"global_curse_count"`
		Authors           models.Leaderboard `json:"authors"`
		Commits           []*models.Commit   `json:"commits"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, int64(12), resp.GlobalCommitCount)
	assert.Equal(t, int64(4), resp.GlobalCurseCount)
	require.Len(t, resp.Authors.Desc, 1)
	assert.Equal(t, "Ada", resp.Authors.Desc[0].Name)
	require.Len(t, resp.Commits, 1)
	assert.Equal(t, "abc123", resp.Commits[0].CommitID)

	_, ok := registry.Resolve(resp.Token)
	assert.True(t, ok, "the issued token is live in the registry")
}

func TestDashboardExcludesUnapprovedCommits(t *testing.T) {
	router, store, _, _ := newTestRouter(t)
	ctx := context.Background()

	repo := &models.Repository{URL: "https://x/secret", Name: "secret", OwnerName: "a", OwnerEmail: "a@b.c"}
	require.NoError(t, store.SaveRepository(ctx, repo))
	require.NoError(t, store.SaveCommit(ctx, &models.Commit{
		CommitID:     "hidden",
		RepositoryID: repo.ID,
		URL:          "https://x/secret/c/hidden",
		AuthorName:   "a",
		AuthorEmail:  "a@b.c",
		Timestamp:    time.Now(),
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Commits []*models.Commit `json:"commits"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Commits)
}

type failingMetricsStore struct {
	*db.MemStore
}

func (s *failingMetricsStore) TopMetrics(ctx context.Context, scope, nature string, limit int, ascending bool) ([]*models.Metric, error) {
	return nil, errors.New("connection reset")
}

func TestDashboardFailureIssuesNoToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := &failingMetricsStore{MemStore: db.NewMemStore()}
	logger := quietLogger()
	registry := tokens.NewRegistry(tokens.NewMemSlot(), 2*time.Hour, logger)
	ingestService := ingest.NewService(store, &recordingQueue{}, logger, 139)
	router := SetupRouter(NewHandler(ingestService, store, registry, logger))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, registry.Live(), "a failed dashboard load must not leave an orphaned token")
}

func TestApproveRepository(t *testing.T) {
	router, store, _, _ := newTestRouter(t)
	ctx := context.Background()

	repo := &models.Repository{URL: "https://x/widget", Name: "widget", OwnerName: "a", OwnerEmail: "a@b.c"}
	require.NoError(t, store.SaveRepository(ctx, repo))

	body := `{"url": "https://x/widget"}`
	req := httptest.NewRequest(http.MethodPost, "/admin/approve", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	got, err := store.GetRepositoryByURL(ctx, "https://x/widget")
	require.NoError(t, err)
	assert.True(t, got.Approved)
}

func TestApproveRepositoryNotFound(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	body := `{"url": "https://x/nope"}`
	req := httptest.NewRequest(http.MethodPost, "/admin/approve", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListUnapprovedRepositories(t *testing.T) {
	router, store, _, _ := newTestRouter(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRepository(ctx, &models.Repository{URL: "https://x/a", Name: "a", OwnerName: "a", OwnerEmail: "a@b.c"}))
	require.NoError(t, store.SaveRepository(ctx, &models.Repository{URL: "https://x/b", Name: "b", OwnerName: "b", OwnerEmail: "b@b.c", Approved: true}))

	req := httptest.NewRequest(http.MethodGet, "/admin/repos", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var repos []*models.Repository
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &repos))
	require.Len(t, repos, 1)
	assert.Equal(t, "https://x/a", repos[0].URL)
}

func TestStreamEventsUnknownToken(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/events/nope", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
