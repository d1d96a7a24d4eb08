package api

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/ubhacking/commitboard/internal/db"
	apperrors "github.com/ubhacking/commitboard/internal/errors"
	"github.com/ubhacking/commitboard/internal/ingest"
	"github.com/ubhacking/commitboard/internal/models"
	"github.com/ubhacking/commitboard/internal/tokens"
)

const (
	recentCommitCount = 10
	leaderboardSize   = 10
)

var webhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "commitboard",
	Name:      "webhooks_received_total",
	Help:      "Inbound push webhooks, by outcome.",
}, []string{"status"})

type Handler struct {
	ingestService *ingest.Service
	store         db.Store
	registry      *tokens.Registry
	logger        *logrus.Logger
}

func NewHandler(ingestService *ingest.Service, store db.Store, registry *tokens.Registry, logger *logrus.Logger) *Handler {
	return &Handler{
		ingestService: ingestService,
		store:         store,
		registry:      registry,
		logger:        logger,
	}
}

// Webhook receives one provider push notification. The legacy hook format
// wraps the JSON document in a form-encoded "payload" field; both that and a
// raw JSON body are accepted.
func (h *Handler) Webhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		webhooksReceived.WithLabelValues("error").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	if strings.HasPrefix(c.ContentType(), "application/x-www-form-urlencoded") {
		if values, err := url.ParseQuery(string(body)); err == nil {
			if p := values.Get("payload"); p != "" {
				body = []byte(p)
			}
		}
	}

	if err := h.ingestService.Ingest(c.Request.Context(), body); err != nil {
		if apperrors.IsValidationError(err) {
			webhooksReceived.WithLabelValues("validation_error").Inc()
			h.logger.Warnf("Rejected webhook: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		webhooksReceived.WithLabelValues("error").Inc()
		h.logger.Errorf("Failed to ingest webhook: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process webhook"})
		return
	}

	webhooksReceived.WithLabelValues("ok").Inc()
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Dashboard issues a fresh viewer token and returns the rendering context:
// global totals, author and repository leaderboards, and the most recent
// commits of approved repositories.
func (h *Handler) Dashboard(c *gin.Context) {
	ctx := c.Request.Context()

	globalCommits := h.globalCount(c, models.NatureCommit)
	globalCurses := h.globalCount(c, models.NatureCurse)

	authors, err := h.leaderboard(c, models.ScopeAuthor)
	if err != nil {
		h.logger.Errorf("Failed to load author leaderboard: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load dashboard"})
		return
	}
	repos, err := h.leaderboard(c, models.ScopeRepo)
	if err != nil {
		h.logger.Errorf("Failed to load repo leaderboard: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load dashboard"})
		return
	}

	commits, err := h.store.RecentApprovedCommits(ctx, recentCommitCount)
	if err != nil {
		h.logger.Errorf("Failed to load recent commits: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load dashboard"})
		return
	}
	if commits == nil {
		commits = []*models.Commit{}
	}

	// Issued last: a failed read above would otherwise leave a token in the
	// registry that the client never sees.
	token := h.registry.Issue(c.ClientIP())

	c.JSON(http.StatusOK, gin.H{
		"token":               token.ID,
		"token_expires_at":    token.ExpiresAt,
		"global_commit_count": globalCommits,
		"global_curse_count":  globalCurses,
		"authors":             authors,
		"repos":               repos,
		"commits":             commits,
	})
}

// StreamEvents is the viewer push channel: an SSE stream keyed by token id.
// The stream ends when the token expires or the client disconnects.
func (h *Handler) StreamEvents(c *gin.Context) {
	token, ok := h.registry.Resolve(c.Param("token"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown or expired token"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	expiry := time.NewTimer(time.Until(token.ExpiresAt))
	defer expiry.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case data := <-token.Events():
			c.SSEvent("message", string(data))
			return true
		case <-expiry.C:
			return false
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// ListUnapprovedRepositories returns repositories awaiting approval.
func (h *Handler) ListUnapprovedRepositories(c *gin.Context) {
	repos, err := h.store.ListUnapprovedRepositories(c.Request.Context())
	if err != nil {
		h.logger.Errorf("Failed to list repositories: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list repositories"})
		return
	}
	if repos == nil {
		repos = []*models.Repository{}
	}
	c.JSON(http.StatusOK, repos)
}

type approveRequest struct {
	URL string `json:"url" binding:"required"`
}

// ApproveRepository marks one repository approved by its URL key.
func (h *Handler) ApproveRepository(c *gin.Context) {
	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	if err := h.store.ApproveRepository(c.Request.Context(), req.URL); err != nil {
		if apperrors.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "repository not found"})
			return
		}
		h.logger.Errorf("Failed to approve repository: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to approve repository"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "approved"})
}

func (h *Handler) globalCount(c *gin.Context, nature string) int64 {
	m, err := h.store.GetMetric(c.Request.Context(), models.ScopeGlobal, "", nature)
	if err != nil {
		if !apperrors.IsNotFound(err) {
			h.logger.Errorf("Failed to read global %s counter: %v", nature, err)
		}
		return 0
	}
	return m.Count
}

func (h *Handler) leaderboard(c *gin.Context, scope string) (models.Leaderboard, error) {
	ctx := c.Request.Context()

	desc, err := h.store.TopMetrics(ctx, scope, models.NatureCommit, leaderboardSize, false)
	if err != nil {
		return models.Leaderboard{}, err
	}
	asc, err := h.store.TopMetrics(ctx, scope, models.NatureCommit, leaderboardSize, true)
	if err != nil {
		return models.Leaderboard{}, err
	}

	return models.Leaderboard{
		Desc: toEntries(scope, desc),
		Asc:  toEntries(scope, asc),
	}, nil
}

func toEntries(scope string, metrics []*models.Metric) []models.LeaderboardEntry {
	entries := make([]models.LeaderboardEntry, 0, len(metrics))
	for _, m := range metrics {
		entry := models.LeaderboardEntry{Count: m.Count}
		if scope == models.ScopeAuthor {
			entry.Name = m.AuthorName
			entry.Email = m.Key
		} else {
			entry.URL = m.Key
		}
		entries = append(entries, entry)
	}
	return entries
}
