package ingest

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ubhacking/commitboard/internal/db"
	apperrors "github.com/ubhacking/commitboard/internal/errors"
	"github.com/ubhacking/commitboard/internal/models"
	"github.com/ubhacking/commitboard/internal/queue"
)

// IdentityHasher turns an email address into the opaque hash external
// collaborators use for avatar lookup. Not a security control.
type IdentityHasher func(email string) string

// MD5IdentityHash hashes the trimmed, lowercased email with md5.
func MD5IdentityHash(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}

// Service validates and normalizes inbound push webhooks, persists the
// repository and its commits, and enqueues the downstream jobs.
type Service struct {
	store      db.Store
	queue      queue.Queue
	logger     *logrus.Logger
	summaryLen int
	hash       IdentityHasher
	now        func() time.Time
}

func NewService(store db.Store, q queue.Queue, logger *logrus.Logger, summaryLen int) *Service {
	return &Service{
		store:      store,
		queue:      q,
		logger:     logger,
		summaryLen: summaryLen,
		hash:       MD5IdentityHash,
		now:        time.Now,
	}
}

// Ingest consumes one webhook body. Commits are validated and persisted one
// at a time: a malformed commit after N valid ones aborts the rest but keeps
// the first N, matching the queue's at-least-once model rather than an
// atomic batch.
func (s *Service) Ingest(ctx context.Context, body []byte) error {
	var payload pushPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return apperrors.New(apperrors.ErrValidation, "malformed webhook body", err)
	}

	if err := payload.validateRepository(); err != nil {
		return err
	}

	repo, err := s.store.GetRepositoryByURL(ctx, payload.Repository.URL)
	if err != nil {
		if !apperrors.IsNotFound(err) {
			return fmt.Errorf("failed to look up repository: %w", err)
		}
		repo = s.buildRepository(payload.Repository)
		if err := s.store.SaveRepository(ctx, repo); err != nil {
			return fmt.Errorf("failed to create repository: %w", err)
		}
		s.logger.Infof("New repository %s awaiting approval", repo.URL)
	}

	for i := range payload.Commits {
		cp := &payload.Commits[i]
		if err := cp.validate(i); err != nil {
			return err
		}

		commit, err := s.buildCommit(repo, cp, payload.Pusher)
		if err != nil {
			return err
		}

		if err := s.store.SaveCommit(ctx, commit); err != nil {
			return fmt.Errorf("failed to save commit %s: %w", commit.CommitID, err)
		}

		repo.LastUpdate = s.now()
		if err := s.store.SaveRepository(ctx, repo); err != nil {
			return fmt.Errorf("failed to refresh repository: %w", err)
		}

		if err := s.queue.Enqueue(ctx, models.JobMetric, models.MetricJob{
			CommitID:    commit.CommitID,
			AuthorEmail: commit.AuthorEmail,
			AuthorName:  commit.AuthorName,
			RepoURL:     repo.URL,
			Message:     commit.Message,
		}); err != nil {
			return fmt.Errorf("failed to enqueue metric job: %w", err)
		}

		if err := s.queue.Enqueue(ctx, models.JobBroadcast, models.BroadcastJob{
			Nature: models.MessageNatureCommit,
			Commit: &models.CommitArrival{
				ID:         commit.CommitID,
				URL:        commit.URL,
				AuthorName: commit.AuthorName,
				AuthorHash: commit.AuthorHash,
				Timestamp:  commit.Timestamp,
				Message:    commit.Summary,
				RepoName:   repo.Name,
				RepoURL:    repo.URL,
				Pusher:     commit.Pusher,
			},
		}); err != nil {
			return fmt.Errorf("failed to enqueue broadcast job: %w", err)
		}
	}

	return nil
}

func (s *Service) buildRepository(rp *repoPayload) *models.Repository {
	name := rp.Name
	if name == "" {
		name = repoNameFromURL(rp.URL)
	}

	now := s.now()
	return &models.Repository{
		URL:         rp.URL,
		Name:        name,
		OwnerName:   rp.Owner.Name,
		OwnerEmail:  rp.Owner.Email,
		OwnerHash:   s.hash(rp.Owner.Email),
		Forks:       rp.Forks,
		Watchers:    rp.Watchers,
		Description: rp.Description,
		Private:     rp.isPrivate(),
		FirstSeen:   now,
		LastUpdate:  now,
	}
}

func (s *Service) buildCommit(repo *models.Repository, cp *commitPayload, pusher *pusherPayload) (*models.Commit, error) {
	timestamp := s.now()
	if cp.Timestamp != "" {
		parsed, err := parseTimestamp(cp.Timestamp)
		if err != nil {
			return nil, apperrors.New(apperrors.ErrValidation, "invalid commit timestamp", err)
		}
		timestamp = parsed
	}

	commit := &models.Commit{
		CommitID:     cp.ID,
		RepositoryID: repo.ID,
		URL:          cp.URL,
		AuthorName:   cp.Author.Name,
		AuthorEmail:  cp.Author.Email,
		AuthorHash:   s.hash(cp.Author.Email),
		Timestamp:    timestamp,
		Message:      cp.Message,
		Summary:      truncate(cp.Message, s.summaryLen),
		Added:        cp.Added,
	}
	if commit.Added == nil {
		commit.Added = []string{}
	}
	if pusher != nil {
		commit.Pusher = pusher.Name
	}

	return commit, nil
}

func truncate(message string, length int) string {
	runes := []rune(message)
	if len(runes) <= length {
		return message
	}
	return string(runes[:length])
}

func repoNameFromURL(url string) string {
	trimmed := strings.TrimRight(url, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}
