package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ubhacking/commitboard/internal/db"
	"github.com/ubhacking/commitboard/internal/models"
	"github.com/ubhacking/commitboard/internal/queue"
	"github.com/ubhacking/commitboard/internal/tokens"
)

const leaderboardSize = 10

// Service consumes broadcast jobs and fans the resulting message out to every
// live viewer token. Delivery is best effort: a viewer that expired between
// enqueue and delivery simply misses the update.
type Service struct {
	store    db.Store
	registry *tokens.Registry
	logger   *logrus.Logger
}

func NewService(store db.Store, registry *tokens.Registry, logger *logrus.Logger) *Service {
	return &Service{
		store:    store,
		registry: registry,
		logger:   logger,
	}
}

// Process handles one broadcast job.
func (s *Service) Process(ctx context.Context, job queue.Job) error {
	var b models.BroadcastJob
	if err := json.Unmarshal(job.Payload, &b); err != nil {
		s.logger.Errorf("discarding malformed broadcast job %s: %v", job.ID, err)
		return nil
	}

	var msg models.Message
	switch b.Nature {
	case models.MessageNatureCommit:
		if b.Commit == nil {
			s.logger.Errorf("discarding broadcast job %s: commit payload missing", job.ID)
			return nil
		}
		msg = models.CommitMessage{
			Nature:     models.MessageNatureCommit,
			ID:         b.Commit.ID,
			URL:        b.Commit.URL,
			AuthorName: b.Commit.AuthorName,
			AuthorHash: b.Commit.AuthorHash,
			Timestamp:  b.Commit.Timestamp,
			Message:    b.Commit.Message,
			RepoName:   b.Commit.RepoName,
			RepoURL:    b.Commit.RepoURL,
			Pusher:     b.Commit.Pusher,
		}

	case models.MessageNatureMetrics:
		if b.Metrics == nil {
			s.logger.Errorf("discarding broadcast job %s: metrics payload missing", job.ID)
			return nil
		}
		authors, err := s.leaderboard(ctx, models.ScopeAuthor)
		if err != nil {
			return fmt.Errorf("failed to load author leaderboard: %w", err)
		}
		repos, err := s.leaderboard(ctx, models.ScopeRepo)
		if err != nil {
			return fmt.Errorf("failed to load repo leaderboard: %w", err)
		}
		msg = models.MetricsMessage{
			Nature:        models.MessageNatureMetrics,
			GlobalCommits: b.Metrics.GlobalCommits,
			GlobalCurses:  b.Metrics.GlobalCurses,
			Author:        authors,
			Repo:          repos,
		}

	default:
		s.logger.Errorf("discarding broadcast job %s: unknown nature %q", job.ID, b.Nature)
		return nil
	}

	delivered, err := s.registry.Broadcast(msg)
	if err != nil {
		return fmt.Errorf("failed to broadcast %s message: %w", b.Nature, err)
	}
	s.logger.Infof("Broadcast %s update to %d viewers", b.Nature, delivered)

	return nil
}

// leaderboard reads the top and bottom commit counters for one scope at
// delivery time, so every viewer sees the freshest standings.
func (s *Service) leaderboard(ctx context.Context, scope string) (models.Leaderboard, error) {
	desc, err := s.store.TopMetrics(ctx, scope, models.NatureCommit, leaderboardSize, false)
	if err != nil {
		return models.Leaderboard{}, err
	}
	asc, err := s.store.TopMetrics(ctx, scope, models.NatureCommit, leaderboardSize, true)
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
