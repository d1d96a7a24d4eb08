package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ubhacking/commitboard/internal/db"
	apperrors "github.com/ubhacking/commitboard/internal/errors"
	"github.com/ubhacking/commitboard/internal/models"
	"github.com/ubhacking/commitboard/internal/queue"
)

// Service consumes metric jobs: it classifies flagged words in the commit
// message and applies the six counter increments as one store batch.
//
// Delivery is at-least-once and increments carry no idempotency key, so a
// redelivered job counts twice. Accepted and tested as the current behavior.
type Service struct {
	store   db.Store
	queue   queue.Queue
	logger  *logrus.Logger
	matcher *regexp.Regexp
}

func NewService(store db.Store, q queue.Queue, logger *logrus.Logger, curseWords []string) *Service {
	return &Service{
		store:   store,
		queue:   q,
		logger:  logger,
		matcher: buildMatcher(curseWords),
	}
}

// buildMatcher compiles the flagged-word list into one case-insensitive,
// word-boundary-anchored pattern, so "ass" inside "classes" does not count.
func buildMatcher(words []string) *regexp.Regexp {
	if len(words) == 0 {
		return nil
	}
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		if w != "" {
			quoted = append(quoted, regexp.QuoteMeta(w))
		}
	}
	if len(quoted) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// CountCurses returns the number of flagged-word occurrences in message.
func (s *Service) CountCurses(message string) int {
	if s.matcher == nil {
		return 0
	}
	return len(s.matcher.FindAllStringIndex(message, -1))
}

// Process handles one metric job.
func (s *Service) Process(ctx context.Context, job queue.Job) error {
	var m models.MetricJob
	if err := json.Unmarshal(job.Payload, &m); err != nil {
		// Not retryable; drop with an error log.
		s.logger.Errorf("discarding malformed metric job %s: %v", job.ID, err)
		return nil
	}

	curses := s.CountCurses(m.Message)

	if curses > 0 {
		if _, err := s.store.GetCommitByCommitID(ctx, m.CommitID); err != nil {
			if !apperrors.IsNotFound(err) {
				return fmt.Errorf("failed to load commit %s: %w", m.CommitID, err)
			}
			s.logger.Warnf("commit %s not found for curse count, counters still apply", m.CommitID)
		}
	}

	deltas := []models.MetricDelta{
		{Scope: models.ScopeGlobal, Nature: models.NatureCommit, Delta: 1},
		{Scope: models.ScopeGlobal, Nature: models.NatureCurse, Delta: int64(curses)},
		{Scope: models.ScopeRepo, Key: m.RepoURL, Nature: models.NatureCommit, Delta: 1},
		{Scope: models.ScopeRepo, Key: m.RepoURL, Nature: models.NatureCurse, Delta: int64(curses)},
		{Scope: models.ScopeAuthor, Key: m.AuthorEmail, Nature: models.NatureCommit, Delta: 1,
			AuthorName: m.AuthorName, LinkRepoURL: m.RepoURL},
		{Scope: models.ScopeAuthor, Key: m.AuthorEmail, Nature: models.NatureCurse, Delta: int64(curses),
			AuthorName: m.AuthorName, LinkRepoURL: m.RepoURL},
	}

	applied, err := s.store.ApplyMetricsBatch(ctx, m.CommitID, curses, deltas)
	if err != nil {
		return fmt.Errorf("failed to apply metrics batch for commit %s: %w", m.CommitID, err)
	}

	globalCommits := applied[0].Count
	globalCurses := applied[1].Count

	if err := s.queue.Enqueue(ctx, models.JobBroadcast, models.BroadcastJob{
		Nature: models.MessageNatureMetrics,
		Metrics: &models.MetricsUpdateData{
			GlobalCommits: globalCommits,
			GlobalCurses:  globalCurses,
		},
	}); err != nil {
		return fmt.Errorf("failed to enqueue broadcast job: %w", err)
	}

	if err := s.queue.Enqueue(ctx, models.JobAward, models.AwardJob{
		GlobalCommits: globalCommits,
		AuthorName:    m.AuthorName,
		AuthorEmail:   m.AuthorEmail,
	}); err != nil {
		return fmt.Errorf("failed to enqueue award job: %w", err)
	}

	return nil
}
