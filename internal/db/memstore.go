package db

import (
	"context"
	"sort"
	"sync"

	apperrors "github.com/ubhacking/commitboard/internal/errors"
	"github.com/ubhacking/commitboard/internal/models"
)

// MemStore is an in-memory Store. It backs unit tests and local runs without
// a configured database. All operations take one lock, which gives the same
// atomicity the Postgres implementation gets from transactions.
type MemStore struct {
	mu      sync.Mutex
	nextID  int64
	repos   map[string]*models.Repository
	commits []*models.Commit
	metrics map[string]*models.Metric
}

func NewMemStore() *MemStore {
	return &MemStore{
		repos:   make(map[string]*models.Repository),
		metrics: make(map[string]*models.Metric),
	}
}

func (s *MemStore) id() int64 {
	s.nextID++
	return s.nextID
}

func metricKey(scope, key, nature string) string {
	return scope + "|" + key + "|" + nature
}

func (s *MemStore) GetRepositoryByURL(ctx context.Context, url string) (*models.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, ok := s.repos[url]
	if !ok {
		return nil, apperrors.NewNotFoundError("repository", url)
	}
	cp := *repo
	return &cp, nil
}

func (s *MemStore) SaveRepository(ctx context.Context, repo *models.Repository) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.repos[repo.URL]; ok {
		repo.ID = existing.ID
		repo.FirstSeen = existing.FirstSeen
	} else {
		repo.ID = s.id()
	}
	cp := *repo
	s.repos[repo.URL] = &cp
	return nil
}

func (s *MemStore) ListUnapprovedRepositories(ctx context.Context) ([]*models.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var repos []*models.Repository
	for _, repo := range s.repos {
		if !repo.Approved {
			cp := *repo
			repos = append(repos, &cp)
		}
	}
	sort.Slice(repos, func(i, j int) bool {
		return repos[i].FirstSeen.After(repos[j].FirstSeen)
	})
	return repos, nil
}

func (s *MemStore) ApproveRepository(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, ok := s.repos[url]
	if !ok {
		return apperrors.NewNotFoundError("repository", url)
	}
	repo.Approved = true
	return nil
}

func (s *MemStore) SaveCommit(ctx context.Context, commit *models.Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.commits {
		if existing.RepositoryID == commit.RepositoryID && existing.CommitID == commit.CommitID {
			commit.ID = existing.ID
			cp := *commit
			cp.NumCurses = existing.NumCurses
			*existing = cp
			return nil
		}
	}

	commit.ID = s.id()
	cp := *commit
	s.commits = append(s.commits, &cp)
	return nil
}

func (s *MemStore) GetCommitByCommitID(ctx context.Context, commitID string) (*models.Commit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, commit := range s.commits {
		if commit.CommitID == commitID {
			cp := *commit
			s.attachRepo(&cp)
			return &cp, nil
		}
	}
	return nil, apperrors.NewNotFoundError("commit", commitID)
}

func (s *MemStore) RecentApprovedCommits(ctx context.Context, limit int) ([]*models.Commit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var commits []*models.Commit
	for _, commit := range s.commits {
		repo := s.repoByID(commit.RepositoryID)
		if repo == nil || !repo.Approved {
			continue
		}
		cp := *commit
		cp.RepoURL = repo.URL
		cp.RepoName = repo.Name
		commits = append(commits, &cp)
	}
	sort.Slice(commits, func(i, j int) bool {
		return commits[i].Timestamp.After(commits[j].Timestamp)
	})
	if len(commits) > limit {
		commits = commits[:limit]
	}
	return commits, nil
}

func (s *MemStore) GetMetric(ctx context.Context, scope, key, nature string) (*models.Metric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.metrics[metricKey(scope, key, nature)]
	if !ok {
		return nil, apperrors.NewNotFoundError("metric", metricKey(scope, key, nature))
	}
	cp := *m
	return &cp, nil
}

func (s *MemStore) TopMetrics(ctx context.Context, scope, nature string, limit int, ascending bool) ([]*models.Metric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var metrics []*models.Metric
	for _, m := range s.metrics {
		if m.Scope == scope && m.Nature == nature {
			cp := *m
			metrics = append(metrics, &cp)
		}
	}
	sort.Slice(metrics, func(i, j int) bool {
		if ascending {
			return metrics[i].Count < metrics[j].Count
		}
		return metrics[i].Count > metrics[j].Count
	})
	if len(metrics) > limit {
		metrics = metrics[:limit]
	}
	return metrics, nil
}

func (s *MemStore) ApplyMetricsBatch(ctx context.Context, commitID string, curseCount int, deltas []models.MetricDelta) ([]*models.Metric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if commitID != "" && curseCount > 0 {
		for _, commit := range s.commits {
			if commit.CommitID == commitID {
				commit.NumCurses = curseCount
				break
			}
		}
	}

	applied := make([]*models.Metric, 0, len(deltas))
	for _, d := range deltas {
		key := metricKey(d.Scope, d.Key, d.Nature)
		m, ok := s.metrics[key]
		if !ok {
			m = &models.Metric{
				ID:         s.id(),
				Scope:      d.Scope,
				Key:        d.Key,
				Nature:     d.Nature,
				AuthorName: d.AuthorName,
			}
			if d.LinkRepoURL != "" {
				if linked, ok := s.metrics[metricKey(models.ScopeRepo, d.LinkRepoURL, d.Nature)]; ok {
					m.RepoMetricID = linked.ID
				}
			}
			s.metrics[key] = m
		}
		m.Count += d.Delta
		cp := *m
		applied = append(applied, &cp)
	}

	return applied, nil
}

func (s *MemStore) repoByID(id int64) *models.Repository {
	for _, repo := range s.repos {
		if repo.ID == id {
			return repo
		}
	}
	return nil
}

func (s *MemStore) attachRepo(commit *models.Commit) {
	if repo := s.repoByID(commit.RepositoryID); repo != nil {
		commit.RepoURL = repo.URL
		commit.RepoName = repo.Name
	}
}
