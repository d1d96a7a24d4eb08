package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	apperrors "github.com/ubhacking/commitboard/internal/errors"
	"github.com/ubhacking/commitboard/internal/models"
)

func (s *PostgresStore) GetRepositoryByURL(ctx context.Context, url string) (*models.Repository, error) {
	query := `
		SELECT id, url, name, owner_name, owner_email, owner_hash, forks,
			watchers, description, private, approved, first_seen, last_update
		FROM repositories
		WHERE url = $1`

	var r models.Repository
	err := s.db.QueryRowContext(ctx, query, url).Scan(
		&r.ID,
		&r.URL,
		&r.Name,
		&r.OwnerName,
		&r.OwnerEmail,
		&r.OwnerHash,
		&r.Forks,
		&r.Watchers,
		&r.Description,
		&r.Private,
		&r.Approved,
		&r.FirstSeen,
		&r.LastUpdate,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("repository", url)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query repository: %w", err)
	}

	return &r, nil
}

// SaveRepository upserts a repository by URL. first_seen is written once at
// creation and kept on conflict.
func (s *PostgresStore) SaveRepository(ctx context.Context, repo *models.Repository) error {
	query := `
		INSERT INTO repositories (url, name, owner_name, owner_email, owner_hash,
			forks, watchers, description, private, approved, first_seen, last_update)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (url) DO UPDATE SET
			name = EXCLUDED.name,
			owner_name = EXCLUDED.owner_name,
			owner_email = EXCLUDED.owner_email,
			owner_hash = EXCLUDED.owner_hash,
			forks = EXCLUDED.forks,
			watchers = EXCLUDED.watchers,
			description = EXCLUDED.description,
			private = EXCLUDED.private,
			approved = EXCLUDED.approved,
			last_update = EXCLUDED.last_update
		RETURNING id, first_seen`

	err := s.db.QueryRowContext(ctx, query,
		repo.URL,
		repo.Name,
		repo.OwnerName,
		repo.OwnerEmail,
		repo.OwnerHash,
		repo.Forks,
		repo.Watchers,
		repo.Description,
		repo.Private,
		repo.Approved,
		repo.FirstSeen,
		repo.LastUpdate,
	).Scan(&repo.ID, &repo.FirstSeen)
	if err != nil {
		return apperrors.NewTransientStoreError("failed to save repository", err)
	}

	return nil
}

func (s *PostgresStore) ListUnapprovedRepositories(ctx context.Context) ([]*models.Repository, error) {
	query := `
		SELECT id, url, name, owner_name, owner_email, owner_hash, forks,
			watchers, description, private, approved, first_seen, last_update
		FROM repositories
		WHERE approved = FALSE
		ORDER BY first_seen DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query repositories: %w", err)
	}
	defer rows.Close()

	var repos []*models.Repository
	for rows.Next() {
		var r models.Repository
		if err := rows.Scan(
			&r.ID,
			&r.URL,
			&r.Name,
			&r.OwnerName,
			&r.OwnerEmail,
			&r.OwnerHash,
			&r.Forks,
			&r.Watchers,
			&r.Description,
			&r.Private,
			&r.Approved,
			&r.FirstSeen,
			&r.LastUpdate,
		); err != nil {
			return nil, fmt.Errorf("failed to scan repository: %w", err)
		}
		repos = append(repos, &r)
	}

	return repos, rows.Err()
}

func (s *PostgresStore) ApproveRepository(ctx context.Context, url string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE repositories SET approved = TRUE WHERE url = $1", url)
	if err != nil {
		return apperrors.NewTransientStoreError("failed to approve repository", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperrors.NewNotFoundError("repository", url)
	}

	return nil
}

// SaveCommit upserts by (repository_id, commit_id) so a redelivered webhook
// does not produce duplicate rows.
func (s *PostgresStore) SaveCommit(ctx context.Context, commit *models.Commit) error {
	query := `
		INSERT INTO commits (commit_id, repository_id, url, author_name, author_email,
			author_hash, pusher, committed_at, message, summary, added, num_curses)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (repository_id, commit_id) DO UPDATE SET
			url = EXCLUDED.url,
			author_name = EXCLUDED.author_name,
			author_email = EXCLUDED.author_email,
			author_hash = EXCLUDED.author_hash,
			pusher = EXCLUDED.pusher,
			committed_at = EXCLUDED.committed_at,
			message = EXCLUDED.message,
			summary = EXCLUDED.summary,
			added = EXCLUDED.added
		RETURNING id`

	added := commit.Added
	if added == nil {
		added = []string{}
	}

	err := s.db.QueryRowContext(ctx, query,
		commit.CommitID,
		commit.RepositoryID,
		commit.URL,
		commit.AuthorName,
		commit.AuthorEmail,
		commit.AuthorHash,
		commit.Pusher,
		commit.Timestamp,
		commit.Message,
		commit.Summary,
		pq.Array(added),
		commit.NumCurses,
	).Scan(&commit.ID)
	if err != nil {
		return apperrors.NewTransientStoreError("failed to save commit", err)
	}

	return nil
}

func (s *PostgresStore) GetCommitByCommitID(ctx context.Context, commitID string) (*models.Commit, error) {
	query := `
		SELECT c.id, c.commit_id, c.repository_id, c.url, c.author_name,
			c.author_email, c.author_hash, c.pusher, c.committed_at, c.message,
			c.summary, c.added, c.num_curses, r.url, r.name
		FROM commits c
		JOIN repositories r ON r.id = c.repository_id
		WHERE c.commit_id = $1
		LIMIT 1`

	var c models.Commit
	err := s.db.QueryRowContext(ctx, query, commitID).Scan(
		&c.ID,
		&c.CommitID,
		&c.RepositoryID,
		&c.URL,
		&c.AuthorName,
		&c.AuthorEmail,
		&c.AuthorHash,
		&c.Pusher,
		&c.Timestamp,
		&c.Message,
		&c.Summary,
		pq.Array(&c.Added),
		&c.NumCurses,
		&c.RepoURL,
		&c.RepoName,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("commit", commitID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query commit: %w", err)
	}

	return &c, nil
}

func (s *PostgresStore) RecentApprovedCommits(ctx context.Context, limit int) ([]*models.Commit, error) {
	query := `
		SELECT c.id, c.commit_id, c.repository_id, c.url, c.author_name,
			c.author_email, c.author_hash, c.pusher, c.committed_at, c.message,
			c.summary, c.added, c.num_curses, r.url, r.name
		FROM commits c
		JOIN repositories r ON r.id = c.repository_id
		WHERE r.approved = TRUE
		ORDER BY c.committed_at DESC
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query commits: %w", err)
	}
	defer rows.Close()

	var commits []*models.Commit
	for rows.Next() {
		var c models.Commit
		if err := rows.Scan(
			&c.ID,
			&c.CommitID,
			&c.RepositoryID,
			&c.URL,
			&c.AuthorName,
			&c.AuthorEmail,
			&c.AuthorHash,
			&c.Pusher,
			&c.Timestamp,
			&c.Message,
			&c.Summary,
			pq.Array(&c.Added),
			&c.NumCurses,
			&c.RepoURL,
			&c.RepoName,
		); err != nil {
			return nil, fmt.Errorf("failed to scan commit: %w", err)
		}
		commits = append(commits, &c)
	}

	return commits, rows.Err()
}

func (s *PostgresStore) GetMetric(ctx context.Context, scope, key, nature string) (*models.Metric, error) {
	query := `
		SELECT id, scope, key, nature, count, author_name, repo_metric_id
		FROM metrics
		WHERE scope = $1 AND key = $2 AND nature = $3`

	m, err := scanMetric(s.db.QueryRowContext(ctx, query, scope, key, nature))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("metric", scope+"/"+key+"/"+nature)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query metric: %w", err)
	}

	return m, nil
}

func (s *PostgresStore) TopMetrics(ctx context.Context, scope, nature string, limit int, ascending bool) ([]*models.Metric, error) {
	order := "DESC"
	if ascending {
		order = "ASC"
	}

	query := fmt.Sprintf(`
		SELECT id, scope, key, nature, count, author_name, repo_metric_id
		FROM metrics
		WHERE scope = $1 AND nature = $2
		ORDER BY count %s
		LIMIT $3`, order)

	rows, err := s.db.QueryContext(ctx, query, scope, nature, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	var metrics []*models.Metric
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}
		metrics = append(metrics, m)
	}

	return metrics, rows.Err()
}

// ApplyMetricsBatch runs the commit curse-count write and every counter
// increment inside one transaction. Each increment is a single
// INSERT ... ON CONFLICT ... DO UPDATE statement, so concurrent workers
// cannot lose updates.
func (s *PostgresStore) ApplyMetricsBatch(ctx context.Context, commitID string, curseCount int, deltas []models.MetricDelta) ([]*models.Metric, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperrors.NewTransientStoreError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if commitID != "" && curseCount > 0 {
		// Rows affected may be zero when the commit is missing; the counters
		// still apply in that case.
		if _, err := tx.ExecContext(ctx,
			"UPDATE commits SET num_curses = $1 WHERE commit_id = $2",
			curseCount, commitID); err != nil {
			return nil, apperrors.NewTransientStoreError("failed to update commit curse count", err)
		}
	}

	increment := `
		INSERT INTO metrics (scope, key, nature, count, author_name, repo_metric_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (scope, key, nature) DO UPDATE SET
			count = metrics.count + EXCLUDED.count
		RETURNING id, count`

	applied := make([]*models.Metric, 0, len(deltas))
	ids := make(map[string]int64, len(deltas))

	for _, d := range deltas {
		var link sql.NullInt64
		if d.LinkRepoURL != "" {
			if id, ok := ids[models.ScopeRepo+"|"+d.LinkRepoURL+"|"+d.Nature]; ok {
				link = sql.NullInt64{Int64: id, Valid: true}
			}
		}

		m := &models.Metric{
			Scope:      d.Scope,
			Key:        d.Key,
			Nature:     d.Nature,
			AuthorName: d.AuthorName,
		}
		if link.Valid {
			m.RepoMetricID = link.Int64
		}
		if err := tx.QueryRowContext(ctx, increment,
			d.Scope, d.Key, d.Nature, d.Delta, d.AuthorName, link,
		).Scan(&m.ID, &m.Count); err != nil {
			return nil, apperrors.NewTransientStoreError("failed to increment metric", err)
		}

		ids[d.Scope+"|"+d.Key+"|"+d.Nature] = m.ID
		applied = append(applied, m)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.NewTransientStoreError("failed to commit metrics batch", err)
	}

	return applied, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMetric(row rowScanner) (*models.Metric, error) {
	var m models.Metric
	var link sql.NullInt64
	if err := row.Scan(&m.ID, &m.Scope, &m.Key, &m.Nature, &m.Count, &m.AuthorName, &link); err != nil {
		return nil, err
	}
	if link.Valid {
		m.RepoMetricID = link.Int64
	}
	return &m, nil
}
