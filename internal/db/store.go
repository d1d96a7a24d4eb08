package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/ubhacking/commitboard/internal/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store defines the interface for database operations
type Store interface {
	// Repository operations
	GetRepositoryByURL(ctx context.Context, url string) (*models.Repository, error)
	SaveRepository(ctx context.Context, repo *models.Repository) error
	ListUnapprovedRepositories(ctx context.Context) ([]*models.Repository, error)
	ApproveRepository(ctx context.Context, url string) error

	// Commit operations
	SaveCommit(ctx context.Context, commit *models.Commit) error
	GetCommitByCommitID(ctx context.Context, commitID string) (*models.Commit, error)
	RecentApprovedCommits(ctx context.Context, limit int) ([]*models.Commit, error)

	// Metric operations
	GetMetric(ctx context.Context, scope, key, nature string) (*models.Metric, error)
	TopMetrics(ctx context.Context, scope, nature string, limit int, ascending bool) ([]*models.Metric, error)

	// ApplyMetricsBatch writes a commit's curse count (when commitID is
	// non-empty and curseCount > 0) and applies every delta as an atomic
	// read-modify-write, all inside one transaction. It returns the updated
	// metrics in delta order. A missing commit is skipped, not an error.
	ApplyMetricsBatch(ctx context.Context, commitID string, curseCount int, deltas []models.MetricDelta) ([]*models.Metric, error)
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(connectionString string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Migrate() error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	if err := goose.Up(s.db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
