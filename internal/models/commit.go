package models

import "time"

// Commit is one pushed commit. Immutable after creation except NumCurses,
// which the metrics aggregator writes exactly once.
type Commit struct {
	ID           int64     `json:"-"`
	CommitID     string    `json:"id"`
	RepositoryID int64     `json:"-"`
	URL          string    `json:"url"`
	AuthorName   string    `json:"author_name"`
	AuthorEmail  string    `json:"author_email"`
	AuthorHash   string    `json:"author_hash"`
	Pusher       string    `json:"pusher,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Message      string    `json:"message"`
	Summary      string    `json:"summary"`
	Added        []string  `json:"added"`
	NumCurses    int       `json:"num_curses"`

	// Populated on read paths that join the owning repository.
	RepoURL  string `json:"repo_url,omitempty"`
	RepoName string `json:"repo_name,omitempty"`
}
