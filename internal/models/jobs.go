package models

import "time"

// Job names. They mirror the worker endpoints the queue dispatches to.
const (
	JobMetric    = "metric"
	JobBroadcast = "pusher"
	JobAward     = "awards"
)

// MetricJob asks the aggregator to account for one ingested commit.
type MetricJob struct {
	CommitID    string `json:"id"`
	AuthorEmail string `json:"author_email"`
	AuthorName  string `json:"author_name"`
	RepoURL     string `json:"repo"`
	Message     string `json:"message"`
}

// BroadcastJob carries either a commit arrival or a metrics update to the
// fanout worker. Exactly one of Commit and Metrics is set, selected by
// Nature.
type BroadcastJob struct {
	Nature  string             `json:"nature"`
	Commit  *CommitArrival     `json:"commit,omitempty"`
	Metrics *MetricsUpdateData `json:"metrics,omitempty"`
}

// CommitArrival is the public subset of a commit pushed to viewers.
type CommitArrival struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	AuthorName string    `json:"author_name"`
	AuthorHash string    `json:"author_hash"`
	Timestamp  time.Time `json:"timestamp"`
	Message    string    `json:"message"`
	RepoName   string    `json:"repo_name"`
	RepoURL    string    `json:"repo_url"`
	Pusher     string    `json:"pusher,omitempty"`
}

// MetricsUpdateData carries the new global totals after an aggregation pass.
type MetricsUpdateData struct {
	GlobalCommits int64 `json:"global_commits"`
	GlobalCurses  int64 `json:"global_curses"`
}

// AwardJob carries a fresh global commit total to the milestone notifier.
type AwardJob struct {
	GlobalCommits int64  `json:"global_commits"`
	AuthorName    string `json:"author_name"`
	AuthorEmail   string `json:"author_email"`
}
