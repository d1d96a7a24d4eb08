package models

import "time"

// Message natures on the viewer push channel.
const (
	MessageNatureCommit  = "commit"
	MessageNatureMetrics = "metrics"
)

// Message is one payload delivered to dashboard viewers. The two variants
// serialize to JSON objects tagged by a "nature" field; the token registry
// marshals them at the delivery boundary.
type Message interface {
	MessageNature() string
}

// CommitMessage announces one newly ingested commit.
type CommitMessage struct {
	Nature     string    `json:"nature"`
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

func (m CommitMessage) MessageNature() string { return MessageNatureCommit }

// Leaderboard is a pair of top/bottom-N counter listings.
type Leaderboard struct {
	Desc []LeaderboardEntry `json:"desc"`
	Asc  []LeaderboardEntry `json:"asc"`
}

// MetricsMessage carries refreshed totals and leaderboards.
type MetricsMessage struct {
	Nature        string      `json:"nature"`
	GlobalCommits int64       `json:"global_commits"`
	GlobalCurses  int64       `json:"global_curses"`
	Author        Leaderboard `json:"author"`
	Repo          Leaderboard `json:"repo"`
}

func (m MetricsMessage) MessageNature() string { return MessageNatureMetrics }
