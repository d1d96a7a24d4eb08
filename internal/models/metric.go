package models

// Metric scopes. A global metric has an empty key, a repo metric is keyed by
// repository URL and an author metric by author email.
const (
	ScopeGlobal = "global"
	ScopeRepo   = "repo"
	ScopeAuthor = "author"
)

// Metric natures.
const (
	NatureCommit = "commit"
	NatureCurse  = "curse"
)

// Metric is one running counter. At most one live row per (scope, key,
// nature); the count never decreases.
type Metric struct {
	ID         int64  `json:"-"`
	Scope      string `json:"scope"`
	Key        string `json:"key"`
	Nature     string `json:"nature"`
	Count      int64  `json:"count"`
	AuthorName string `json:"author_name,omitempty"`

	// Author metrics keep a non-owning reference to the repo metric of the
	// same nature. Used only for lookup.
	RepoMetricID int64 `json:"-"`
}

// MetricDelta is one pending counter increment. LinkRepoURL, when set on an
// author-scoped delta, names the repo metric of the same nature the new row
// should reference.
type MetricDelta struct {
	Scope       string
	Key         string
	Nature      string
	Delta       int64
	AuthorName  string
	LinkRepoURL string
}

// LeaderboardEntry is one row of a top/bottom-N counter listing.
type LeaderboardEntry struct {
	Count int64  `json:"count"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	URL   string `json:"url,omitempty"`
}
