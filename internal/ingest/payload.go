package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/ubhacking/commitboard/internal/errors"
)

// pushPayload mirrors the provider webhook body. Field absence is what
// validation cares about, so everything optional stays a pointer or zero
// value.
type pushPayload struct {
	Repository *repoPayload    `json:"repository"`
	Commits    []commitPayload `json:"commits"`
	Pusher     *pusherPayload  `json:"pusher"`
}

type repoPayload struct {
	URL         string          `json:"url"`
	Name        string          `json:"name"`
	Owner       *personPayload  `json:"owner"`
	Forks       int             `json:"forks"`
	Watchers    int             `json:"watchers"`
	Description string          `json:"description"`
	Private     json.RawMessage `json:"private"`
}

type personPayload struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type commitPayload struct {
	ID        string         `json:"id"`
	URL       string         `json:"url"`
	Author    *personPayload `json:"author"`
	Timestamp string         `json:"timestamp"`
	Message   string         `json:"message"`
	Added     []string       `json:"added"`
}

type pusherPayload struct {
	Name string `json:"name"`
}

func (p *pushPayload) validateRepository() error {
	if p.Repository == nil {
		return apperrors.NewMissingFieldError("repository")
	}
	if p.Repository.URL == "" {
		return apperrors.NewMissingFieldError("repository.url")
	}
	if p.Repository.Owner == nil {
		return apperrors.NewMissingFieldError("repository.owner")
	}
	if p.Repository.Owner.Email == "" {
		return apperrors.NewMissingFieldError("repository.owner.email")
	}
	if p.Repository.Owner.Name == "" {
		return apperrors.NewMissingFieldError("repository.owner.name")
	}
	return nil
}

func (c *commitPayload) validate(index int) error {
	if c.ID == "" {
		return apperrors.NewMissingFieldError(fmt.Sprintf("commits[%d].id", index))
	}
	if c.URL == "" {
		return apperrors.NewMissingFieldError(fmt.Sprintf("commits[%d].url", index))
	}
	if c.Author == nil {
		return apperrors.NewMissingFieldError(fmt.Sprintf("commits[%d].author", index))
	}
	if c.Author.Email == "" {
		return apperrors.NewMissingFieldError(fmt.Sprintf("commits[%d].author.email", index))
	}
	if c.Author.Name == "" {
		return apperrors.NewMissingFieldError(fmt.Sprintf("commits[%d].author.name", index))
	}
	return nil
}

// isPrivate reports whether the payload's private flag equals 1. The legacy
// hook format sends 0/1, not booleans.
func (r *repoPayload) isPrivate() bool {
	return strings.TrimSpace(string(r.Private)) == "1"
}

const naiveLayout = "2006-01-02T15:04:05"

// parseTimestamp normalizes an ISO-8601 local timestamp with a trailing
// ±HH:MM offset to UTC. A "+" sign takes precedence; otherwise the last "-"
// after the "T" delimiter marks a negative offset. A "+HH:MM" offset is
// subtracted from the naive local time, a "-HH:MM" offset added, yielding
// UTC.
func parseTimestamp(value string) (time.Time, error) {
	var naive, offset string
	var negative bool

	if i := strings.LastIndex(value, "+"); i >= 0 {
		naive, offset = value[:i], value[i+1:]
	} else if t := strings.Index(value, "T"); t >= 0 {
		i := strings.LastIndex(value, "-")
		if i <= t {
			return time.Time{}, fmt.Errorf("no UTC offset in timestamp %q", value)
		}
		naive, offset = value[:i], value[i+1:]
		negative = true
	} else {
		return time.Time{}, fmt.Errorf("malformed timestamp %q", value)
	}

	ts, err := time.Parse(naiveLayout, naive)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", value, err)
	}

	parts := strings.SplitN(offset, ":", 2)
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("malformed UTC offset in timestamp %q", value)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed UTC offset in timestamp %q: %w", value, err)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed UTC offset in timestamp %q: %w", value, err)
	}

	shift := time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute
	if negative {
		return ts.Add(shift), nil
	}
	return ts.Add(-shift), nil
}
