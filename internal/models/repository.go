package models

import "time"

// Repository is one source-hosting repository seen via webhook. There is at
// most one row per URL; repositories are created on first sight and never
// deleted.
type Repository struct {
	ID          int64     `json:"-"`
	URL         string    `json:"url"`
	Name        string    `json:"name"`
	OwnerName   string    `json:"owner_name"`
	OwnerEmail  string    `json:"owner_email"`
	OwnerHash   string    `json:"owner_hash"`
	Forks       int       `json:"forks"`
	Watchers    int       `json:"watchers"`
	Description string    `json:"description,omitempty"`
	Private     bool      `json:"private"`
	Approved    bool      `json:"approved"`
	FirstSeen   time.Time `json:"first_seen"`
	LastUpdate  time.Time `json:"last_update"`
}
