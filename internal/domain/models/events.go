package models

import (
	"strings"
	"time"
)

// ObjectEvent is an object-finalized notification for the Bronze store.
type ObjectEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// IsSnapshot reports whether the object looks like a Bronze JSON snapshot.
func (e ObjectEvent) IsSnapshot() bool {
	return strings.HasSuffix(strings.ToLower(e.Name), ".json")
}

// GoldPublishedEvent announces a new Gold table.
type GoldPublishedEvent struct {
	RunID       string    `json:"run_id"`
	Location    string    `json:"location"`
	Rows        int       `json:"rows"`
	Assets      []string  `json:"assets"`
	PublishedAt time.Time `json:"published_at"`
}
