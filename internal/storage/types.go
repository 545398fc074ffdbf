package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines append log
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// RunRecord is one completed (or aborted) bulk run.
// Keep it compact and schema-stable.
type RunRecord struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"` // "groups" | "messages"
	StartedAt time.Time       `json:"started_at"`
	DoneAt    time.Time       `json:"done_at"`
	Sent      int             `json:"sent"`
	Failed    int             `json:"failed"`
	Outcomes  []OutcomeRecord `json:"outcomes,omitempty"`
}

// OutcomeRecord is one unit's result within a run.
// Seq is 1-based and gapless in submission order.
type OutcomeRecord struct {
	Seq    int    `json:"seq"`
	Target string `json:"target"`
	OK     bool   `json:"ok"`
	Handle string `json:"handle,omitempty"`
	Err    string `json:"err,omitempty"`
}
