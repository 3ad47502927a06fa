// Package domain defines the types and interfaces for the posting pipeline
package domain

import (
	"time"

	"seriate/internal/services/manifest"
)

// Phase is the externally visible stage of a pipeline run
type Phase string

// Pipeline phases
const (
	PhasePreparing Phase = "preparing"
	PhasePosting   Phase = "posting"
	PhasePosted    Phase = "posted"
	PhaseRetrying  Phase = "retrying"
	PhaseCooldown  Phase = "cooldown"
	PhaseSuccess   Phase = "success"
	PhaseFailed    Phase = "failed"
	PhaseCancelled Phase = "cancelled"
	PhasePaused    Phase = "paused"
)

// OverallStatus is the derived status persisted with the state snapshot
type OverallStatus string

// Overall statuses
const (
	StatusInProgress OverallStatus = "in_progress"
	StatusPaused     OverallStatus = "paused"
	StatusCompleted  OverallStatus = "completed"
	StatusFailed     OverallStatus = "failed"
	StatusCancelled  OverallStatus = "cancelled"
)

// Resumable reports whether a persisted status is worth offering for resume
func (s OverallStatus) Resumable() bool {
	switch s {
	case StatusInProgress, StatusPaused, StatusCancelled:
		return true
	}
	return false
}

// ErrLogEntry is one captured pipeline-level error
type ErrLogEntry struct {
	Part    int       `json:"part"`
	Attempt int       `json:"attempt"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// State is the persisted pipeline state, one per series
// It is a serialized snapshot with no identity of its own: always
// reconstructible from manifest + pointer + counters
type State struct {
	SeriesID string `json:"series_id"`

	// Current is the next part to attempt, 1-indexed; total+1 once done
	Current int `json:"current"`

	// Attempts counts publish attempts per part for the current run of
	// retries; cleared when the part lands
	Attempts map[int]int `json:"attempts,omitempty"`

	Cancelled bool `json:"cancelled,omitempty"`
	Paused    bool `json:"paused,omitempty"`

	Errors []ErrLogEntry `json:"errors,omitempty"`

	// Root caches part 1's ledger ref so a resume can thread replies
	// without re-reading the manifest
	Root *manifest.Ref `json:"root,omitempty"`

	Status    OverallStatus `json:"status"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// NewState returns the initial state for a series
func NewState(seriesID string) State {
	return State{
		SeriesID: seriesID,
		Current:  1,
		Attempts: map[int]int{},
		Status:   StatusInProgress,
	}
}

// Clone returns a deep copy so transitions never alias a prior snapshot
func (s State) Clone() State {
	c := s
	c.Attempts = make(map[int]int, len(s.Attempts))
	for k, v := range s.Attempts {
		c.Attempts[k] = v
	}
	c.Errors = append([]ErrLogEntry(nil), s.Errors...)
	if s.Root != nil {
		r := *s.Root
		c.Root = &r
	}
	return c
}

// Terminal reports whether the run loop should stop in this state
func (s State) Terminal() bool {
	switch s.Status {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusPaused:
		return true
	}
	return false
}

// Progress is the notification emitted on every state transition
// Manifest is a read-only clone; observers must not retain expectations of
// it tracking later mutations
type Progress struct {
	Phase      Phase
	Part       int
	TotalParts int
	Attempt    int
	Message    string
	Manifest   *manifest.Manifest
}

// Snapshot is the caller-facing view of a live pipeline
type Snapshot struct {
	SeriesID  string
	Current   int
	Attempts  map[int]int
	Cancelled bool
	Paused    bool
	Errors    []ErrLogEntry
	Status    OverallStatus
	Posted    int
	Pending   int
	Failed    int
}
