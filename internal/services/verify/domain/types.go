// Package domain defines the types and interfaces for resume verification
package domain

import "context"

// Outcome classifies one part after a verification pass
type Outcome string

// Part outcomes
const (
	OutcomeVerified Outcome = "verified"
	OutcomeFailed   Outcome = "failed"
	OutcomeMissing  Outcome = "missing"
)

// PartCheck is the verdict for one part
type PartCheck struct {
	Part    int     `json:"part"`
	Outcome Outcome `json:"outcome"`
	// Reason explains a failed check: mismatch, absent, unreachable
	Reason string `json:"reason,omitempty"`
}

// Report is the verdict for a whole series
type Report struct {
	SeriesID string      `json:"series_id"`
	Checks   []PartCheck `json:"checks"`
	Verified []int       `json:"verified"`
	Failed   []int       `json:"failed"`
	Missing  []int       `json:"missing"`
}

// Clean reports whether every posted part verified and nothing failed
func (r Report) Clean() bool { return len(r.Failed) == 0 }

// Complete reports a fully posted and fully verified series
func (r Report) Complete() bool { return len(r.Failed) == 0 && len(r.Missing) == 0 }

// ProgressFunc receives each part's verdict as it lands
type ProgressFunc func(c PartCheck)

// FetchPort reads back a published part's body by author and locator
type FetchPort interface {
	FetchContent(ctx context.Context, author, locator string) (string, error)
}
