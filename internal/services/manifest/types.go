// Package manifest defines the durable descriptor of a part series and the
// operations that create, validate, and encode it
//
// A manifest is created once, at split+hash time, and mutated afterwards
// only by the posting pipeline as parts land on the ledger
package manifest

import (
	"time"

	"seriate/internal/core/hashing"
)

// SchemaVersion is the current manifest schema
const SchemaVersion = 2

// ArchitectureThreadReply marks the publishing scheme: part 1 is a root
// document, parts 2..N are threaded replies referencing it
const ArchitectureThreadReply = "thread-reply-v1"

// Part count bounds
const (
	MinParts = 1
	MaxParts = 100
)

// Status is the lifecycle state of one part record
type Status string

// Part record lifecycle states
const (
	StatusPending Status = "pending"
	StatusPosted  Status = "posted"
	StatusFailed  Status = "failed"
)

// Ref is a ledger author/locator pair identifying one published entry
type Ref struct {
	Author  string `json:"author"`
	Locator string `json:"locator"`
}

// IsZero reports whether the ref carries no locator
func (r Ref) IsZero() bool { return r.Author == "" && r.Locator == "" }

// PartRecord tracks the publish state of one part
// Author and Locator stay empty until the part is posted
type PartRecord struct {
	Number   int        `json:"part_number"`
	Author   string     `json:"author,omitempty"`
	Locator  string     `json:"locator,omitempty"`
	Status   Status     `json:"status"`
	PostedAt *time.Time `json:"posted_at,omitempty"`
}

// PartHash pairs a part number with its digest triple
type PartHash struct {
	Number int `json:"part_number"`
	hashing.Triple
}

// Manifest is the aggregate root describing one series
type Manifest struct {
	SeriesID      string         `json:"series_id"`
	SchemaVersion int            `json:"schema_version"`
	SourceURL     string         `json:"source_url,omitempty"`
	Title         string         `json:"title"`
	CreatedAt     time.Time      `json:"created_at"`
	TotalParts    int            `json:"total_parts"`
	Architecture  string         `json:"architecture,omitempty"`
	Root          *Ref           `json:"root,omitempty"`
	FullHash      hashing.Triple `json:"full_hash"`
	PartHashes    []PartHash     `json:"part_hashes"`
	Tags          []string       `json:"tags"`
	Parts         []PartRecord   `json:"parts"`
}

// PostedCount returns how many parts are marked posted
func (m *Manifest) PostedCount() int {
	n := 0
	for _, p := range m.Parts {
		if p.Status == StatusPosted {
			n++
		}
	}
	return n
}

// Complete reports whether every part is posted
func (m *Manifest) Complete() bool { return m.PostedCount() == m.TotalParts }

// ExpectedHashes converts the manifest's digest lists into the shape the
// hash engine verifies against
func (m *Manifest) ExpectedHashes() hashing.Expected {
	per := make([]hashing.Triple, len(m.PartHashes))
	for i, ph := range m.PartHashes {
		per[i] = ph.Triple
	}
	return hashing.Expected{PerPart: per, Full: m.FullHash}
}

// Clone returns a deep copy, used for read-only snapshots handed to
// observers
func (m *Manifest) Clone() *Manifest {
	c := *m
	if m.Root != nil {
		r := *m.Root
		c.Root = &r
	}
	c.PartHashes = append([]PartHash(nil), m.PartHashes...)
	c.Tags = append([]string(nil), m.Tags...)
	c.Parts = make([]PartRecord, len(m.Parts))
	for i, p := range m.Parts {
		c.Parts[i] = p
		if p.PostedAt != nil {
			ts := *p.PostedAt
			c.Parts[i].PostedAt = &ts
		}
	}
	return &c
}
