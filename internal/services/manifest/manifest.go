package manifest

import (
	"time"

	"github.com/google/uuid"

	"seriate/internal/core/hashing"
	perr "seriate/internal/platform/errors"
	ptime "seriate/internal/platform/time"
)

// Params carries everything New needs to build a manifest
// SeriesID, CreatedAt, and Parts are optional; Parts is accepted only for
// migration of records produced by an older client
type Params struct {
	SeriesID   string
	SourceURL  string
	Title      string
	TotalParts int
	FullHash   hashing.Triple
	PartHashes []hashing.Triple
	Tags       []string
	Parts      []PartRecord
	CreatedAt  time.Time
}

// New validates params and builds a manifest with every part pending
func New(p Params) (*Manifest, error) {
	if p.Title == "" {
		return nil, perr.WithField(perr.Validationf("title is required"), "title")
	}
	if p.TotalParts < MinParts || p.TotalParts > MaxParts {
		return nil, perr.WithField(
			perr.Validationf("total_parts %d outside [%d,%d]", p.TotalParts, MinParts, MaxParts),
			"total_parts")
	}
	if len(p.PartHashes) != p.TotalParts {
		return nil, perr.WithField(
			perr.Validationf("part_hashes length %d != total_parts %d", len(p.PartHashes), p.TotalParts),
			"part_hashes")
	}
	if p.FullHash.SHA256 == "" {
		return nil, perr.WithField(perr.Validationf("full_hash primary digest is required"), "full_hash")
	}

	id := p.SeriesID
	if id == "" {
		id = uuid.NewString()
	} else if _, err := parseSeriesID(id); err != nil {
		return nil, err
	}

	created := p.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	m := &Manifest{
		SeriesID:      id,
		SchemaVersion: SchemaVersion,
		SourceURL:     p.SourceURL,
		Title:         p.Title,
		CreatedAt:     created,
		TotalParts:    p.TotalParts,
		Architecture:  ArchitectureThreadReply,
		FullHash:      p.FullHash,
		Tags:          Tags(id, p.Tags...),
	}

	m.PartHashes = make([]PartHash, p.TotalParts)
	for i, h := range p.PartHashes {
		m.PartHashes[i] = PartHash{Number: i + 1, Triple: h}
	}

	if p.Parts != nil {
		if len(p.Parts) != p.TotalParts {
			return nil, perr.WithField(
				perr.Validationf("parts length %d != total_parts %d", len(p.Parts), p.TotalParts),
				"parts")
		}
		m.Parts = append([]PartRecord(nil), p.Parts...)
	} else {
		m.Parts = make([]PartRecord, p.TotalParts)
		for i := range m.Parts {
			m.Parts[i] = PartRecord{Number: i + 1, Status: StatusPending}
		}
	}

	if err := Validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate enforces every manifest invariant; nil error means valid
func Validate(m *Manifest) error {
	if m == nil {
		return perr.Validationf("manifest is nil")
	}
	if _, err := parseSeriesID(m.SeriesID); err != nil {
		return err
	}
	if m.Title == "" {
		return perr.WithField(perr.Validationf("title is required"), "title")
	}
	if m.TotalParts < MinParts || m.TotalParts > MaxParts {
		return perr.WithField(
			perr.Validationf("total_parts %d outside [%d,%d]", m.TotalParts, MinParts, MaxParts),
			"total_parts")
	}
	if len(m.Parts) != m.TotalParts {
		return perr.WithField(
			perr.Validationf("parts length %d != total_parts %d", len(m.Parts), m.TotalParts),
			"parts")
	}
	if len(m.PartHashes) != m.TotalParts {
		return perr.WithField(
			perr.Validationf("part_hashes length %d != total_parts %d", len(m.PartHashes), m.TotalParts),
			"part_hashes")
	}
	if m.FullHash.SHA256 == "" {
		return perr.WithField(perr.Validationf("full_hash primary digest is required"), "full_hash")
	}
	for i, ph := range m.PartHashes {
		if ph.Number != i+1 {
			return perr.Validationf("part_hashes[%d] numbered %d, want %d", i, ph.Number, i+1)
		}
		if ph.SHA256 == "" {
			return perr.Validationf("part_hashes[%d] missing primary digest", i)
		}
	}
	for i, pr := range m.Parts {
		if pr.Number != i+1 {
			return perr.Validationf("parts[%d] numbered %d, want %d", i, pr.Number, i+1)
		}
		switch pr.Status {
		case StatusPending, StatusPosted, StatusFailed:
		default:
			return perr.Validationf("parts[%d] has unknown status %q", i, pr.Status)
		}
		if pr.Status == StatusPosted && (pr.Locator == "" || pr.Author == "") {
			return perr.Validationf("parts[%d] posted without a locator/author", i)
		}
	}
	// newer fields are optional for manifests written by older clients, but
	// when present they must carry the documented values
	if m.Architecture != "" && m.Architecture != ArchitectureThreadReply {
		return perr.WithField(
			perr.Validationf("unknown architecture %q", m.Architecture), "architecture")
	}
	if m.Root != nil && (m.Root.Author == "" || m.Root.Locator == "") {
		return perr.WithField(perr.Validationf("root ref must carry author and locator"), "root")
	}
	return nil
}

// MarkPosted mutates exactly one part record to posted with the given ref
// Only the posting pipeline calls this
func MarkPosted(m *Manifest, partNumber int, ref Ref) error {
	if partNumber < 1 || partNumber > len(m.Parts) {
		return perr.InvalidArgf("part %d outside series of %d", partNumber, len(m.Parts))
	}
	if ref.Locator == "" || ref.Author == "" {
		return perr.InvalidArgf("posted ref must carry author and locator")
	}
	rec := &m.Parts[partNumber-1]
	rec.Status = StatusPosted
	rec.Author = ref.Author
	rec.Locator = ref.Locator
	rec.PostedAt = ptime.Ptr(time.Now().UTC())
	if partNumber == 1 {
		m.Root = &Ref{Author: ref.Author, Locator: ref.Locator}
	}
	return nil
}

func parseSeriesID(id string) (uuid.UUID, error) {
	u, err := uuid.Parse(id)
	if err != nil || len(id) != 36 {
		return uuid.UUID{}, perr.WithField(
			perr.Validationf("series_id %q is not a canonical hyphenated identifier", id),
			"series_id")
	}
	return u, nil
}
