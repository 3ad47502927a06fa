package manifest

import (
	"encoding/json"
	"time"

	"seriate/internal/core/hashing"
	perr "seriate/internal/platform/errors"
)

// Stored manifests are versioned. Schema v2 is the current shape; v1 was
// written by early clients (bare hex digests, no architecture field) and is
// upgraded exactly once, at load time. Code past DecodeStored only ever sees
// the current shape

// legacyManifest is the v1 on-disk shape
type legacyManifest struct {
	Version    int      `json:"version"`
	SeriesID   string   `json:"series_id"`
	Source     string   `json:"source,omitempty"`
	Title      string   `json:"title"`
	CreatedAt  string   `json:"created_at,omitempty"`
	TotalParts int      `json:"total_parts"`
	FullHash   string   `json:"full_hash"`
	PartHashes []string `json:"part_hashes"`
	Tags       []string `json:"tags,omitempty"`
	Parts      []struct {
		Number  int    `json:"part_number"`
		Author  string `json:"author,omitempty"`
		Locator string `json:"locator,omitempty"`
		Status  Status `json:"status"`
	} `json:"parts,omitempty"`
}

// EncodeStored serializes a manifest for persistence
func EncodeStored(m *Manifest) ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeJSON, "manifest encode")
	}
	return raw, nil
}

// DecodeStored deserializes a persisted manifest, upgrading legacy shapes
// The returned manifest always passes Validate
func DecodeStored(data []byte) (*Manifest, error) {
	var probe struct {
		SchemaVersion int `json:"schema_version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeJSON, "manifest decode")
	}

	if probe.SchemaVersion >= SchemaVersion {
		var m Manifest
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, perr.Wrap(err, perr.ErrorCodeJSON, "manifest decode")
		}
		if err := Validate(&m); err != nil {
			return nil, err
		}
		return &m, nil
	}

	var lm legacyManifest
	if err := json.Unmarshal(data, &lm); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeJSON, "legacy manifest decode")
	}
	return upgradeLegacy(lm)
}

// upgradeLegacy lifts a v1 manifest into the current shape
func upgradeLegacy(lm legacyManifest) (*Manifest, error) {
	// bound before allocating; a corrupt count must reject, not panic
	if lm.TotalParts < MinParts || lm.TotalParts > MaxParts {
		return nil, perr.WithField(
			perr.Validationf("total_parts %d outside [%d,%d]", lm.TotalParts, MinParts, MaxParts),
			"total_parts")
	}
	m := &Manifest{
		SeriesID:      lm.SeriesID,
		SchemaVersion: SchemaVersion,
		SourceURL:     lm.Source,
		Title:         lm.Title,
		TotalParts:    lm.TotalParts,
		FullHash:      hashing.Triple{SHA256: lm.FullHash},
		Tags:          Tags(lm.SeriesID, lm.Tags...),
	}

	// v1 stored RFC3339 strings; anything unparseable defaults to now with
	// a distinguishing tag rather than failing the whole load
	if ts, err := time.Parse(time.RFC3339, lm.CreatedAt); err == nil {
		m.CreatedAt = ts
	} else {
		m.CreatedAt = time.Now().UTC()
		m.Tags = append(m.Tags, TagDateUnknown)
	}

	m.PartHashes = make([]PartHash, len(lm.PartHashes))
	for i, h := range lm.PartHashes {
		m.PartHashes[i] = PartHash{Number: i + 1, Triple: hashing.Triple{SHA256: h}}
	}

	m.Parts = make([]PartRecord, lm.TotalParts)
	for i := range m.Parts {
		m.Parts[i] = PartRecord{Number: i + 1, Status: StatusPending}
	}
	for _, p := range lm.Parts {
		if p.Number >= 1 && p.Number <= lm.TotalParts {
			m.Parts[p.Number-1] = PartRecord{
				Number:  p.Number,
				Author:  p.Author,
				Locator: p.Locator,
				Status:  p.Status,
			}
		}
	}
	// v1 wrote the root ref only implicitly, through part 1
	if lm.TotalParts >= 1 && m.Parts[0].Status == StatusPosted {
		m.Root = &Ref{Author: m.Parts[0].Author, Locator: m.Parts[0].Locator}
	}

	if err := Validate(m); err != nil {
		return nil, err
	}
	return m, nil
}
