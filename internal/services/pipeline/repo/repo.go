// Package repo persists pipeline state and split parts through the
// tiered store
package repo

import (
	"context"
	"encoding/json"
	"time"

	"seriate/internal/core/splitter"
	perr "seriate/internal/platform/errors"
	"seriate/internal/platform/store"
	"seriate/internal/services/manifest"
	"seriate/internal/services/pipeline/domain"
)

const (
	stateKeyPrefix = "state/"
	partsKeyPrefix = "parts/"
)

// Retention by outcome: incomplete runs wait the longest for a resume,
// failed ones longer still so the evidence survives triage
const (
	ttlIncomplete = 14 * 24 * time.Hour
	ttlCompleted  = 7 * 24 * time.Hour
	ttlFailed     = 30 * 24 * time.Hour
)

// partsEnvelope is the stored shape for a series' split output
type partsEnvelope struct {
	Parts    []splitter.Part    `json:"parts"`
	Manifest *manifest.Manifest `json:"manifest"`
	SavedAt  time.Time          `json:"saved_at"`
}

// Repo implements domain.StoragePort over a store.Store
type Repo struct {
	st  *store.Store
	now func() time.Time
}

// New builds a Repo
func New(st *store.Store) *Repo {
	return &Repo{st: st, now: time.Now}
}

// SaveParts writes the split parts and manifest as one envelope, with a
// TTL picked from the manifest's completion
func (r *Repo) SaveParts(ctx context.Context, seriesID string, parts []splitter.Part, m *manifest.Manifest) error {
	if seriesID == "" {
		return perr.InvalidArgf("repo: empty series id")
	}
	env := partsEnvelope{Parts: parts, Manifest: m, SavedAt: r.now().UTC()}
	raw, err := json.Marshal(env)
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeJSON, "repo: encode parts")
	}
	ttl := ttlIncomplete
	if m != nil && m.Complete() {
		ttl = ttlCompleted
	}
	return r.st.Put(ctx, partsKeyPrefix+seriesID, raw, ttl)
}

// LoadParts reads back a series' split output
func (r *Repo) LoadParts(ctx context.Context, seriesID string) ([]splitter.Part, *manifest.Manifest, error) {
	raw, err := r.st.Get(ctx, partsKeyPrefix+seriesID)
	if err != nil {
		return nil, nil, err
	}
	var env partsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, perr.Wrap(err, perr.ErrorCodeJSON, "repo: decode parts")
	}
	return env.Parts, env.Manifest, nil
}

// DeleteParts removes a series' split output
func (r *Repo) DeleteParts(ctx context.Context, seriesID string) error {
	return r.st.Delete(ctx, partsKeyPrefix+seriesID)
}

// SaveState persists a state snapshot with a TTL from its status
func (r *Repo) SaveState(ctx context.Context, st *domain.State) error {
	if st == nil || st.SeriesID == "" {
		return perr.InvalidArgf("repo: state without a series id")
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeJSON, "repo: encode state")
	}
	return r.st.Put(ctx, stateKeyPrefix+st.SeriesID, raw, stateTTL(st.Status))
}

// LoadState reads a persisted state snapshot
func (r *Repo) LoadState(ctx context.Context, seriesID string) (*domain.State, error) {
	raw, err := r.st.Get(ctx, stateKeyPrefix+seriesID)
	if err != nil {
		return nil, err
	}
	var st domain.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeJSON, "repo: decode state")
	}
	return &st, nil
}

// DeleteState removes a persisted state snapshot
func (r *Repo) DeleteState(ctx context.Context, seriesID string) error {
	return r.st.Delete(ctx, stateKeyPrefix+seriesID)
}

// ListIncomplete scans persisted states and returns the series ids whose
// status is resumable, oldest snapshots included; undecodable entries are
// skipped rather than failing the scan
func (r *Repo) ListIncomplete(ctx context.Context) ([]string, error) {
	entries, err := r.st.List(ctx, stateKeyPrefix)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		var st domain.State
		if json.Unmarshal(e.Value, &st) != nil {
			continue
		}
		if st.Status.Resumable() {
			ids = append(ids, st.SeriesID)
		}
	}
	return ids, nil
}

func stateTTL(s domain.OverallStatus) time.Duration {
	switch s {
	case domain.StatusCompleted:
		return ttlCompleted
	case domain.StatusFailed:
		return ttlFailed
	default:
		return ttlIncomplete
	}
}
