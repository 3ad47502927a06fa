package service

import (
	"context"
	"sync"
	"time"

	"seriate/internal/core/splitter"
	perr "seriate/internal/platform/errors"
	"seriate/internal/platform/logger"
	"seriate/internal/services/manifest"
	"seriate/internal/services/pipeline/domain"
)

// Config tunes the pipeline run loop
type Config struct {
	// Author is the posting identity stamped on every payload
	Author string

	// MaxAttempts bounds publish attempts per part before pausing
	MaxAttempts int

	// Backoff holds the delay before retry n+1; len must be MaxAttempts-1
	// or more
	Backoff []time.Duration

	// Cooldown is the pause between successfully posted parts
	Cooldown time.Duration

	// Unit is the sleep granularity; cancellation latency is at most one
	// unit
	Unit time.Duration

	// PublishTimeout bounds a single transport call
	PublishTimeout time.Duration

	// ActiveTTL is how recent a persisted in_progress snapshot must be to
	// count as a live competing instance
	ActiveTTL time.Duration
}

// DefaultConfig returns the production tuning
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		Backoff:        []time.Duration{1 * time.Second, 3 * time.Second, 9 * time.Second},
		Cooldown:       20 * time.Second,
		Unit:           1 * time.Second,
		PublishTimeout: 30 * time.Second,
		ActiveTTL:      2 * time.Minute,
	}
}

// Deps carries the pipeline's collaborators
type Deps struct {
	Transport domain.TransportPort
	Storage   domain.StoragePort
	Observer  domain.ObserverPort
	Log       *logger.Logger
}

// Svc drives one series through the ledger, part by part
type Svc struct {
	cfg   Config
	deps  Deps
	log   *logger.Logger
	m     *manifest.Manifest
	parts []splitter.Part

	mu       sync.Mutex
	st       domain.State
	started  bool
	restored bool

	// request flags set by Pause/Cancel from other goroutines, consumed
	// at the next suspension point
	pauseReq  bool
	cancelReq bool

	// seams for tests
	now   func() time.Time
	sleep func(d time.Duration)
}

// New validates the inputs and builds a pipeline positioned at part 1
func New(cfg Config, deps Deps, m *manifest.Manifest, parts []splitter.Part) (*Svc, error) {
	if deps.Transport == nil || deps.Storage == nil {
		return nil, perr.InvalidArgf("pipeline: transport and storage are required")
	}
	if m == nil {
		return nil, perr.InvalidArgf("pipeline: manifest is required")
	}
	if err := manifest.Validate(m); err != nil {
		return nil, err
	}
	if len(parts) != m.TotalParts {
		return nil, perr.Validationf("pipeline: %d parts for a %d-part manifest", len(parts), m.TotalParts)
	}
	for i, p := range parts {
		if p.Number != i+1 {
			return nil, perr.Validationf("pipeline: part %d carries number %d", i+1, p.Number)
		}
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if len(cfg.Backoff) < cfg.MaxAttempts-1 {
		return nil, perr.InvalidArgf("pipeline: backoff ladder shorter than max attempts")
	}
	if cfg.Unit <= 0 {
		cfg.Unit = time.Second
	}
	log := deps.Log
	if log == nil {
		log = logger.Named("pipeline")
	}
	return &Svc{
		cfg:   cfg,
		deps:  deps,
		log:   log,
		m:     m,
		parts: parts,
		st:    domain.NewState(m.SeriesID),
		now:   time.Now,
		sleep: time.Sleep,
	}, nil
}

// Start runs the pipeline until a terminal phase and returns the first
// run-loop error, if any. It is safe to call again after a pause or
// cancel to pick up at the preserved pointer
func (s *Svc) Start(ctx context.Context) error {
	s.mu.Lock()
	if !s.started && !s.restored {
		if err := s.guardActive(ctx); err != nil {
			s.mu.Unlock()
			return err
		}
		if err := s.deps.Storage.SaveParts(ctx, s.m.SeriesID, s.parts, s.m); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.started = true
	s.pauseReq = false
	s.cancelReq = false
	s.mu.Unlock()

	s.notify(domain.Progress{Phase: domain.PhasePreparing, TotalParts: s.m.TotalParts, Manifest: s.m.Clone()})
	return s.run(ctx, evStart{})
}

// Resume is Start with intent: it refuses series already completed
func (s *Svc) Resume(ctx context.Context) error {
	s.mu.Lock()
	done := s.st.Status == domain.StatusCompleted
	s.mu.Unlock()
	if done {
		return perr.Conflictf("pipeline: series %s already completed", s.m.SeriesID)
	}
	return s.Start(ctx)
}

// Pause requests a stop after the in-flight operation; the pointer is
// preserved for a later Resume
func (s *Svc) Pause() {
	s.mu.Lock()
	s.pauseReq = true
	s.mu.Unlock()
}

// Cancel requests a stop like Pause but records the run as cancelled
func (s *Svc) Cancel() {
	s.mu.Lock()
	s.cancelReq = true
	s.mu.Unlock()
}

// Snapshot returns the current caller-facing view
func (s *Svc) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.st.Clone()
	snap := domain.Snapshot{
		SeriesID:  st.SeriesID,
		Current:   st.Current,
		Attempts:  st.Attempts,
		Cancelled: st.Cancelled,
		Paused:    st.Paused,
		Errors:    st.Errors,
		Status:    st.Status,
	}
	for _, p := range s.m.Parts {
		switch p.Status {
		case manifest.StatusPosted:
			snap.Posted++
		case manifest.StatusFailed:
			snap.Failed++
		default:
			snap.Pending++
		}
	}
	return snap
}

// Restore rehydrates a pipeline from a persisted snapshot so Start picks
// up at the preserved pointer
func (s *Svc) Restore(st *domain.State) error {
	if st == nil {
		return perr.InvalidArgf("pipeline: nil state")
	}
	if st.SeriesID != s.m.SeriesID {
		return perr.Conflictf("pipeline: state is for series %s, manifest is %s", st.SeriesID, s.m.SeriesID)
	}
	if st.Current < 1 || st.Current > s.m.TotalParts+1 {
		return perr.Validationf("pipeline: pointer %d out of range for %d parts", st.Current, s.m.TotalParts)
	}
	s.mu.Lock()
	s.st = st.Clone()
	if s.st.Attempts == nil {
		s.st.Attempts = map[int]int{}
	}
	s.restored = true
	s.mu.Unlock()
	return nil
}

// LoadPersisted fetches a persisted state snapshot without constructing a
// pipeline around it
func LoadPersisted(ctx context.Context, storage domain.StoragePort, seriesID string) (*domain.State, error) {
	return storage.LoadState(ctx, seriesID)
}

// guardActive refuses to start when another instance's fresh in_progress
// snapshot exists for the same series
func (s *Svc) guardActive(ctx context.Context) error {
	prev, err := s.deps.Storage.LoadState(ctx, s.m.SeriesID)
	if err != nil {
		if perr.IsCode(err, perr.ErrorCodeNotFound) {
			return nil
		}
		return err
	}
	if prev.Status == domain.StatusInProgress && s.now().Sub(prev.UpdatedAt) < s.cfg.ActiveTTL {
		return perr.Conflictf("pipeline: series %s has an active attempt (updated %s)",
			s.m.SeriesID, prev.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}

// run is the event loop: fold an event through the machine, execute the
// resulting commands, repeat until terminal
func (s *Svc) run(ctx context.Context, ev event) error {
	for ev != nil {
		s.mu.Lock()
		next, cmds := step(s.st, s.m, ev, s.now().UTC(), s.cfg)
		s.st = next
		s.mu.Unlock()

		ev = nil
		for _, cmd := range cmds {
			nev, err := s.execute(ctx, cmd)
			if err != nil {
				return err
			}
			if nev != nil {
				ev = nev
			}
		}

		s.mu.Lock()
		terminal := s.st.Terminal()
		s.mu.Unlock()
		if terminal {
			break
		}
	}
	return nil
}

// execute performs one command; publish and sleep produce the next event
func (s *Svc) execute(ctx context.Context, cmd command) (event, error) {
	switch c := cmd.(type) {
	case cmdNotify:
		s.notify(domain.Progress{
			Phase:      c.Phase,
			Part:       c.Part,
			TotalParts: s.m.TotalParts,
			Attempt:    c.Attempt,
			Message:    c.Message,
			Manifest:   s.m.Clone(),
		})
		return nil, nil

	case cmdPersist:
		return nil, s.persist(ctx)

	case cmdDeleteState:
		if err := s.deps.Storage.DeleteState(ctx, s.m.SeriesID); err != nil {
			s.log.Warn().Err(err).Str("series", s.m.SeriesID).Msg("delete state failed")
		}
		return nil, nil

	case cmdMarkPosted:
		s.mu.Lock()
		err := manifest.MarkPosted(s.m, c.Part, c.Ref)
		if err == nil {
			s.healEarlier(c.Part)
		}
		s.mu.Unlock()
		if err != nil {
			return nil, err
		}
		if err := s.deps.Storage.SaveParts(ctx, s.m.SeriesID, s.parts, s.m); err != nil {
			s.log.Warn().Err(err).Str("series", s.m.SeriesID).Msg("persist manifest failed")
		}
		return nil, nil

	case cmdPublish:
		if ev := s.interruption(ctx); ev != nil {
			return ev, nil
		}
		return s.publish(ctx, c), nil

	case cmdSleep:
		return s.sleepFor(ctx, c.D), nil
	}
	return nil, nil
}

// publish builds the payload for one part and calls the transport
func (s *Svc) publish(ctx context.Context, c cmdPublish) event {
	payload, err := s.buildPayload(c.Part)
	if err != nil {
		return evPublishErr{Part: c.Part, Err: err}
	}

	pctx := ctx
	if s.cfg.PublishTimeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, s.cfg.PublishTimeout)
		defer cancel()
	}

	s.log.Info().
		Str("series", s.m.SeriesID).
		Int("part", c.Part).
		Int("attempt", c.Attempt).
		Msg("publishing part")

	ref, err := s.deps.Transport.Publish(pctx, payload)
	if err != nil {
		return evPublishErr{Part: c.Part, Err: err}
	}
	if ref.Locator == "" {
		return evPublishErr{
			Part: c.Part,
			Err:  perr.Newf(perr.ErrorCodeTransportTransient, "transport returned success without a locator"),
		}
	}
	return evPublishOK{Part: c.Part, Ref: ref}
}

// sleepFor waits in unit-sized slices so pause and cancel land within one
// unit; it reports the interruption as the next event
func (s *Svc) sleepFor(ctx context.Context, d time.Duration) event {
	units := int(d / s.cfg.Unit)
	if units < 1 {
		units = 1
	}
	for i := 0; i < units; i++ {
		if ev := s.interruption(ctx); ev != nil {
			return ev
		}
		s.sleep(s.cfg.Unit)
	}
	if ev := s.interruption(ctx); ev != nil {
		return ev
	}
	return evSlept{}
}

// interruption checks context and request flags at a suspension point
func (s *Svc) interruption(ctx context.Context) event {
	if ctx.Err() != nil {
		return evCancelReq{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelReq {
		s.cancelReq = false
		return evCancelReq{}
	}
	if s.pauseReq {
		s.pauseReq = false
		return evPauseReq{}
	}
	return nil
}

// healEarlier flips stale pending records below the landed part to posted
// where a locator survives from a prior attempt; records with no locator
// are left alone so posted never means unlocatable
func (s *Svc) healEarlier(landed int) {
	for i := 0; i < landed-1 && i < len(s.m.Parts); i++ {
		p := &s.m.Parts[i]
		if p.Status != manifest.StatusPosted && p.Locator != "" {
			p.Status = manifest.StatusPosted
		}
	}
}

func (s *Svc) persist(ctx context.Context) error {
	s.mu.Lock()
	st := s.st.Clone()
	st.UpdatedAt = s.now().UTC()
	s.st.UpdatedAt = st.UpdatedAt
	s.mu.Unlock()
	if err := s.deps.Storage.SaveState(ctx, &st); err != nil {
		return perr.Wrap(err, perr.ErrorCodeStorage, "pipeline: persist state")
	}
	return nil
}

func (s *Svc) notify(p domain.Progress) {
	if s.deps.Observer != nil {
		s.deps.Observer.OnProgress(p)
	}
}
