package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"seriate/internal/core/hashing"
	"seriate/internal/core/splitter"
	perr "seriate/internal/platform/errors"
	"seriate/internal/services/manifest"
	"seriate/internal/services/pipeline/domain"
)

type fakeTransport struct {
	mu    sync.Mutex
	calls []domain.Payload
	// respond decides the outcome for a given part and attempt
	respond func(part, attempt int, p domain.Payload) (manifest.Ref, error)
	// attempt counters keyed by part
	seen map[int]int
}

func (f *fakeTransport) Publish(_ context.Context, p domain.Payload) (manifest.Ref, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen == nil {
		f.seen = map[int]int{}
	}
	part := partOf(p)
	f.seen[part]++
	f.calls = append(f.calls, p)
	return f.respond(part, f.seen[part], p)
}

// partOf recovers the part number from the payload's compact marker
func partOf(p domain.Payload) int {
	c, err := manifest.ExtractCompact(p.Body)
	if err != nil {
		return -1
	}
	return c.CurrentPart
}

type fakeStorage struct {
	mu     sync.Mutex
	states map[string][]byte
	parts  map[string]int // save count per series
	mans   map[string]*manifest.Manifest
	saved  []domain.State
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{states: map[string][]byte{}, parts: map[string]int{}, mans: map[string]*manifest.Manifest{}}
}

func (f *fakeStorage) SaveParts(_ context.Context, id string, _ []splitter.Part, m *manifest.Manifest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.parts[id]++
	f.mans[id] = m.Clone()
	return nil
}

func (f *fakeStorage) LoadParts(_ context.Context, id string) ([]splitter.Part, *manifest.Manifest, error) {
	return nil, nil, perr.NotFoundf("parts %s", id)
}

func (f *fakeStorage) DeleteParts(_ context.Context, id string) error { return nil }

func (f *fakeStorage) SaveState(_ context.Context, st *domain.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[st.SeriesID] = []byte("set")
	f.saved = append(f.saved, st.Clone())
	return nil
}

func (f *fakeStorage) LoadState(_ context.Context, id string) (*domain.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.states[id]; !ok {
		return nil, perr.NotFoundf("state %s", id)
	}
	last := f.saved[len(f.saved)-1].Clone()
	return &last, nil
}

func (f *fakeStorage) DeleteState(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.states, id)
	return nil
}

func (f *fakeStorage) ListIncomplete(context.Context) ([]string, error) { return nil, nil }

func (f *fakeStorage) lastState(t *testing.T) domain.State {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.saved) == 0 {
		t.Fatal("no state was persisted")
	}
	return f.saved[len(f.saved)-1]
}

type fakeObserver struct {
	mu     sync.Mutex
	phases []domain.Phase
	hook   func(p domain.Progress)
}

func (f *fakeObserver) OnProgress(p domain.Progress) {
	f.mu.Lock()
	f.phases = append(f.phases, p.Phase)
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		hook(p)
	}
}

func (f *fakeObserver) sawPhase(ph domain.Phase) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, got := range f.phases {
		if got == ph {
			return true
		}
	}
	return false
}

func testParts(total int) []splitter.Part {
	parts := make([]splitter.Part, total)
	for i := range parts {
		parts[i] = splitter.Part{
			Number:     i + 1,
			TotalParts: total,
			Content:    "part body " + string(rune('a'+i)),
			Boundary:   splitter.BoundaryParagraph,
		}
	}
	return parts
}

// newTestSvc wires a pipeline with seams stubbed: sleeps are recorded,
// not taken
func newTestSvc(t *testing.T, total int, tr *fakeTransport, fs *fakeStorage, obs *fakeObserver) (*Svc, *[]time.Duration) {
	t.Helper()
	m := testManifest(t, total)
	cfg := testCfg()
	cfg.Author = "alice"
	svc, err := New(cfg, Deps{Transport: tr, Storage: fs, Observer: obs}, m, testParts(total))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var slept []time.Duration
	svc.sleep = func(d time.Duration) { slept = append(slept, d) }
	svc.now = func() time.Time { return stepAt }
	return svc, &slept
}

func TestSvc_HappyRunPostsAllParts(t *testing.T) {
	tr := &fakeTransport{respond: func(part, attempt int, _ domain.Payload) (manifest.Ref, error) {
		return manifest.Ref{Author: "alice", Locator: "ledger://alice/" + string(rune('0'+part))}, nil
	}}
	fs := newFakeStorage()
	obs := &fakeObserver{}
	svc, slept := newTestSvc(t, 3, tr, fs, obs)

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	snap := svc.Snapshot()
	if snap.Status != domain.StatusCompleted {
		t.Fatalf("status = %s", snap.Status)
	}
	if snap.Posted != 3 || snap.Pending != 0 {
		t.Fatalf("posted/pending = %d/%d", snap.Posted, snap.Pending)
	}
	if len(tr.calls) != 3 {
		t.Fatalf("publish calls = %d", len(tr.calls))
	}

	// titles carry the position suffix, replies thread to the root
	if !strings.HasSuffix(tr.calls[0].Title, " (1/3)") {
		t.Fatalf("title = %q", tr.calls[0].Title)
	}
	if tr.calls[0].ParentLocator != "" {
		t.Fatalf("part 1 should have no parent, got %q", tr.calls[0].ParentLocator)
	}
	for i := 1; i < 3; i++ {
		if tr.calls[i].ParentLocator != "ledger://alice/1" {
			t.Fatalf("part %d parent = %q", i+1, tr.calls[i].ParentLocator)
		}
	}

	// bodies round trip through the marker strip
	for i, call := range tr.calls {
		if got := hashing.StripMarker(call.Body); got != "part body "+string(rune('a'+i)) {
			t.Fatalf("part %d stripped body = %q", i+1, got)
		}
	}

	// two cooldowns, 20 one-second units each
	total := time.Duration(0)
	for _, d := range *slept {
		total += d
	}
	if total != 40*time.Second {
		t.Fatalf("slept %s, want 40s of cooldown", total)
	}

	// success removes the persisted state
	if _, err := fs.LoadState(context.Background(), svc.m.SeriesID); !perr.IsCode(err, perr.ErrorCodeNotFound) {
		t.Fatalf("state survived success: %v", err)
	}
	if !obs.sawPhase(domain.PhaseSuccess) {
		t.Fatal("no success notification")
	}
}

func TestSvc_TransientExhaustionPausesRun(t *testing.T) {
	tr := &fakeTransport{respond: func(part, attempt int, _ domain.Payload) (manifest.Ref, error) {
		if part < 2 {
			return manifest.Ref{Author: "alice", Locator: "ledger://alice/1"}, nil
		}
		return manifest.Ref{}, perr.Newf(perr.ErrorCodeTransportTransient, "connection reset")
	}}
	fs := newFakeStorage()
	obs := &fakeObserver{}
	svc, slept := newTestSvc(t, 3, tr, fs, obs)

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	snap := svc.Snapshot()
	if snap.Status != domain.StatusPaused {
		t.Fatalf("status = %s", snap.Status)
	}
	if snap.Current != 2 || snap.Attempts[2] != 3 {
		t.Fatalf("pointer/attempts = %d/%v", snap.Current, snap.Attempts)
	}
	if len(snap.Errors) != 3 {
		t.Fatalf("error log = %+v", snap.Errors)
	}

	persisted := fs.lastState(t)
	if persisted.Status != domain.StatusPaused {
		t.Fatalf("persisted status = %s", persisted.Status)
	}

	// one cooldown (20s) plus two backoffs (1s, 3s), all in unit slices
	total := time.Duration(0)
	for _, d := range *slept {
		total += d
	}
	if total != 24*time.Second {
		t.Fatalf("slept %s, want 24s", total)
	}
	if !obs.sawPhase(domain.PhaseRetrying) || !obs.sawPhase(domain.PhasePaused) {
		t.Fatal("missing retrying/paused notifications")
	}
}

func TestSvc_PermanentErrorFailsImmediately(t *testing.T) {
	tr := &fakeTransport{respond: func(part, attempt int, _ domain.Payload) (manifest.Ref, error) {
		if part == 1 {
			return manifest.Ref{Author: "alice", Locator: "ledger://alice/1"}, nil
		}
		return manifest.Ref{}, perr.Newf(perr.ErrorCodeTransportPermanent, "unauthorized")
	}}
	fs := newFakeStorage()
	obs := &fakeObserver{}
	svc, slept := newTestSvc(t, 3, tr, fs, obs)

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	snap := svc.Snapshot()
	if snap.Status != domain.StatusFailed {
		t.Fatalf("status = %s", snap.Status)
	}
	if snap.Attempts[2] != 1 {
		t.Fatalf("attempts[2] = %d, want exactly 1", snap.Attempts[2])
	}
	// one cooldown only, no backoff
	total := time.Duration(0)
	for _, d := range *slept {
		total += d
	}
	if total != 20*time.Second {
		t.Fatalf("slept %s, want 20s", total)
	}
	if fs.lastState(t).Status != domain.StatusFailed {
		t.Fatal("failed state not persisted")
	}
}

func TestSvc_EmptyLocatorIsContractViolation(t *testing.T) {
	tr := &fakeTransport{respond: func(part, attempt int, _ domain.Payload) (manifest.Ref, error) {
		return manifest.Ref{Author: "alice"}, nil
	}}
	fs := newFakeStorage()
	svc, _ := newTestSvc(t, 1, tr, fs, &fakeObserver{})

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	snap := svc.Snapshot()
	if snap.Status != domain.StatusPaused {
		t.Fatalf("status = %s, want paused after retrying the bad responses", snap.Status)
	}
	if len(snap.Errors) == 0 || !strings.Contains(snap.Errors[0].Message, "without a locator") {
		t.Fatalf("errors = %+v", snap.Errors)
	}
}

func TestSvc_SecondInstanceDetected(t *testing.T) {
	fs := newFakeStorage()
	active := domain.NewState("")
	tr := &fakeTransport{respond: func(int, int, domain.Payload) (manifest.Ref, error) {
		return manifest.Ref{}, perr.Newf(perr.ErrorCodeTransportTransient, "unused")
	}}
	svc, _ := newTestSvc(t, 2, tr, fs, &fakeObserver{})

	active.SeriesID = svc.m.SeriesID
	active.Status = domain.StatusInProgress
	active.UpdatedAt = stepAt.Add(-10 * time.Second)
	if err := fs.SaveState(context.Background(), &active); err != nil {
		t.Fatalf("seed: %v", err)
	}

	err := svc.Start(context.Background())
	if !perr.IsCode(err, perr.ErrorCodeConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
}

func TestSvc_StaleActiveSnapshotIsTakenOver(t *testing.T) {
	fs := newFakeStorage()
	tr := &fakeTransport{respond: func(part, attempt int, _ domain.Payload) (manifest.Ref, error) {
		return manifest.Ref{Author: "alice", Locator: "ledger://alice/x"}, nil
	}}
	svc, _ := newTestSvc(t, 1, tr, fs, &fakeObserver{})

	stale := domain.NewState(svc.m.SeriesID)
	stale.Status = domain.StatusInProgress
	stale.UpdatedAt = stepAt.Add(-time.Hour)
	if err := fs.SaveState(context.Background(), &stale); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if svc.Snapshot().Status != domain.StatusCompleted {
		t.Fatalf("status = %s", svc.Snapshot().Status)
	}
}

func TestSvc_RestoreResumesAtPointer(t *testing.T) {
	tr := &fakeTransport{respond: func(part, attempt int, _ domain.Payload) (manifest.Ref, error) {
		return manifest.Ref{Author: "alice", Locator: "ledger://alice/" + string(rune('0'+part))}, nil
	}}
	fs := newFakeStorage()
	svc, _ := newTestSvc(t, 3, tr, fs, &fakeObserver{})

	persisted := domain.NewState(svc.m.SeriesID)
	persisted.Current = 2
	persisted.Status = domain.StatusPaused
	persisted.Paused = true
	persisted.Root = &manifest.Ref{Author: "alice", Locator: "ledger://alice/1"}
	if err := svc.Restore(&persisted); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if err := svc.Resume(context.Background()); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	if svc.Snapshot().Status != domain.StatusCompleted {
		t.Fatalf("status = %s", svc.Snapshot().Status)
	}
	// only parts 2 and 3 hit the transport
	if len(tr.calls) != 2 {
		t.Fatalf("publish calls = %d", len(tr.calls))
	}
	if got := partOf(tr.calls[0]); got != 2 {
		t.Fatalf("first resumed part = %d", got)
	}
	if tr.calls[0].ParentLocator != "ledger://alice/1" {
		t.Fatalf("resumed reply parent = %q", tr.calls[0].ParentLocator)
	}
}

func TestSvc_RestoreRejectsForeignState(t *testing.T) {
	fs := newFakeStorage()
	tr := &fakeTransport{respond: func(int, int, domain.Payload) (manifest.Ref, error) {
		return manifest.Ref{}, nil
	}}
	svc, _ := newTestSvc(t, 2, tr, fs, &fakeObserver{})

	other := domain.NewState("11111111-2222-4333-8444-555555555555")
	if err := svc.Restore(&other); !perr.IsCode(err, perr.ErrorCodeConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
	bad := domain.NewState(svc.m.SeriesID)
	bad.Current = 9
	if err := svc.Restore(&bad); !perr.IsCode(err, perr.ErrorCodeValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestSvc_CancelDuringCooldown(t *testing.T) {
	tr := &fakeTransport{respond: func(part, attempt int, _ domain.Payload) (manifest.Ref, error) {
		return manifest.Ref{Author: "alice", Locator: "ledger://alice/" + string(rune('0'+part))}, nil
	}}
	fs := newFakeStorage()
	obs := &fakeObserver{}
	svc, _ := newTestSvc(t, 3, tr, fs, obs)
	obs.hook = func(p domain.Progress) {
		if p.Phase == domain.PhaseCooldown {
			svc.Cancel()
		}
	}

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	snap := svc.Snapshot()
	if snap.Status != domain.StatusCancelled {
		t.Fatalf("status = %s", snap.Status)
	}
	if snap.Current != 2 {
		t.Fatalf("pointer = %d, want preserved at 2", snap.Current)
	}
	if len(tr.calls) != 1 {
		t.Fatalf("publish calls = %d", len(tr.calls))
	}
	if fs.lastState(t).Status != domain.StatusCancelled {
		t.Fatal("cancelled state not persisted")
	}
}

func TestSvc_ContextCancelStopsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tr := &fakeTransport{respond: func(part, attempt int, _ domain.Payload) (manifest.Ref, error) {
		cancel()
		return manifest.Ref{Author: "alice", Locator: "ledger://alice/1"}, nil
	}}
	fs := newFakeStorage()
	svc, _ := newTestSvc(t, 3, tr, fs, &fakeObserver{})

	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if svc.Snapshot().Status != domain.StatusCancelled {
		t.Fatalf("status = %s", svc.Snapshot().Status)
	}
}

func TestSvc_NewRejectsMismatchedParts(t *testing.T) {
	m := testManifest(t, 3)
	deps := Deps{Transport: &fakeTransport{}, Storage: newFakeStorage()}

	if _, err := New(testCfg(), deps, m, testParts(2)); !perr.IsCode(err, perr.ErrorCodeValidation) {
		t.Fatalf("err = %v, want validation", err)
	}

	parts := testParts(3)
	parts[1].Number = 5
	if _, err := New(testCfg(), deps, m, parts); !perr.IsCode(err, perr.ErrorCodeValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}
