package service

import (
	"context"
	"strings"
	"testing"

	"seriate/internal/core/hashing"
	perr "seriate/internal/platform/errors"
	"seriate/internal/services/manifest"
	verifydom "seriate/internal/services/verify/domain"
)

type fakeFetch struct {
	bodies map[string]string
	errs   map[string]error
	calls  []string
}

func (f *fakeFetch) FetchContent(_ context.Context, _, locator string) (string, error) {
	f.calls = append(f.calls, locator)
	if err, ok := f.errs[locator]; ok {
		return "", err
	}
	body, ok := f.bodies[locator]
	if !ok {
		return "", perr.NotFoundf("no entry at %s", locator)
	}
	return body, nil
}

// postedManifest builds a manifest whose first `posted` parts are marked
// posted with locators loc/1..loc/n
func postedManifest(t *testing.T, contents []string, posted int) *manifest.Manifest {
	t.Helper()
	perPart, full := hashing.SumSeries(contents)
	m, err := manifest.New(manifest.Params{
		Title:      "Verify Fixture",
		TotalParts: len(contents),
		FullHash:   full,
		PartHashes: perPart,
	})
	if err != nil {
		t.Fatalf("manifest.New: %v", err)
	}
	for i := 1; i <= posted; i++ {
		ref := manifest.Ref{Author: "alice", Locator: "loc/" + string(rune('0'+i))}
		if err := manifest.MarkPosted(m, i, ref); err != nil {
			t.Fatalf("MarkPosted %d: %v", i, err)
		}
	}
	return m
}

// ledgerBody is what a published part looks like on the wire
func ledgerBody(t *testing.T, m *manifest.Manifest, part int, content string) string {
	t.Helper()
	marker, err := manifest.Marker(m, part)
	if err != nil {
		t.Fatalf("Marker: %v", err)
	}
	return hashing.AppendMarker(content, marker)
}

func TestVerify_AllPostedAndIntact(t *testing.T) {
	contents := []string{"first part", "second part", "third part"}
	m := postedManifest(t, contents, 3)
	fetch := &fakeFetch{bodies: map[string]string{}}
	for i, c := range contents {
		fetch.bodies["loc/"+string(rune('1'+i))] = ledgerBody(t, m, i+1, c)
	}
	svc, err := New(fetch, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var seen []verifydom.PartCheck
	report, err := svc.Verify(context.Background(), m, func(c verifydom.PartCheck) { seen = append(seen, c) })
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !report.Complete() || len(report.Verified) != 3 {
		t.Fatalf("report = %+v", report)
	}
	if len(seen) != 3 {
		t.Fatalf("progress calls = %d", len(seen))
	}
}

func TestVerify_TamperedPartFails(t *testing.T) {
	contents := []string{"first part", "second part"}
	m := postedManifest(t, contents, 2)
	fetch := &fakeFetch{bodies: map[string]string{
		"loc/1": ledgerBody(t, m, 1, contents[0]),
		"loc/2": ledgerBody(t, m, 2, "tampered content"),
	}}
	svc, _ := New(fetch, nil)

	report, err := svc.Verify(context.Background(), m, nil)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if report.Clean() {
		t.Fatal("tampered part passed")
	}
	if len(report.Verified) != 1 || report.Verified[0] != 1 {
		t.Fatalf("verified = %v", report.Verified)
	}
	if len(report.Failed) != 1 || report.Failed[0] != 2 {
		t.Fatalf("failed = %v", report.Failed)
	}
	if !strings.Contains(report.Checks[1].Reason, "digest mismatch") {
		t.Fatalf("reason = %q", report.Checks[1].Reason)
	}
}

func TestVerify_ShortLegacyDigestMismatch(t *testing.T) {
	// early clients stored truncated primary digests; a mismatch against one
	// must still report cleanly
	m, err := manifest.New(manifest.Params{
		Title:      "Verify Fixture",
		TotalParts: 1,
		FullHash:   hashing.Triple{SHA256: "aa11"},
		PartHashes: []hashing.Triple{{SHA256: "bb22"}},
	})
	if err != nil {
		t.Fatalf("manifest.New: %v", err)
	}
	if err := manifest.MarkPosted(m, 1, manifest.Ref{Author: "alice", Locator: "loc/1"}); err != nil {
		t.Fatalf("MarkPosted: %v", err)
	}
	fetch := &fakeFetch{bodies: map[string]string{
		"loc/1": ledgerBody(t, m, 1, "first part"),
	}}
	svc, _ := New(fetch, nil)

	report, err := svc.Verify(context.Background(), m, nil)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(report.Failed) != 1 {
		t.Fatalf("failed = %v", report.Failed)
	}
	if !strings.Contains(report.Checks[0].Reason, "want bb22") {
		t.Fatalf("reason = %q", report.Checks[0].Reason)
	}
}

func TestVerify_AbsentAndUnreachable(t *testing.T) {
	contents := []string{"first part", "second part", "third part"}
	m := postedManifest(t, contents, 3)
	fetch := &fakeFetch{
		bodies: map[string]string{"loc/1": ledgerBody(t, m, 1, contents[0])},
		errs:   map[string]error{"loc/3": perr.Newf(perr.ErrorCodeTransportTransient, "timeout")},
	}
	svc, _ := New(fetch, nil)

	report, err := svc.Verify(context.Background(), m, nil)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(report.Failed) != 2 {
		t.Fatalf("failed = %v", report.Failed)
	}
	if report.Checks[1].Reason != "absent from ledger" {
		t.Fatalf("part 2 reason = %q", report.Checks[1].Reason)
	}
	if !strings.Contains(report.Checks[2].Reason, "unreachable") {
		t.Fatalf("part 3 reason = %q", report.Checks[2].Reason)
	}
	// one bad part does not stop the walk
	if len(fetch.calls) != 3 {
		t.Fatalf("fetch calls = %v", fetch.calls)
	}
}

func TestVerify_UnpostedPartsAreMissing(t *testing.T) {
	contents := []string{"first part", "second part", "third part"}
	m := postedManifest(t, contents, 1)
	fetch := &fakeFetch{bodies: map[string]string{
		"loc/1": ledgerBody(t, m, 1, contents[0]),
	}}
	svc, _ := New(fetch, nil)

	report, err := svc.Verify(context.Background(), m, nil)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if report.Complete() {
		t.Fatal("incomplete series reported complete")
	}
	if !report.Clean() {
		t.Fatalf("missing parts are not failures: %+v", report)
	}
	if len(report.Missing) != 2 || report.Missing[0] != 2 || report.Missing[1] != 3 {
		t.Fatalf("missing = %v", report.Missing)
	}
	// missing parts are never fetched
	if len(fetch.calls) != 1 {
		t.Fatalf("fetch calls = %v", fetch.calls)
	}
}

func TestVerify_CancelledContext(t *testing.T) {
	m := postedManifest(t, []string{"first part"}, 0)
	svc, _ := New(&fakeFetch{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Verify(ctx, m, nil)
	if !perr.IsCode(err, perr.ErrorCodeCancelled) {
		t.Fatalf("err = %v, want cancelled", err)
	}
}
