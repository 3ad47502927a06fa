// Package service checks a series' posted parts against its manifest
package service

import (
	"context"
	"fmt"
	"strings"

	"seriate/internal/core/hashing"
	perr "seriate/internal/platform/errors"
	"seriate/internal/platform/logger"
	"seriate/internal/services/manifest"
	verifydom "seriate/internal/services/verify/domain"
)

// Svc verifies published parts by fetching them back and re-hashing
type Svc struct {
	fetch verifydom.FetchPort
	log   *logger.Logger
}

// New builds a verifier
func New(fetch verifydom.FetchPort, log *logger.Logger) (*Svc, error) {
	if fetch == nil {
		return nil, perr.InvalidArgf("verify: fetch port is required")
	}
	if log == nil {
		log = logger.Named("verify")
	}
	return &Svc{fetch: fetch, log: log}, nil
}

// Verify walks every part record in the manifest. Posted parts are
// fetched, stripped of their marker and compared against the recorded
// digests; anything not posted is reported missing. The walk keeps going
// past failures so one bad part never hides the rest
func (s *Svc) Verify(ctx context.Context, m *manifest.Manifest, progress verifydom.ProgressFunc) (verifydom.Report, error) {
	if m == nil {
		return verifydom.Report{}, perr.InvalidArgf("verify: manifest is required")
	}
	if err := manifest.Validate(m); err != nil {
		return verifydom.Report{}, err
	}

	report := verifydom.Report{SeriesID: m.SeriesID}
	for i, rec := range m.Parts {
		if err := ctx.Err(); err != nil {
			return report, perr.Cancelledf("verify: cancelled at part %d", rec.Number)
		}
		check := s.checkPart(ctx, m, i)
		report.Checks = append(report.Checks, check)
		switch check.Outcome {
		case verifydom.OutcomeVerified:
			report.Verified = append(report.Verified, check.Part)
		case verifydom.OutcomeFailed:
			report.Failed = append(report.Failed, check.Part)
		default:
			report.Missing = append(report.Missing, check.Part)
		}
		if progress != nil {
			progress(check)
		}
	}

	s.log.Info().
		Str("series", m.SeriesID).
		Int("verified", len(report.Verified)).
		Int("failed", len(report.Failed)).
		Int("missing", len(report.Missing)).
		Msg("series verified")
	return report, nil
}

func (s *Svc) checkPart(ctx context.Context, m *manifest.Manifest, idx int) verifydom.PartCheck {
	rec := m.Parts[idx]
	check := verifydom.PartCheck{Part: rec.Number}

	if rec.Status != manifest.StatusPosted {
		check.Outcome = verifydom.OutcomeMissing
		return check
	}

	body, err := s.fetch.FetchContent(ctx, rec.Author, rec.Locator)
	if err != nil {
		check.Outcome = verifydom.OutcomeFailed
		if perr.IsCode(err, perr.ErrorCodeNotFound) {
			check.Reason = "absent from ledger"
		} else {
			check.Reason = "unreachable: " + err.Error()
		}
		return check
	}

	content := hashing.StripMarker(body)
	expected := m.PartHashes[idx].Triple
	got := hashing.Sum(content)
	if !strings.EqualFold(got.SHA256, expected.SHA256) {
		check.Outcome = verifydom.OutcomeFailed
		check.Reason = fmt.Sprintf("digest mismatch: got %s want %s", digestPrefix(got.SHA256), digestPrefix(expected.SHA256))
		return check
	}

	check.Outcome = verifydom.OutcomeVerified
	return check
}

// digestPrefix shortens a digest for the mismatch message; stored
// digests are only required to be non-empty, not full length
func digestPrefix(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
