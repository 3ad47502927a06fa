package service

import (
	"fmt"
	"strings"

	"seriate/internal/core/hashing"
	perr "seriate/internal/platform/errors"
	"seriate/internal/services/manifest"
	"seriate/internal/services/pipeline/domain"
)

// buildPayload assembles the publish request for one part: suffixed
// title, body with the compact marker appended, parent threading for
// replies, and the manifest snapshot as structured metadata
func (s *Svc) buildPayload(partNumber int) (domain.Payload, error) {
	if partNumber < 1 || partNumber > len(s.parts) {
		return domain.Payload{}, perr.InvalidArgf("pipeline: part %d out of range", partNumber)
	}
	part := s.parts[partNumber-1]

	marker, err := manifest.Marker(s.m, partNumber)
	if err != nil {
		return domain.Payload{}, err
	}

	p := domain.Payload{
		Author:      s.cfg.Author,
		Title:       fmt.Sprintf("%s (%d/%d)", s.m.Title, partNumber, s.m.TotalParts),
		Body:        hashing.AppendMarker(part.Content, marker),
		SuggestedID: suggestedID(s.m.SeriesID, partNumber),
		Manifest:    s.m.Clone(),
		Tags:        append([]string(nil), s.m.Tags...),
	}

	if partNumber >= 2 {
		root := rootRef(s.st, s.m)
		if root == nil {
			return domain.Payload{}, perr.Newf(perr.ErrorCodeTransportPermanent,
				"pipeline: part %d needs the root locator", partNumber)
		}
		p.ParentAuthor = root.Author
		p.ParentLocator = root.Locator
	}
	return p, nil
}

// suggestedID derives a short deterministic slug from the series id
func suggestedID(seriesID string, part int) string {
	head := strings.ReplaceAll(seriesID, "-", "")
	if len(head) > 8 {
		head = head[:8]
	}
	return fmt.Sprintf("seriate-%s-p%02d", head, part)
}
