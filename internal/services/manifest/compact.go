package manifest

import (
	"encoding/json"
	"fmt"
	"strings"

	perr "seriate/internal/platform/errors"
)

// compactCeiling bounds the compact encoding in both directions so an
// oversized manifest can never break the embedding target, and a hostile
// marker can never balloon a decode
const compactCeiling = 16 * 1024

// Compact is the minimal manifest encoding embedded inline in every
// published part
type Compact struct {
	SeriesID    string `json:"sid"`
	Version     int    `json:"v"`
	TotalParts  int    `json:"total"`
	CurrentPart int    `json:"part"`
	FullSHA256  string `json:"full_sha256"`
	SourceURL   string `json:"src,omitempty"`
}

// EncodeCompact produces the inline encoding for one part of a series
func EncodeCompact(m *Manifest, currentPart int) (string, error) {
	if currentPart < 1 || currentPart > m.TotalParts {
		return "", perr.InvalidArgf("current part %d outside series of %d", currentPart, m.TotalParts)
	}
	c := Compact{
		SeriesID:    m.SeriesID,
		Version:     m.SchemaVersion,
		TotalParts:  m.TotalParts,
		CurrentPart: currentPart,
		FullSHA256:  m.FullHash.SHA256,
		SourceURL:   m.SourceURL,
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return "", perr.Wrap(err, perr.ErrorCodeJSON, "compact encode")
	}
	if len(raw) > compactCeiling {
		return "", perr.Exhaustedf("compact encoding %d bytes exceeds %d byte ceiling", len(raw), compactCeiling)
	}
	return string(raw), nil
}

// DecodeCompact is the inverse of EncodeCompact
// The size ceiling is enforced before any parsing happens
func DecodeCompact(s string) (*Compact, error) {
	if len(s) > compactCeiling {
		return nil, perr.Exhaustedf("compact encoding %d bytes exceeds %d byte ceiling", len(s), compactCeiling)
	}
	var c Compact
	if err := json.Unmarshal([]byte(s), &c); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeJSON, "compact decode")
	}
	if _, err := parseSeriesID(c.SeriesID); err != nil {
		return nil, err
	}
	if c.TotalParts < MinParts || c.TotalParts > MaxParts {
		return nil, perr.Validationf("compact total %d outside [%d,%d]", c.TotalParts, MinParts, MaxParts)
	}
	if c.CurrentPart < 1 || c.CurrentPart > c.TotalParts {
		return nil, perr.Validationf("compact part %d outside series of %d", c.CurrentPart, c.TotalParts)
	}
	return &c, nil
}

// Marker wraps the compact encoding of one part in the comment grammar that
// rides at the end of a published body
func Marker(m *Manifest, currentPart int) (string, error) {
	enc, err := EncodeCompact(m, currentPart)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("<!-- seriate:v%d %s -->", m.SchemaVersion, enc), nil
}

// ExtractCompact pulls the compact manifest back out of a fetched body, if
// one is embedded
func ExtractCompact(body string) (*Compact, error) {
	idx := strings.LastIndex(body, "<!-- seriate:")
	if idx < 0 {
		return nil, perr.NotFoundf("no embedded manifest marker")
	}
	rest := body[idx:]
	closeAt := strings.LastIndex(rest, "-->")
	if closeAt < 0 {
		return nil, perr.Validationf("unterminated manifest marker")
	}
	inner := rest[:closeAt]
	brace := strings.Index(inner, "{")
	if brace < 0 {
		return nil, perr.Validationf("manifest marker carries no payload")
	}
	return DecodeCompact(strings.TrimSpace(inner[brace:]))
}
