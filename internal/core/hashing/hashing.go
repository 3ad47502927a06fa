// Package hashing computes the triple digest set used to fingerprint parts
// and whole series
//
// SHA-256 is the primary digest and the only one integrity decisions rely
// on. BLAKE3 is the secondary. MD5 is legacy-only, kept so manifests written
// by old clients still verify; it never drives a decision on its own
package hashing

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"
)

// Triple is one immutable digest set
type Triple struct {
	SHA256 string `json:"sha256"`
	BLAKE3 string `json:"blake3,omitempty"`
	MD5    string `json:"md5,omitempty"`
}

// legacy reports whether only the primary digest is present (old manifests)
func (t Triple) legacy() bool { return t.BLAKE3 == "" && t.MD5 == "" }

// Sum computes all three digests of text
func Sum(text string) Triple {
	data := []byte(text)
	s := sha256.Sum256(data)
	b := blake3.Sum256(data)
	m := md5.Sum(data)
	return Triple{
		SHA256: hex.EncodeToString(s[:]),
		BLAKE3: hex.EncodeToString(b[:]),
		MD5:    hex.EncodeToString(m[:]),
	}
}

// SumSeries computes per-part digests and the digest of the whole document
// The full digest covers the separator-less concatenation in part order
func SumSeries(parts []string) (perPart []Triple, full Triple) {
	perPart = make([]Triple, len(parts))
	var whole strings.Builder
	for i, p := range parts {
		perPart[i] = Sum(p)
		whole.WriteString(p)
	}
	return perPart, Sum(whole.String())
}

// Expected is the digest set a verification compares against
// Legacy-shaped entries (primary only) are compared on the primary alone
type Expected struct {
	PerPart []Triple
	Full    Triple
}

// PartResult is the verification outcome for one part
type PartResult struct {
	Number int
	Match  bool
}

// Report is the outcome of verifying a candidate part set
type Report struct {
	Valid     bool
	PerPart   []PartResult
	FullMatch bool
}

// Verify recomputes digests over parts and compares them to expected
// A part (or the full digest) matches when every digest present in the
// expected entry matches; legacy entries supply only the primary
func Verify(parts []string, expected Expected) Report {
	got, gotFull := SumSeries(parts)

	r := Report{PerPart: make([]PartResult, len(parts)), Valid: true}
	for i := range parts {
		match := false
		if i < len(expected.PerPart) {
			match = tripleMatches(got[i], expected.PerPart[i])
		}
		r.PerPart[i] = PartResult{Number: i + 1, Match: match}
		if !match {
			r.Valid = false
		}
	}
	if len(expected.PerPart) != len(parts) {
		r.Valid = false
	}
	r.FullMatch = tripleMatches(gotFull, expected.Full)
	if !r.FullMatch {
		r.Valid = false
	}
	return r
}

// VerifyOne compares a single recomputed digest set against an expected one
func VerifyOne(text string, expected Triple) bool {
	return tripleMatches(Sum(text), expected)
}

func tripleMatches(got, want Triple) bool {
	if want.SHA256 == "" || !strings.EqualFold(got.SHA256, want.SHA256) {
		return false
	}
	if want.legacy() {
		return true
	}
	if want.BLAKE3 != "" && !strings.EqualFold(got.BLAKE3, want.BLAKE3) {
		return false
	}
	if want.MD5 != "" && !strings.EqualFold(got.MD5, want.MD5) {
		return false
	}
	return true
}
