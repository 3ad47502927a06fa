package hashing

import "strings"

// markerOpen starts the embedded manifest marker appended to every published
// body. The marker is added after the part's digests are computed, so it must
// be stripped before re-hashing content fetched back from the ledger
const markerOpen = "<!-- seriate:"

const markerClose = "-->"

// bodySeparator joins a part's content to its trailing marker
const bodySeparator = "\n\n"

// AppendMarker attaches a manifest marker to a part body
func AppendMarker(content, marker string) string {
	return content + bodySeparator + marker
}

// StripMarker removes a trailing embedded manifest marker, the separator
// that attached it, and any whitespace the publish target slipped in around
// it. Content without a marker is returned unchanged. The marker body may
// span multiple lines and carry leading indentation
func StripMarker(content string) string {
	idx := strings.LastIndex(content, markerOpen)
	if idx < 0 {
		return content
	}
	rest := content[idx:]
	closeAt := strings.Index(rest, markerClose)
	if closeAt < 0 {
		return content
	}
	// only a real trailing marker is stripped; a marker-looking string in
	// the middle of the document stays put
	if strings.TrimSpace(rest[closeAt+len(markerClose):]) != "" {
		return content
	}

	out := content[:idx]
	// drop indentation in front of the marker, then the separator we added
	out = strings.TrimRight(out, " \t")
	out = strings.TrimSuffix(out, bodySeparator)
	return out
}
