package hashing

import "testing"

func TestStripMarker_RoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"plain", "body text here"},
		{"trailing newline", "body text\n"},
		{"trailing spaces", "body text   "},
		{"multiline body", "line one\n\nline two\nline three"},
	}
	marker := `<!-- seriate:v2 {"series_id":"ab","total_parts":3} -->`
	for _, c := range cases {
		published := AppendMarker(c.content, marker)
		if got := StripMarker(published); got != c.content {
			t.Fatalf("%s: strip round trip = %q, want %q", c.name, got, c.content)
		}
	}
}

func TestStripMarker_HashRoundTrip(t *testing.T) {
	content := "the original part content\nwith lines\n"
	tr := Sum(content)
	published := AppendMarker(content, `<!-- seriate:v2 {"series_id":"x"} -->`)
	if VerifyOne(published, tr) {
		t.Fatalf("published body should not hash-match raw content")
	}
	if !VerifyOne(StripMarker(published), tr) {
		t.Fatalf("stripped body should hash-match raw content")
	}
}

func TestStripMarker_MultilineJSONAndIndent(t *testing.T) {
	content := "body"
	published := content + "\n\n   <!-- seriate:v2 {\n  \"series_id\": \"ab\",\n  \"part\": 2\n} -->\n  "
	if got := StripMarker(published); got != content {
		t.Fatalf("multiline marker strip = %q, want %q", got, content)
	}
}

func TestStripMarker_NoMarker(t *testing.T) {
	content := "nothing to see"
	if got := StripMarker(content); got != content {
		t.Fatalf("content without marker changed: %q", got)
	}
}

func TestStripMarker_MarkerMidDocumentStays(t *testing.T) {
	content := "quoted example: <!-- seriate:v2 {} --> and more prose after it"
	if got := StripMarker(content); got != content {
		t.Fatalf("mid-document marker was stripped: %q", got)
	}
}

func TestStripMarker_PreservesContentTrailingWhitespace(t *testing.T) {
	content := "ends with spaces   \n"
	published := AppendMarker(content, "<!-- seriate:v2 {} -->")
	if got := StripMarker(published); got != content {
		t.Fatalf("content whitespace lost: %q vs %q", got, content)
	}
}
