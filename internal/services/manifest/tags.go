package manifest

import "strings"

// IdentityTag is attached to every published part so series membership can
// be discovered without scanning unrelated entries
const IdentityTag = "seriate-series"

// bucketPrefix plus the first hex character of a series id yields one of 16
// bucket tags, narrowing discovery queries further
const bucketPrefix = "seriate-b"

// TagDateUnknown marks a migrated manifest whose original creation date
// could not be parsed and was defaulted to the migration time
const TagDateUnknown = "seriate-date-unknown"

// BucketTag returns the bucket tag for a series identifier
func BucketTag(seriesID string) string {
	if seriesID == "" {
		return bucketPrefix + "0"
	}
	return bucketPrefix + strings.ToLower(seriesID[:1])
}

// Tags returns the full discovery tag set for a series: identity tag,
// bucket tag, then any extras, deduplicated in order
func Tags(seriesID string, extra ...string) []string {
	out := []string{IdentityTag, BucketTag(seriesID)}
	seen := map[string]struct{}{IdentityTag: {}, out[1]: {}}
	for _, t := range extra {
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
