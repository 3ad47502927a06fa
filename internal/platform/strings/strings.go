// Package strings provides small string helpers shared across the module
package strings

import std "strings"

// CSV splits a comma separated value into trimmed non-empty entries
func CSV(s string) []string {
	var out []string
	for _, v := range std.Split(s, ",") {
		if v = std.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// EmptyToNil returns empty string if s is all whitespace, otherwise returns s
func EmptyToNil(s string) string {
	if std.TrimSpace(s) == "" {
		return ""
	}
	return s
}
