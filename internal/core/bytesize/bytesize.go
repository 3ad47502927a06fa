// Package bytesize estimates the encoded size of content destined for a
// structured publish payload
package bytesize

// overheadNum/overheadDen apply a fixed ~3% allowance for the escaping and
// quoting added when content is embedded in a JSON payload. The allowance is
// deliberately uniform regardless of actual escape density; exact accounting
// would move chunk boundaries between releases
const (
	overheadNum = 103
	overheadDen = 100
)

// Estimate returns the expected encoded byte size of text: its UTF-8 length
// plus the structural overhead allowance, rounded up. Empty input yields 0
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	return WithOverhead(len(text))
}

// WithOverhead applies the overhead allowance to a raw UTF-8 byte count
// Exposed so incremental scanners can grow a byte count and re-apply the
// allowance in O(1) instead of re-encoding a prefix
func WithOverhead(rawBytes int) int {
	if rawBytes <= 0 {
		return 0
	}
	return (rawBytes*overheadNum + overheadDen - 1) / overheadDen
}
