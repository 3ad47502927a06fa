package store

import "time"

// defaultFastThreshold is the payload size at which writes move from the
// fast tier to the bulk tier
const defaultFastThreshold = 4096

// Config aggregates tier configuration
type Config struct {
	// Dir is the on-disk root; two subdirectories (fast, bulk) are created
	// under it. Ignored when InMemory is set
	Dir string

	// InMemory backs both tiers with the in-process map backend (tests,
	// dry runs). Nothing survives the process
	InMemory bool

	// FastThreshold is the payload size in bytes at which writes go to the
	// bulk tier instead of the fast tier; 0 means the default
	FastThreshold int

	// SweepInterval is how often expired entries are reclaimed in the
	// background; 0 disables the background sweeper
	SweepInterval time.Duration
}
