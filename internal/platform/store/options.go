package store

import (
	"seriate/internal/platform/logger"
)

// Option mutates Store during Open
type Option func(*Store) error

// WithLogger sets the logger used by subclients
func WithLogger(log logger.Logger) Option {
	return func(s *Store) error {
		s.Log = log
		return nil
	}
}

// WithTiers injects explicit tier backends, bypassing Config-driven opening
// Intended for tests and embedders that manage backend lifecycle themselves
func WithTiers(fast, bulk KV) Option {
	return func(s *Store) error {
		s.fast = fast
		s.bulk = bulk
		return nil
	}
}
