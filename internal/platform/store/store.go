// Package store provides a unified two-tier key/value persistence facade
//
// Payloads below the fast threshold land in the fast tier (low latency,
// relaxed sync); everything else lands in the bulk tier (fully durable).
// Callers see one capability and never learn which physical tier holds a key
package store

import (
	"context"
	"errors"
	"time"

	perr "seriate/internal/platform/errors"
	"seriate/internal/platform/logger"
)

// Entry is one key/value pair returned by List
type Entry struct {
	Key   string
	Value []byte
}

// KV is the seam a physical backend implements
// Get returns perr.ErrorCodeNotFound when the key is absent or expired
type KV interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]Entry, error)
	Sweep(ctx context.Context) error
	Close() error
}

// Store is the facade over the two tiers
// zero value is not usable; construct via Open
type Store struct {
	// Log is the logger used by subclients
	Log logger.Logger

	fast KV
	bulk KV

	// threshold in bytes above which a payload goes to the bulk tier
	threshold int

	sweepStop chan struct{}
}

// Open constructs a Store with the configured backends
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	s := &Store{}
	for _, o := range opts {
		if err := o(s); err != nil {
			return nil, err
		}
	}

	// defaults for zero logger to avoid nil checks
	s.Log = s.Log.With().Logger()

	if cfg.FastThreshold <= 0 {
		cfg.FastThreshold = defaultFastThreshold
	}
	s.threshold = cfg.FastThreshold

	fast, bulk, err := openTiers(cfg, s)
	if err != nil {
		return nil, err
	}
	s.fast, s.bulk = fast, bulk

	if cfg.SweepInterval > 0 {
		s.sweepStop = make(chan struct{})
		go s.sweepLoop(cfg.SweepInterval)
	}
	return s, nil
}

// tierFor picks the tier for a payload of n bytes
func (s *Store) tierFor(n int) KV {
	if n < s.threshold {
		return s.fast
	}
	return s.bulk
}

// Put writes value under key with an optional ttl (0 means no expiry)
// The previous copy in the other tier, if any, is removed so a key never
// resolves to a stale payload
func (s *Store) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	dst := s.tierFor(len(value))
	other := s.bulk
	if dst == s.bulk {
		other = s.fast
	}
	if err := dst.Put(ctx, key, value, ttl); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeStorage, "store put %q", key)
	}
	if err := other.Delete(ctx, key); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeStorage, "store put evict %q", key)
	}
	return nil
}

// Get reads a key from whichever tier holds it
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.fast.Get(ctx, key)
	if err == nil {
		return v, nil
	}
	if !perr.IsCode(err, perr.ErrorCodeNotFound) {
		return nil, perr.Wrapf(err, perr.ErrorCodeStorage, "store get %q", key)
	}
	v, err = s.bulk.Get(ctx, key)
	if err == nil {
		return v, nil
	}
	if perr.IsCode(err, perr.ErrorCodeNotFound) {
		return nil, err
	}
	return nil, perr.Wrapf(err, perr.ErrorCodeStorage, "store get %q", key)
}

// Delete removes a key from both tiers; absent keys are not an error
func (s *Store) Delete(ctx context.Context, key string) error {
	var errs []error
	if err := s.fast.Delete(ctx, key); err != nil {
		errs = append(errs, err)
	}
	if err := s.bulk.Delete(ctx, key); err != nil {
		errs = append(errs, err)
	}
	return perr.WrapIf(errors.Join(errs...), perr.ErrorCodeStorage, "store delete")
}

// List returns entries from both tiers whose keys start with prefix
// A key present in both tiers (mid-migration) resolves to the fast copy
func (s *Store) List(ctx context.Context, prefix string) ([]Entry, error) {
	fastEntries, err := s.fast.List(ctx, prefix)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeStorage, "store list %q", prefix)
	}
	bulkEntries, err := s.bulk.List(ctx, prefix)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeStorage, "store list %q", prefix)
	}
	seen := make(map[string]struct{}, len(fastEntries))
	out := make([]Entry, 0, len(fastEntries)+len(bulkEntries))
	for _, e := range fastEntries {
		seen[e.Key] = struct{}{}
		out = append(out, e)
	}
	for _, e := range bulkEntries {
		if _, dup := seen[e.Key]; !dup {
			out = append(out, e)
		}
	}
	return out, nil
}

// Sweep drops expired entries and reclaims space in both tiers
func (s *Store) Sweep(ctx context.Context) error {
	var errs []error
	if err := s.fast.Sweep(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.bulk.Sweep(ctx); err != nil {
		errs = append(errs, err)
	}
	return perr.WrapIf(errors.Join(errs...), perr.ErrorCodeStorage, "store sweep")
}

func (s *Store) sweepLoop(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-s.sweepStop:
			return
		case <-t.C:
			if err := s.Sweep(context.Background()); err != nil {
				s.Log.Warn().Err(err).Msg("store sweep failed")
			}
		}
	}
}

// Close closes both tiers gracefully
func (s *Store) Close(ctx context.Context) error {
	if s.sweepStop != nil {
		close(s.sweepStop)
		s.sweepStop = nil
	}
	var errs []error
	if s.fast != nil {
		if e := s.fast.Close(); e != nil {
			errs = append(errs, e)
		}
	}
	if s.bulk != nil {
		if e := s.bulk.Close(); e != nil {
			errs = append(errs, e)
		}
	}
	return errors.Join(errs...)
}
