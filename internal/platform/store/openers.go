package store

import "path/filepath"

// openTiers builds the two physical backends from cfg
// WithTiers short-circuits this (both already set)
func openTiers(cfg Config, s *Store) (KV, KV, error) {
	if s.fast != nil && s.bulk != nil {
		return s.fast, s.bulk, nil
	}
	if cfg.InMemory {
		return NewMem(), NewMem(), nil
	}

	fast, err := openBadger(badgerOptions{
		dir:        filepath.Join(cfg.Dir, "fast"),
		syncWrites: false,
		log:        s.Log,
	})
	if err != nil {
		return nil, nil, err
	}
	bulk, err := openBadger(badgerOptions{
		dir:        filepath.Join(cfg.Dir, "bulk"),
		syncWrites: true,
		log:        s.Log,
	})
	if err != nil {
		_ = fast.Close()
		return nil, nil, err
	}
	return fast, bulk, nil
}
