package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	perr "seriate/internal/platform/errors"
	"seriate/internal/platform/logger"

	badger "github.com/dgraph-io/badger/v4"
)

// badgerKV backs a tier with an embedded badger database
// TTLs are delegated to badger's native entry expiry; Sweep runs value log
// garbage collection so deleted and expired payloads give disk space back
type badgerKV struct {
	db  *badger.DB
	log logger.Logger
}

type badgerOptions struct {
	dir        string
	syncWrites bool
	log        logger.Logger
}

// gcDiscardRatio reclaims a value log file once half of it is garbage
const gcDiscardRatio = 0.5

func openBadger(o badgerOptions) (KV, error) {
	opts := badger.DefaultOptions(o.dir).
		WithSyncWrites(o.syncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(badgerLogAdapter{o.log})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeStorage, "badger open %q", o.dir)
	}
	return &badgerKV{db: db, log: o.log}, nil
}

func (b *badgerKV) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	return b.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

func (b *badgerKV) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, perr.NotFoundf("key %q", key)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *badgerKV) Delete(_ context.Context, key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (b *badgerKV) List(_ context.Context, prefix string) ([]Entry, error) {
	var out []Entry
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			item := it.Item()
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out = append(out, Entry{Key: string(item.KeyCopy(nil)), Value: v})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Sweep runs value log GC until badger reports nothing left to collect
func (b *badgerKV) Sweep(_ context.Context) error {
	for {
		err := b.db.RunValueLogGC(gcDiscardRatio)
		if errors.Is(err, badger.ErrNoRewrite) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (b *badgerKV) Close() error { return b.db.Close() }

// badgerLogAdapter funnels badger's chatty internal logging into zerolog at
// debug level so it stays out of normal output
type badgerLogAdapter struct{ log logger.Logger }

func (a badgerLogAdapter) Errorf(f string, args ...any)   { a.log.Error().Msg(trimNL(f, args...)) }
func (a badgerLogAdapter) Warningf(f string, args ...any) { a.log.Warn().Msg(trimNL(f, args...)) }
func (a badgerLogAdapter) Infof(f string, args ...any)    { a.log.Debug().Msg(trimNL(f, args...)) }
func (a badgerLogAdapter) Debugf(f string, args ...any)   { a.log.Debug().Msg(trimNL(f, args...)) }

func trimNL(f string, args ...any) string {
	s := fmt.Sprintf(f, args...)
	for len(s) > 0 && s[len(s)-1] == '\n' {
		s = s[:len(s)-1]
	}
	return s
}
