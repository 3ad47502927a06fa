package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	perr "seriate/internal/platform/errors"
)

// memKV is the in-process backend used for tests and dry runs
// Expiry is checked lazily on reads and reclaimed by Sweep
type memKV struct {
	mu      sync.RWMutex
	data    map[string]memEntry
	nowFunc func() time.Time
}

type memEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// NewMem returns an empty in-memory KV
func NewMem() KV {
	return &memKV{data: make(map[string]memEntry), nowFunc: time.Now}
}

func (m *memKV) expired(e memEntry, now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

func (m *memKV) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	e := memEntry{value: cp}
	if ttl > 0 {
		e.expiresAt = m.nowFunc().Add(ttl)
	}
	m.mu.Lock()
	m.data[key] = e
	m.mu.Unlock()
	return nil
}

func (m *memKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	e, ok := m.data[key]
	m.mu.RUnlock()
	if !ok || m.expired(e, m.nowFunc()) {
		return nil, perr.NotFoundf("key %q", key)
	}
	cp := make([]byte, len(e.value))
	copy(cp, e.value)
	return cp, nil
}

func (m *memKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

func (m *memKV) List(_ context.Context, prefix string) ([]Entry, error) {
	now := m.nowFunc()
	m.mu.RLock()
	out := make([]Entry, 0, 8)
	for k, e := range m.data {
		if !strings.HasPrefix(k, prefix) || m.expired(e, now) {
			continue
		}
		cp := make([]byte, len(e.value))
		copy(cp, e.value)
		out = append(out, Entry{Key: k, Value: cp})
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *memKV) Sweep(_ context.Context) error {
	now := m.nowFunc()
	m.mu.Lock()
	for k, e := range m.data {
		if m.expired(e, now) {
			delete(m.data, k)
		}
	}
	m.mu.Unlock()
	return nil
}

func (m *memKV) Close() error { return nil }
