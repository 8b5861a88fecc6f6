package cache

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Memo remembers computed values per (kind, dataset version, filter key).
// Concurrent callers asking for the same key share one computation.
type Memo struct {
	cache *Cache
	group singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

// NewMemo creates a memoizer whose entries live for ttl
func NewMemo(ttl time.Duration) *Memo {
	return &Memo{cache: NewCache(ttl)}
}

// MemoStats reports memo effectiveness
type MemoStats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int   `json:"entries"`
}

// Stats returns hit and miss counters
func (m *Memo) Stats() MemoStats {
	return MemoStats{
		Hits:    m.hits.Load(),
		Misses:  m.misses.Load(),
		Entries: m.cache.Size(),
	}
}

// Invalidate drops every remembered value
func (m *Memo) Invalidate() {
	m.cache.Clear()
}

// Close stops the underlying cache
func (m *Memo) Close() {
	m.cache.Close()
}

func (m *Memo) key(kind, version, filterKey string) string {
	return m.cache.generateKey(kind + "|" + version + "|" + filterKey)
}

// Remember returns the value stored for the key, computing it with fn on a
// miss. The boolean reports whether the value came from the memo.
func Remember[T any](m *Memo, kind, version, filterKey string, fn func() (T, error)) (T, bool, error) {
	var zero T
	key := m.key(kind, version, filterKey)

	if data, ok := m.cache.Get(key); ok {
		var v T
		if err := json.Unmarshal(data, &v); err == nil {
			m.hits.Add(1)
			return v, true, nil
		}
		m.cache.Delete(key)
	}

	data, err, _ := m.group.Do(key, func() (interface{}, error) {
		m.misses.Add(1)
		v, err := fn()
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", kind, err)
		}
		m.cache.Set(key, data)
		return data, nil
	})
	if err != nil {
		return zero, false, err
	}

	var v T
	if err := json.Unmarshal(data.([]byte), &v); err != nil {
		return zero, false, fmt.Errorf("failed to decode %s: %w", kind, err)
	}
	return v, false, nil
}
