package offline

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryStore keeps buckets in process memory. Entries never expire; a
// generation only goes away when its bucket is deleted.
type MemoryStore struct {
	mu      sync.Mutex
	buckets *cache.Cache
	seq     int64
}

type memoryBucket struct {
	name    string
	created int64
	entries *cache.Cache
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: cache.New(cache.NoExpiration, 0),
	}
}

// Open returns the named bucket, creating it if needed.
func (s *MemoryStore) Open(_ context.Context, name string) (Bucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, found := s.buckets.Get(name); found {
		return b.(*memoryBucket), nil
	}

	s.seq++
	b := &memoryBucket{
		name:    name,
		created: s.seq,
		entries: cache.New(cache.NoExpiration, 0),
	}
	s.buckets.Set(name, b, cache.NoExpiration)
	return b, nil
}

// Keys lists bucket names in creation order.
func (s *MemoryStore) Keys(_ context.Context) ([]string, error) {
	items := s.buckets.Items()

	buckets := make([]*memoryBucket, 0, len(items))
	for _, item := range items {
		buckets = append(buckets, item.Object.(*memoryBucket))
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].created < buckets[j].created })

	names := make([]string, len(buckets))
	for i, b := range buckets {
		names[i] = b.name
	}
	return names, nil
}

// Delete removes a bucket and reports whether it existed.
func (s *MemoryStore) Delete(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.buckets.Get(name); !found {
		return false, nil
	}
	s.buckets.Delete(name)
	return true, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

func (b *memoryBucket) Name() string {
	return b.name
}

func (b *memoryBucket) Match(_ context.Context, key string) (*CachedResponse, error) {
	v, found := b.entries.Get(key)
	if !found {
		return nil, ErrNotCached
	}
	return v.(*CachedResponse), nil
}

func (b *memoryBucket) Put(_ context.Context, key string, resp *CachedResponse) error {
	if resp.StoredAt.IsZero() {
		resp.StoredAt = time.Now()
	}
	b.entries.Set(key, resp, cache.NoExpiration)
	return nil
}
