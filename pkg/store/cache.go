package store

import (
	"context"

	lru "github.com/hashicorp/golang-lru"
	"github.com/ipfs/go-cid"
	"golang.org/x/xerrors"
)

// CachedStore keeps recently used payloads in memory. An id always names the
// same bytes, so entries are never invalidated.
type CachedStore struct {
	Store
	cache *lru.ARCCache
}

var _ Store = (*CachedStore)(nil)

// NewCachedStore caches up to size payloads of s.
func NewCachedStore(s Store, size int) (*CachedStore, error) {
	cache, err := lru.NewARC(size)
	if err != nil {
		return nil, xerrors.Errorf("create payload cache: %w", err)
	}
	return &CachedStore{Store: s, cache: cache}, nil
}

// Put implements Store.
func (s *CachedStore) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	c, err := s.Store.Put(ctx, data)
	if err != nil {
		return cid.Undef, err
	}
	s.cache.Add(c, append([]byte(nil), data...))
	return c, nil
}

// Get implements Store.
func (s *CachedStore) Get(ctx context.Context, c cid.Cid) ([]byte, error) {
	if v, ok := s.cache.Get(c); ok {
		return append([]byte(nil), v.([]byte)...), nil
	}
	data, err := s.Store.Get(ctx, c)
	if err != nil {
		return nil, err
	}
	s.cache.Add(c, append([]byte(nil), data...))
	return data, nil
}
