package store

import (
	"context"

	"github.com/ipfs/go-cid"
	"golang.org/x/xerrors"
)

// Limiter admits payloads up to a fixed size. It holds no mutable state.
type Limiter struct {
	limit int
}

// NewLimiter admits payloads of at most limit bytes.
func NewLimiter(limit int) Limiter {
	return Limiter{limit: limit}
}

// Limit returns the largest admitted payload size.
func (l Limiter) Limit() int {
	return l.limit
}

// Check returns ErrCapacityExceeded when size is over the limit.
func (l Limiter) Check(size int) error {
	if size > l.limit {
		return xerrors.Errorf("payload of %d bytes, limit %d: %w", size, l.limit, ErrCapacityExceeded)
	}
	return nil
}

// LimitedStore checks every Put against a Limiter before writing.
type LimitedStore struct {
	Store
	limiter Limiter
}

var _ Store = (*LimitedStore)(nil)

// WithLimit wraps s so that payloads over limit bytes are rejected.
func WithLimit(s Store, limit int) *LimitedStore {
	return &LimitedStore{Store: s, limiter: NewLimiter(limit)}
}

// Limiter returns the admission limiter.
func (s *LimitedStore) Limiter() Limiter {
	return s.limiter
}

// Put implements Store.
func (s *LimitedStore) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	if err := s.limiter.Check(len(data)); err != nil {
		capacityRejections.Inc(ctx, 1)
		return cid.Undef, err
	}
	return s.Store.Put(ctx, data)
}
