package store

import (
	"context"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	"github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
	"golang.org/x/xerrors"
)

// BlockStore keeps payloads as blocks in an ipfs blockstore.
type BlockStore struct {
	bs blockstore.Blockstore
}

var _ Store = (*BlockStore)(nil)

// NewBlockStore wraps bs.
func NewBlockStore(bs blockstore.Blockstore) *BlockStore {
	return &BlockStore{bs: bs}
}

// NewDatastoreStore keeps blocks under the /blocks namespace of ds. With
// hashOnRead every Get rehashes the block and fails on a mismatch.
func NewDatastoreStore(ds datastore.Batching, hashOnRead bool) *BlockStore {
	bs := blockstore.NewBlockstore(ds)
	bs.HashOnRead(hashOnRead)
	return NewBlockStore(bs)
}

// NewMemoryStore returns an empty store held in memory.
func NewMemoryStore() *BlockStore {
	return NewDatastoreStore(dssync.MutexWrap(datastore.NewMapDatastore()), false)
}

// Blockstore returns the underlying blockstore.
func (s *BlockStore) Blockstore() blockstore.Blockstore {
	return s.bs
}

// Put implements Store.
func (s *BlockStore) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	c, err := Sum(data)
	if err != nil {
		return cid.Undef, xerrors.Errorf("hash payload: %w", err)
	}
	blk, err := blocks.NewBlockWithCid(data, c)
	if err != nil {
		return cid.Undef, err
	}
	if err := s.bs.Put(ctx, blk); err != nil {
		return cid.Undef, xerrors.Errorf("put block %s: %v: %w", c, err, ErrBackendUnavailable)
	}
	putCount.Inc(ctx, 1)
	putBytes.Add(ctx, int64(len(data)))
	return c, nil
}

// Get implements Store.
func (s *BlockStore) Get(ctx context.Context, c cid.Cid) ([]byte, error) {
	blk, err := s.bs.Get(ctx, c)
	switch {
	case err == nil:
		return blk.RawData(), nil
	case xerrors.Is(err, blockstore.ErrNotFound):
		return nil, xerrors.Errorf("get %s: %w", c, ErrNotFound)
	case xerrors.Is(err, blockstore.ErrHashMismatch):
		return nil, xerrors.Errorf("get %s: %w", c, err)
	default:
		return nil, xerrors.Errorf("get block %s: %v: %w", c, err, ErrBackendUnavailable)
	}
}
