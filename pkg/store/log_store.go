package store

import (
	"context"

	"github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
)

// LogStore logs every operation passing through it.
type LogStore struct {
	logger *logging.ZapEventLogger
	s      Store
}

var _ Store = (*LogStore)(nil)

// NewLogStore logs operations on s to the named logger.
func NewLogStore(s Store, name string) *LogStore {
	return &LogStore{logger: logging.Logger(name), s: s}
}

// Put implements Store.
func (l *LogStore) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	c, err := l.s.Put(ctx, data)
	l.log("put", c, len(data), err)
	return c, err
}

// Get implements Store.
func (l *LogStore) Get(ctx context.Context, c cid.Cid) ([]byte, error) {
	data, err := l.s.Get(ctx, c)
	l.log("get", c, len(data), err)
	return data, err
}

func (l *LogStore) log(op string, c cid.Cid, size int, err error) {
	if err != nil {
		l.logger.Warnw(op, "cid", c, "size", size, "err", err)
		return
	}
	l.logger.Infow(op, "cid", c, "size", size)
}
