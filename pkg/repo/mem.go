package repo

import (
	"errors"
	"sync"

	"github.com/ipfs/go-datastore"
	dss "github.com/ipfs/go-datastore/sync"

	"github.com/filecoin-project/venus-ledger/pkg/config"
)

// MemRepo is an in-memory implementation of the repo interface.
type MemRepo struct {
	// lk guards the config
	lk sync.RWMutex
	C  *config.Config
	D  Datastore
}

var _ Repo = (*MemRepo)(nil)

// NewInMemoryRepo makes a new instance of MemRepo with the memory store
// backend selected.
func NewInMemoryRepo() *MemRepo {
	cfg := config.NewDefaultConfig()
	cfg.Store.Backend = config.BackendMemory
	return &MemRepo{
		C: cfg,
		D: dss.MutexWrap(datastore.NewMapDatastore()),
	}
}

// Config returns the configuration object.
func (mr *MemRepo) Config() *config.Config {
	mr.lk.RLock()
	defer mr.lk.RUnlock()

	return mr.C
}

// ReplaceConfig replaces the current config with the newly passed in one.
func (mr *MemRepo) ReplaceConfig(cfg *config.Config) error {
	mr.lk.Lock()
	defer mr.lk.Unlock()

	mr.C = cfg
	return nil
}

// Datastore returns the datastore.
func (mr *MemRepo) Datastore() Datastore {
	return mr.D
}

// Version returns the version of the repo.
func (mr *MemRepo) Version() uint {
	return Version
}

// Path returns an error, a MemRepo lives nowhere on disk.
func (mr *MemRepo) Path() (string, error) {
	return "", errors.New("in-memory repo has no path")
}

// Close is a noop.
func (mr *MemRepo) Close() error {
	return nil
}
