// Package repo holds everything a ledger node persists: its config and its
// datastore.
package repo

import (
	"github.com/ipfs/go-datastore"

	"github.com/filecoin-project/venus-ledger/pkg/config"
)

// Version is the current repo layout version.
const Version uint = 1

// Datastore is the datastore interface provided by the repo.
type Datastore interface {
	datastore.Batching
}

// Repo is a representation of all persistent data of a ledger node.
type Repo interface {
	Config() *config.Config
	// ReplaceConfig replaces the current config, with the newly passed in one.
	ReplaceConfig(cfg *config.Config) error

	// Datastore holds blocks, the ledger head and the provenance index.
	Datastore() Datastore

	// Version returns the current repo version.
	Version() uint

	// Path returns the repo path.
	Path() (string, error)

	// Close shuts down the repo.
	Close() error
}
