package main

import (
	"context"
	"net/http"

	"github.com/raulk/clock"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/venus-ledger/pkg/config"
	"github.com/filecoin-project/venus-ledger/pkg/machine"
	"github.com/filecoin-project/venus-ledger/pkg/provenance"
	"github.com/filecoin-project/venus-ledger/pkg/repo"
	"github.com/filecoin-project/venus-ledger/pkg/store"
)

// node is everything a command needs, opened from the repo.
type node struct {
	repo    repo.Repo
	backend store.Store
	machine *machine.Machine
	tracker *provenance.Tracker

	closers []func()
}

func (n *node) Close() error {
	n.close()
	return n.repo.Close()
}

func openNode(cctx *cli.Context) (*node, error) {
	r, err := repo.OpenFSRepo(cctx.String("repo"))
	if err != nil {
		return nil, err
	}
	if cctx.String("log-level") == "" {
		if err := setLogLevel(r.Config().Log.Level); err != nil {
			log.Warnf("ignoring configured log level: %s", err)
		}
	}
	n, err := newNode(cctx.Context, r)
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	return n, nil
}

// newNode wires the store selected by the repo config to a machine whose
// ledger is restored from the recorded head.
func newNode(ctx context.Context, r repo.Repo) (*node, error) {
	cfg := r.Config()
	if err := cfg.Validate(); err != nil {
		return nil, xerrors.Errorf("invalid config: %w", err)
	}
	limit, err := cfg.Store.PayloadLimit()
	if err != nil {
		return nil, err
	}

	n := &node{repo: r}
	backend, err := n.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	n.backend = backend

	n.machine = machine.New(backend, limit,
		machine.WithDatastore(r.Datastore()),
		machine.WithInvariantChecks(cfg.Ledger.CheckInvariants),
	)
	if _, err := n.machine.Restore(ctx); err != nil {
		n.close()
		return nil, xerrors.Errorf("restore ledger: %w", err)
	}
	n.tracker = provenance.NewTracker(store.WithLimit(backend, limit), r.Datastore(), clock.New())
	return n, nil
}

func (n *node) close() {
	for i := len(n.closers) - 1; i >= 0; i-- {
		n.closers[i]()
	}
	n.closers = nil
}

func (n *node) openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	var s store.Store
	switch cfg.Store.Backend {
	case config.BackendMemory:
		s = store.NewMemoryStore()
	case config.BackendBadger:
		s = store.NewDatastoreStore(n.repo.Datastore(), cfg.Store.HashOnRead)
	case config.BackendRPC:
		timeout, err := cfg.Store.RPC.CallTimeout()
		if err != nil {
			return nil, err
		}
		header := http.Header{}
		if cfg.Store.RPC.Token != "" {
			header.Add("Authorization", "Bearer "+cfg.Store.RPC.Token)
		}
		remote, err := store.DialRPCStore(ctx, cfg.Store.RPC.Address, header, timeout)
		if err != nil {
			return nil, err
		}
		n.closers = append(n.closers, remote.Close)
		s = remote
	default:
		return nil, xerrors.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	if cfg.Store.LogOperations {
		s = store.NewLogStore(s, "store/ops")
	}
	if cfg.Store.CacheSize > 0 {
		cached, err := store.NewCachedStore(s, cfg.Store.CacheSize)
		if err != nil {
			return nil, err
		}
		s = cached
	}
	return s, nil
}
