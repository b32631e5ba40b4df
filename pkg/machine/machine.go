// Package machine coordinates the ledger and the content-addressed store.
//
// A Machine is the single writer of its ledger: Apply and StoreAndRegister
// take an exclusive lock, reads take a shared one, so no reader observes a
// half applied message.
package machine

import (
	"context"
	"sync"

	"github.com/ipfs/go-cid"
	"github.com/ipfs/go-datastore"
	logging "github.com/ipfs/go-log/v2"
	"go.opencensus.io/trace"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/venus-ledger/pkg/ledger"
	"github.com/filecoin-project/venus-ledger/pkg/metrics"
	"github.com/filecoin-project/venus-ledger/pkg/store"
	"github.com/filecoin-project/venus-ledger/pkg/types"
	"github.com/filecoin-project/venus-ledger/pkg/vm"
)

var log = logging.Logger("machine")

// HeadKey is the datastore key holding the id of the latest flushed ledger.
var HeadKey = datastore.NewKey("/ledger/head")

var (
	appliedCount  = metrics.NewInt64Counter("ledger/messages_applied", "Number of messages applied")
	rejectedCount = metrics.NewInt64Counter("ledger/messages_rejected", "Number of messages rejected")
	applyTimer    = metrics.NewTimerMs("ledger/apply_duration_ms", "Duration of message application in milliseconds")
)

// Machine owns one ledger and stores payloads through an admission limited
// store.
type Machine struct {
	lk     sync.RWMutex
	ledger *ledger.Ledger

	store   *store.LimitedStore
	backend store.Store
	ds      datastore.Datastore

	checkInvariants bool
}

// Option configures a Machine.
type Option func(*Machine)

// WithDatastore records the ledger head in ds on Flush and reads it back in
// Restore.
func WithDatastore(ds datastore.Datastore) Option {
	return func(m *Machine) {
		m.ds = ds
	}
}

// WithLedger starts the machine from l instead of an empty ledger.
func WithLedger(l *ledger.Ledger) Option {
	return func(m *Machine) {
		m.ledger = l
	}
}

// WithInvariantChecks verifies the ledger after every applied message and
// panics when the total balance drifts from the sum of balances.
func WithInvariantChecks(enabled bool) Option {
	return func(m *Machine) {
		m.checkInvariants = enabled
	}
}

// New returns a ready machine storing payloads of at most limit bytes in s.
func New(s store.Store, limit int, opts ...Option) *Machine {
	m := &Machine{
		ledger:  ledger.NewLedger(),
		store:   store.WithLimit(s, limit),
		backend: s,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StoreAndRegister stores payload and makes sure an account exists under its
// id. created reports whether the account is new.
func (m *Machine) StoreAndRegister(ctx context.Context, payload []byte) (c cid.Cid, created bool, err error) {
	c, err = m.store.Put(ctx, payload)
	if err != nil {
		return cid.Undef, false, err
	}

	m.lk.Lock()
	defer m.lk.Unlock()

	created = m.ledger.Register(c)
	log.Debugw("stored payload", "cid", c, "size", len(payload), "created", created)
	return c, created, nil
}

// Retrieve returns the payload stored under c.
func (m *Machine) Retrieve(ctx context.Context, c cid.Cid) ([]byte, error) {
	return m.store.Get(ctx, c)
}

// Apply applies msg on behalf of caller.
func (m *Machine) Apply(ctx context.Context, caller types.AccountID, msg types.Message) vm.Outcome {
	ctx, span := trace.StartSpan(ctx, "Machine.Apply")
	defer span.End()
	sw := applyTimer.Start(ctx)
	defer sw.Stop(ctx)

	m.lk.Lock()
	defer m.lk.Unlock()

	out := vm.Apply(m.ledger, caller, msg)
	if m.checkInvariants {
		if err := m.ledger.CheckInvariants(); err != nil {
			panic(err)
		}
	}

	if out.Applied() {
		appliedCount.Inc(ctx, 1)
	} else {
		rejectedCount.Inc(ctx, 1)
	}
	span.AddAttributes(
		trace.Int64Attribute("exitcode", int64(out.ExitCode)),
		trace.StringAttribute("reason", out.Reason.String()),
	)
	return out
}

// ApplyEnvelope applies the message of env on behalf of its caller.
func (m *Machine) ApplyEnvelope(ctx context.Context, env *types.Envelope) vm.Outcome {
	return m.Apply(ctx, env.Caller, env.Message)
}

// Balance returns the balance of id without creating the account.
func (m *Machine) Balance(id types.AccountID) (uint64, bool) {
	m.lk.RLock()
	defer m.lk.RUnlock()

	act, ok := m.ledger.Get(id)
	return act.Balance, ok
}

// Account returns a copy of the account under id.
func (m *Machine) Account(id types.AccountID) (ledger.Account, bool) {
	m.lk.RLock()
	defer m.lk.RUnlock()

	return m.ledger.Get(id)
}

// TotalBalance returns the sum of all balances.
func (m *Machine) TotalBalance() uint64 {
	m.lk.RLock()
	defer m.lk.RUnlock()

	return m.ledger.TotalBalance()
}

// Tally counts the votes for and against proposal.
func (m *Machine) Tally(proposal uint64) (support, against uint64) {
	m.lk.RLock()
	defer m.lk.RUnlock()

	return m.ledger.Tally(proposal)
}

// Flush writes the ledger through the store, bypassing the payload limit,
// and records its id under HeadKey when a datastore is configured.
func (m *Machine) Flush(ctx context.Context) (cid.Cid, error) {
	m.lk.RLock()
	defer m.lk.RUnlock()

	root, err := m.ledger.Flush(ctx, m.backend)
	if err != nil {
		return cid.Undef, xerrors.Errorf("flush ledger: %w", err)
	}
	if m.ds != nil {
		if err := m.ds.Put(ctx, HeadKey, root.Bytes()); err != nil {
			return cid.Undef, xerrors.Errorf("record ledger head: %w", err)
		}
	}
	log.Infow("flushed ledger", "root", root, "total", m.ledger.TotalBalance())
	return root, nil
}

// Restore replaces the ledger with the one recorded under HeadKey. It
// reports false and keeps the current ledger when no head was recorded.
func (m *Machine) Restore(ctx context.Context) (bool, error) {
	if m.ds == nil {
		return false, xerrors.New("restore needs a datastore")
	}
	raw, err := m.ds.Get(ctx, HeadKey)
	if xerrors.Is(err, datastore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, xerrors.Errorf("read ledger head: %w", err)
	}
	root, err := cid.Cast(raw)
	if err != nil {
		return false, xerrors.Errorf("corrupt ledger head: %w", err)
	}
	l, err := ledger.Load(ctx, m.backend, root)
	if err != nil {
		return false, err
	}

	m.lk.Lock()
	defer m.lk.Unlock()
	m.ledger = l
	log.Infow("restored ledger", "root", root, "accounts", l.Len(), "total", l.TotalBalance())
	return true, nil
}
