// Package provenance records where stored payloads came from and who
// contributed them.
//
// Records are JSON documents kept in the content-addressed store like any
// other payload. A datastore index maps the id of a payload to the id of its
// latest record, so every revision of a record stays retrievable.
package provenance

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/namespace"
	logging "github.com/ipfs/go-log/v2"
	"github.com/raulk/clock"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/venus-ledger/pkg/store"
)

var log = logging.Logger("provenance")

var (
	// ErrNotTracked is returned for a payload without a record.
	ErrNotTracked = xerrors.New("payload is not tracked")
	// ErrTampered is returned by Verify when the stored bytes no longer hash
	// to their id.
	ErrTampered = xerrors.New("payload does not match its id")
)

var (
	lineagePrefix      = datastore.NewKey("/lineage")
	contributionPrefix = datastore.NewKey("/contribution")
)

// Lineage says where a payload came from.
type Lineage struct {
	CID        cid.Cid   `json:"cid"`
	Origin     string    `json:"origin"`
	Creator    string    `json:"creator"`
	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// Contribution credits a payload to a contributor and counts its uses.
type Contribution struct {
	CID         cid.Cid `json:"cid"`
	Contributor string  `json:"contributor"`
	UsageCount  uint64  `json:"usageCount"`
}

// Tracker maintains lineage and contribution records.
type Tracker struct {
	store         store.Store
	lineages      datastore.Datastore
	contributions datastore.Datastore
	clock         clock.Clock

	// lk serializes read-modify-write cycles on the index.
	lk sync.Mutex
}

// NewTracker keeps records in s and the index in ds.
func NewTracker(s store.Store, ds datastore.Datastore, clk clock.Clock) *Tracker {
	return &Tracker{
		store:         s,
		lineages:      namespace.Wrap(ds, lineagePrefix),
		contributions: namespace.Wrap(ds, contributionPrefix),
		clock:         clk,
	}
}

// Track stores data and records its origin and creator. Tracking the same
// payload again replaces origin and creator but keeps the creation time.
func (t *Tracker) Track(ctx context.Context, data []byte, origin, creator string) (*Lineage, error) {
	c, err := t.store.Put(ctx, data)
	if err != nil {
		return nil, xerrors.Errorf("store tracked payload: %w", err)
	}

	t.lk.Lock()
	defer t.lk.Unlock()

	now := t.clock.Now().UTC()
	lin := &Lineage{CID: c, Origin: origin, Creator: creator, CreatedAt: now, ModifiedAt: now}

	var prev Lineage
	switch err := t.load(ctx, t.lineages, c, &prev); {
	case err == nil:
		lin.CreatedAt = prev.CreatedAt
	case xerrors.Is(err, ErrNotTracked):
	default:
		return nil, err
	}

	if err := t.save(ctx, t.lineages, c, lin); err != nil {
		return nil, err
	}
	log.Debugw("tracked payload", "cid", c, "origin", origin, "creator", creator)
	return lin, nil
}

// Lineage returns the latest lineage of c.
func (t *Tracker) Lineage(ctx context.Context, c cid.Cid) (*Lineage, error) {
	var lin Lineage
	if err := t.load(ctx, t.lineages, c, &lin); err != nil {
		return nil, err
	}
	return &lin, nil
}

// Verify fetches the payload behind c and checks that it still hashes to c.
func (t *Tracker) Verify(ctx context.Context, c cid.Cid) (*Lineage, error) {
	lin, err := t.Lineage(ctx, c)
	if err != nil {
		return nil, err
	}
	if !lin.CID.Equals(c) {
		return nil, xerrors.Errorf("lineage of %s names %s: %w", c, lin.CID, ErrTampered)
	}
	data, err := t.store.Get(ctx, c)
	if err != nil {
		return nil, xerrors.Errorf("fetch %s: %w", c, err)
	}
	sum, err := c.Prefix().Sum(data)
	if err != nil {
		return nil, xerrors.Errorf("rehash %s: %w", c, err)
	}
	if !sum.Equals(c) {
		return nil, xerrors.Errorf("%s hashes to %s: %w", c, sum, ErrTampered)
	}
	return lin, nil
}

// Contribute credits the stored payload c to contributor. A payload has one
// contributor; contributing it again is an error.
func (t *Tracker) Contribute(ctx context.Context, c cid.Cid, contributor string) (*Contribution, error) {
	if _, err := t.store.Get(ctx, c); err != nil {
		return nil, xerrors.Errorf("contribute %s: %w", c, err)
	}

	t.lk.Lock()
	defer t.lk.Unlock()

	var prev Contribution
	switch err := t.load(ctx, t.contributions, c, &prev); {
	case err == nil:
		return nil, xerrors.Errorf("%s was already contributed by %s", c, prev.Contributor)
	case !xerrors.Is(err, ErrNotTracked):
		return nil, err
	}

	con := &Contribution{CID: c, Contributor: contributor}
	if err := t.save(ctx, t.contributions, c, con); err != nil {
		return nil, err
	}
	return con, nil
}

// IncrementUsage counts one more use of c.
func (t *Tracker) IncrementUsage(ctx context.Context, c cid.Cid) (*Contribution, error) {
	t.lk.Lock()
	defer t.lk.Unlock()

	var con Contribution
	if err := t.load(ctx, t.contributions, c, &con); err != nil {
		return nil, err
	}
	con.UsageCount++
	if err := t.save(ctx, t.contributions, c, &con); err != nil {
		return nil, err
	}
	return &con, nil
}

// Contribution returns the contribution record of c.
func (t *Tracker) Contribution(ctx context.Context, c cid.Cid) (*Contribution, error) {
	var con Contribution
	if err := t.load(ctx, t.contributions, c, &con); err != nil {
		return nil, err
	}
	return &con, nil
}

// save stores rec and points the index entry of c at it.
func (t *Tracker) save(ctx context.Context, index datastore.Datastore, c cid.Cid, rec interface{}) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	rc, err := t.store.Put(ctx, data)
	if err != nil {
		return xerrors.Errorf("store record of %s: %w", c, err)
	}
	if err := index.Put(ctx, datastore.NewKey(c.String()), rc.Bytes()); err != nil {
		return xerrors.Errorf("index record of %s: %w", c, err)
	}
	return nil
}

func (t *Tracker) load(ctx context.Context, index datastore.Datastore, c cid.Cid, out interface{}) error {
	raw, err := index.Get(ctx, datastore.NewKey(c.String()))
	if xerrors.Is(err, datastore.ErrNotFound) {
		return xerrors.Errorf("%s: %w", c, ErrNotTracked)
	}
	if err != nil {
		return xerrors.Errorf("read index of %s: %w", c, err)
	}
	rc, err := cid.Cast(raw)
	if err != nil {
		return xerrors.Errorf("corrupt index entry for %s: %w", c, err)
	}
	data, err := t.store.Get(ctx, rc)
	if err != nil {
		return xerrors.Errorf("fetch record %s: %w", rc, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return xerrors.Errorf("decode record %s: %w", rc, err)
	}
	return nil
}
