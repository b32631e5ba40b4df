package ledger

import (
	"bytes"
	"context"
	"sort"

	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"
	"go.opencensus.io/trace"
	"golang.org/x/xerrors"
)

// snapshotVersion is bumped whenever the encoded layout changes.
const snapshotVersion = 1

// encMode writes canonical CBOR (sorted map keys, shortest integers), so equal
// ledgers always encode to equal bytes and therefore to equal ids.
var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	encMode = em
}

type snapshot struct {
	Version  uint64          `cbor:"1,keyasint"`
	Total    uint64          `cbor:"2,keyasint"`
	Accounts []accountRecord `cbor:"3,keyasint"`
}

type accountRecord struct {
	ID          []byte             `cbor:"1,keyasint"`
	Balance     uint64             `cbor:"2,keyasint"`
	Delegations []delegationRecord `cbor:"3,keyasint,omitempty"`
	Data        map[string][]byte  `cbor:"4,keyasint,omitempty"`
	Votes       map[uint64]bool    `cbor:"5,keyasint,omitempty"`
}

type delegationRecord struct {
	To          []byte   `cbor:"1,keyasint"`
	Permissions []string `cbor:"2,keyasint"`
}

// Encode serializes the committed ledger. It fails while a snapshot is open.
func (l *Ledger) Encode() ([]byte, error) {
	if len(l.snaps.layers) != 1 {
		return nil, xerrors.Errorf("tried to encode ledger with snapshots on the stack")
	}

	snap := snapshot{Version: snapshotVersion, Total: l.TotalBalance()}
	err := l.forEach(func(id cid.Cid, act Account) error {
		rec := accountRecord{
			ID:      id.Bytes(),
			Balance: act.Balance,
			Data:    act.Data,
			Votes:   act.Votes,
		}
		for to, perms := range act.Delegations {
			rec.Delegations = append(rec.Delegations, delegationRecord{To: to.Bytes(), Permissions: perms})
		}
		sort.Slice(rec.Delegations, func(i, j int) bool {
			return bytes.Compare(rec.Delegations[i].To, rec.Delegations[j].To) < 0
		})
		snap.Accounts = append(snap.Accounts, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return encMode.Marshal(&snap)
}

// Decode rebuilds a ledger from the output of Encode and checks its
// invariants.
func Decode(data []byte) (*Ledger, error) {
	var snap snapshot
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return nil, xerrors.Errorf("decode ledger snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, xerrors.Errorf("unsupported ledger snapshot version %d", snap.Version)
	}

	l := NewLedger()
	for _, rec := range snap.Accounts {
		id, err := cid.Cast(rec.ID)
		if err != nil {
			return nil, xerrors.Errorf("decode account id: %w", err)
		}
		act := Account{Balance: rec.Balance}
		if len(rec.Data) > 0 {
			act.Data = rec.Data
		}
		if len(rec.Votes) > 0 {
			act.Votes = rec.Votes
		}
		for _, d := range rec.Delegations {
			to, err := cid.Cast(d.To)
			if err != nil {
				return nil, xerrors.Errorf("decode delegate of %s: %w", id, err)
			}
			if act.Delegations == nil {
				act.Delegations = make(map[cid.Cid][]string, len(rec.Delegations))
			}
			act.Delegations[to] = d.Permissions
		}
		l.snaps.setAccount(id, act)
	}
	l.snaps.setTotal(snap.Total)

	if err := l.CheckInvariants(); err != nil {
		return nil, err
	}
	return l, nil
}

// Putter persists a payload and returns its content id.
type Putter interface {
	Put(ctx context.Context, data []byte) (cid.Cid, error)
}

// Getter fetches the payload stored under a content id.
type Getter interface {
	Get(ctx context.Context, c cid.Cid) ([]byte, error)
}

// Flush writes the committed ledger to s and returns the id of the snapshot.
func (l *Ledger) Flush(ctx context.Context, s Putter) (cid.Cid, error) {
	ctx, span := trace.StartSpan(ctx, "ledger.Flush")
	defer span.End()

	data, err := l.Encode()
	if err != nil {
		return cid.Undef, err
	}
	c, err := s.Put(ctx, data)
	if err != nil {
		return cid.Undef, xerrors.Errorf("store ledger snapshot: %w", err)
	}
	log.Debugw("flushed ledger", "root", c, "accounts", len(l.snaps.layers[0].accounts), "bytes", len(data))
	return c, nil
}

// Load reads the snapshot stored under root.
func Load(ctx context.Context, s Getter, root cid.Cid) (*Ledger, error) {
	data, err := s.Get(ctx, root)
	if err != nil {
		return nil, xerrors.Errorf("load ledger snapshot %s: %w", root, err)
	}
	return Decode(data)
}
