// Package ledger holds every account and the total balance they add up to.
//
// All balance and permission changes go through the methods of Ledger. Each
// of them either succeeds completely or returns an error without touching
// the ledger. Callers that need several changes to succeed or fail together
// bracket them with Snapshot, Revert and ClearSnapshot.
package ledger

import (
	"bytes"
	"math/bits"
	"sort"

	"github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"
)

var log = logging.Logger("ledger")

// ErrInvariantViolated means the total balance no longer matches the sum of
// account balances. It always indicates a bug.
var ErrInvariantViolated = xerrors.New("ledger invariant violated")

// Ledger maps account ids to accounts.
//
// Not safe for concurrent access.
type Ledger struct {
	snaps *ledgerSnaps
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{snaps: newLedgerSnaps()}
}

// Get returns a copy of the account stored under id without creating it.
func (l *Ledger) Get(id cid.Cid) (Account, bool) {
	act, ok := l.snaps.getAccount(id)
	return act.Copy(), ok
}

// GetOrCreate returns a copy of the account stored under id, inserting an
// empty one first when there is none.
func (l *Ledger) GetOrCreate(id cid.Cid) Account {
	return l.getOrCreate(id).Copy()
}

// getOrCreate is GetOrCreate without the copy. The result shares state with
// the ledger and must only be passed to Account commands.
func (l *Ledger) getOrCreate(id cid.Cid) Account {
	act, ok := l.snaps.getAccount(id)
	if !ok {
		l.snaps.setAccount(id, act)
	}
	return act
}

// Register inserts an empty account under id unless one exists, and reports
// whether it did.
func (l *Ledger) Register(id cid.Cid) bool {
	if _, ok := l.snaps.getAccount(id); ok {
		return false
	}
	l.snaps.setAccount(id, Account{})
	return true
}

// Has reports whether id is present.
func (l *Ledger) Has(id cid.Cid) bool {
	_, ok := l.snaps.getAccount(id)
	return ok
}

// TotalBalance returns the sum of all balances.
func (l *Ledger) TotalBalance() uint64 {
	return l.snaps.getTotal()
}

// Balance returns the balance of id, creating the account when absent.
func (l *Ledger) Balance(id cid.Cid) Event {
	act := l.getOrCreate(id)
	return BalanceQueried{Account: id, Balance: act.Balance}
}

// Transfer moves amount from one account to another. Both accounts exist
// afterwards.
func (l *Ledger) Transfer(from, to cid.Cid, amount uint64) ([]Event, error) {
	src, _ := l.snaps.getAccount(from)
	if from == to {
		if src.Balance < amount {
			return nil, xerrors.Errorf("transfer %d from %s: %w", amount, from, ErrInsufficientFunds)
		}
		l.snaps.setAccount(from, src)
		return []Event{
			Debited{Account: from, Amount: amount, Balance: src.Balance - amount},
			Credited{Account: to, Amount: amount, Balance: src.Balance},
		}, nil
	}

	dst, _ := l.snaps.getAccount(to)
	nsrc, err := src.Debit(amount)
	if err != nil {
		return nil, xerrors.Errorf("transfer from %s: %w", from, err)
	}
	ndst, err := dst.Credit(amount)
	if err != nil {
		return nil, xerrors.Errorf("transfer to %s: %w", to, err)
	}

	l.snaps.setAccount(from, nsrc)
	l.snaps.setAccount(to, ndst)
	return []Event{
		Debited{Account: from, Amount: amount, Balance: nsrc.Balance},
		Credited{Account: to, Amount: amount, Balance: ndst.Balance},
	}, nil
}

// Mint credits amount to id and grows the total balance by the same amount.
func (l *Ledger) Mint(id cid.Cid, amount uint64) ([]Event, error) {
	total, carry := bits.Add64(l.TotalBalance(), amount, 0)
	if carry != 0 {
		return nil, xerrors.Errorf("mint %d onto total %d: %w", amount, l.TotalBalance(), ErrOverflow)
	}
	prev, _ := l.snaps.getAccount(id)
	act, err := prev.Credit(amount)
	if err != nil {
		return nil, xerrors.Errorf("mint to %s: %w", id, err)
	}

	l.snaps.setAccount(id, act)
	l.snaps.setTotal(total)
	return []Event{
		Credited{Account: id, Amount: amount, Balance: act.Balance},
		SupplyIncreased{Amount: amount, Total: total},
	}, nil
}

// Burn debits amount from id and shrinks the total balance by the same
// amount. Withdraw has identical accounting; only the caller's intent differs.
func (l *Ledger) Burn(id cid.Cid, amount uint64) ([]Event, error) {
	prev, _ := l.snaps.getAccount(id)
	act, err := prev.Debit(amount)
	if err != nil {
		return nil, xerrors.Errorf("burn from %s: %w", id, err)
	}
	total := l.TotalBalance()
	if total < amount {
		// the account held amount, so the total must too
		return nil, xerrors.Errorf("burn %d from total %d: %w", amount, total, ErrInvariantViolated)
	}
	total -= amount

	l.snaps.setAccount(id, act)
	l.snaps.setTotal(total)
	return []Event{
		Debited{Account: id, Amount: amount, Balance: act.Balance},
		SupplyDecreased{Amount: amount, Total: total},
	}, nil
}

// SetData writes key on id.
func (l *Ledger) SetData(id cid.Cid, key string, value []byte) Event {
	act := l.getOrCreate(id).SetData(key, value)
	l.snaps.setAccount(id, act)
	return DataSet{Account: id, Key: key, Size: len(value)}
}

// Delegate grants perms over from to to.
func (l *Ledger) Delegate(from, to cid.Cid, perms []string) Event {
	act, set := l.getOrCreate(from).Delegate(to, perms)
	l.getOrCreate(to)
	l.snaps.setAccount(from, act)
	return Delegated{From: from, To: to, Permissions: copyPermissions(set)}
}

// Revoke removes everything to holds over from.
func (l *Ledger) Revoke(from, to cid.Cid) Event {
	act, removed := l.getOrCreate(from).Revoke(to)
	l.getOrCreate(to)
	l.snaps.setAccount(from, act)
	return Revoked{From: from, To: to, Permissions: copyPermissions(removed)}
}

// Vote records voter's support for proposal.
func (l *Ledger) Vote(voter cid.Cid, proposal uint64, support bool) Event {
	act := l.getOrCreate(voter).Vote(proposal, support)
	l.snaps.setAccount(voter, act)
	return Voted{Voter: voter, ProposalID: proposal, Support: support}
}

// Tally counts the accounts for and against proposal.
func (l *Ledger) Tally(proposal uint64) (support, against uint64) {
	_ = l.forEach(func(_ cid.Cid, act Account) error {
		if v, ok := act.Votes[proposal]; ok {
			if v {
				support++
			} else {
				against++
			}
		}
		return nil
	})
	return support, against
}

// Snapshot opens a new write layer.
func (l *Ledger) Snapshot() {
	l.snaps.addLayer()
}

// Revert discards everything written since the last Snapshot. The layer
// stays open; ClearSnapshot still has to be called.
func (l *Ledger) Revert() {
	l.snaps.dropLayer()
	l.snaps.addLayer()
}

// ClearSnapshot folds the top write layer into the one below it.
func (l *Ledger) ClearSnapshot() {
	if len(l.snaps.layers) < 2 {
		log.Errorf("ClearSnapshot called without a snapshot")
		return
	}
	l.snaps.mergeLastLayer()
}

// Len returns the number of accounts.
func (l *Ledger) Len() int {
	return len(l.ids())
}

// ForEach calls f with a copy of every account in ascending id order.
func (l *Ledger) ForEach(f func(cid.Cid, Account) error) error {
	return l.forEach(func(id cid.Cid, act Account) error {
		return f(id, act.Copy())
	})
}

// forEach is ForEach over the stored accounts. f must not modify them.
func (l *Ledger) forEach(f func(cid.Cid, Account) error) error {
	for _, id := range l.ids() {
		act, _ := l.snaps.getAccount(id)
		if err := f(id, act); err != nil {
			return err
		}
	}
	return nil
}

func copyPermissions(perms []string) []string {
	if perms == nil {
		return nil
	}
	return append([]string(nil), perms...)
}

func (l *Ledger) ids() []cid.Cid {
	seen := make(map[cid.Cid]struct{})
	for _, layer := range l.snaps.layers {
		for id := range layer.accounts {
			seen[id] = struct{}{}
		}
	}
	out := make([]cid.Cid, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Bytes(), out[j].Bytes()) < 0
	})
	return out
}

// CheckInvariants verifies that the total balance equals the sum of the
// account balances.
func (l *Ledger) CheckInvariants() error {
	var sum uint64
	err := l.forEach(func(id cid.Cid, act Account) error {
		var carry uint64
		sum, carry = bits.Add64(sum, act.Balance, 0)
		if carry != 0 {
			return xerrors.Errorf("sum of balances overflows at %s: %w", id, ErrInvariantViolated)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if total := l.TotalBalance(); sum != total {
		return xerrors.Errorf("total balance %d, accounts hold %d: %w", total, sum, ErrInvariantViolated)
	}
	return nil
}
