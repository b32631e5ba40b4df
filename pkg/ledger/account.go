package ledger

import (
	"math/bits"
	"sort"

	"github.com/ipfs/go-cid"
	"golang.org/x/xerrors"
)

var (
	// ErrInsufficientFunds is returned when a debit exceeds the balance.
	ErrInsufficientFunds = xerrors.New("insufficient funds")
	// ErrOverflow is returned when a credit would wrap a 64 bit amount.
	ErrOverflow = xerrors.New("amount overflow")
)

// Permissions understood by the ledger. Any other string may be delegated
// and is stored verbatim, it just grants nothing.
const (
	PermAll      = "*"
	PermBurn     = "burn"
	PermWithdraw = "withdraw"
	PermDelegate = "delegate"
	PermVote     = "vote"
)

// Account is the state of one actor.
//
// Account is a value: every command below returns a new Account and leaves the
// receiver untouched, copying any map it changes. Copies taken before a command
// therefore stay valid, which the snapshot layers rely on.
type Account struct {
	Balance uint64
	// Delegations maps a delegate to the sorted set of permissions it holds
	// over this account.
	Delegations map[cid.Cid][]string
	Data        map[string][]byte
	// Votes maps a proposal to this account's latest position on it.
	Votes map[uint64]bool
}

// Copy returns a deep copy that shares no maps or slices with a.
func (a Account) Copy() Account {
	out := Account{Balance: a.Balance}
	if a.Delegations != nil {
		out.Delegations = make(map[cid.Cid][]string, len(a.Delegations))
		for k, v := range a.Delegations {
			out.Delegations[k] = append([]string(nil), v...)
		}
	}
	if a.Data != nil {
		out.Data = make(map[string][]byte, len(a.Data))
		for k, v := range a.Data {
			out.Data[k] = append([]byte(nil), v...)
		}
	}
	if a.Votes != nil {
		out.Votes = make(map[uint64]bool, len(a.Votes))
		for k, v := range a.Votes {
			out.Votes[k] = v
		}
	}
	return out
}

// Empty reports whether the account is indistinguishable from a fresh one.
func (a Account) Empty() bool {
	return a.Balance == 0 && len(a.Delegations) == 0 && len(a.Data) == 0 && len(a.Votes) == 0
}

// Credit adds amount to the balance.
func (a Account) Credit(amount uint64) (Account, error) {
	sum, carry := bits.Add64(a.Balance, amount, 0)
	if carry != 0 {
		return a, xerrors.Errorf("credit %d to balance %d: %w", amount, a.Balance, ErrOverflow)
	}
	a.Balance = sum
	return a, nil
}

// Debit removes amount from the balance.
func (a Account) Debit(amount uint64) (Account, error) {
	if a.Balance < amount {
		return a, xerrors.Errorf("debit %d from balance %d: %w", amount, a.Balance, ErrInsufficientFunds)
	}
	a.Balance -= amount
	return a, nil
}

// SetData upserts key.
func (a Account) SetData(key string, value []byte) Account {
	data := make(map[string][]byte, len(a.Data)+1)
	for k, v := range a.Data {
		data[k] = v
	}
	data[key] = append([]byte(nil), value...)
	a.Data = data
	return a
}

// Delegate adds perms to the set held by to. Permissions already held are
// ignored, so repeating a delegation is a no-op. The returned slice is the
// resulting set.
func (a Account) Delegate(to cid.Cid, perms []string) (Account, []string) {
	merged := normalizePermissions(append(append([]string(nil), a.Delegations[to]...), perms...))
	if len(merged) == 0 {
		return a, nil
	}
	a.Delegations = a.copyDelegations()
	a.Delegations[to] = merged
	return a, merged
}

// Revoke drops every permission held by to and returns what was removed.
// Revoking a delegation that does not exist is a no-op.
func (a Account) Revoke(to cid.Cid) (Account, []string) {
	removed, ok := a.Delegations[to]
	if !ok {
		return a, nil
	}
	a.Delegations = a.copyDelegations()
	delete(a.Delegations, to)
	if len(a.Delegations) == 0 {
		a.Delegations = nil
	}
	return a, removed
}

// Vote records support for proposal, replacing any earlier vote.
func (a Account) Vote(proposal uint64, support bool) Account {
	votes := make(map[uint64]bool, len(a.Votes)+1)
	for k, v := range a.Votes {
		votes[k] = v
	}
	votes[proposal] = support
	a.Votes = votes
	return a
}

// Permits reports whether caller may exercise perm on this account.
func (a Account) Permits(caller cid.Cid, perm string) bool {
	for _, p := range a.Delegations[caller] {
		if p == perm || p == PermAll {
			return true
		}
	}
	return false
}

func (a Account) copyDelegations() map[cid.Cid][]string {
	out := make(map[cid.Cid][]string, len(a.Delegations)+1)
	for k, v := range a.Delegations {
		out[k] = v
	}
	return out
}

func normalizePermissions(perms []string) []string {
	if len(perms) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(perms))
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
