package ledger

import (
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
)

// Event describes one observable change made by the ledger.
type Event interface {
	fmt.Stringer
	event()
}

// Credited is emitted when Account's balance grows by Amount.
type Credited struct {
	Account cid.Cid
	Amount  uint64
	Balance uint64
}

// Debited is emitted when Account's balance shrinks by Amount.
type Debited struct {
	Account cid.Cid
	Amount  uint64
	Balance uint64
}

// SupplyIncreased is emitted by mint.
type SupplyIncreased struct {
	Amount uint64
	Total  uint64
}

// SupplyDecreased is emitted by burn and withdraw.
type SupplyDecreased struct {
	Amount uint64
	Total  uint64
}

// DataSet is emitted when Key is written on Account.
type DataSet struct {
	Account cid.Cid
	Key     string
	Size    int
}

// Delegated carries the full permission set To holds over From afterwards.
type Delegated struct {
	From        cid.Cid
	To          cid.Cid
	Permissions []string
}

// Revoked carries the permissions removed. It is empty when nothing was held.
type Revoked struct {
	From        cid.Cid
	To          cid.Cid
	Permissions []string
}

// Voted is emitted when Voter records a position on ProposalID.
type Voted struct {
	Voter      cid.Cid
	ProposalID uint64
	Support    bool
}

// BalanceQueried reports the balance read by a query.
type BalanceQueried struct {
	Account cid.Cid
	Balance uint64
}

// CustomReceived records receipt of an uninterpreted payload.
type CustomReceived struct {
	Caller cid.Cid
	Data   []byte
}

func (Credited) event()        {}
func (Debited) event()         {}
func (SupplyIncreased) event() {}
func (SupplyDecreased) event() {}
func (DataSet) event()         {}
func (Delegated) event()       {}
func (Revoked) event()         {}
func (Voted) event()           {}
func (BalanceQueried) event()  {}
func (CustomReceived) event()  {}

func (e Credited) String() string {
	return fmt.Sprintf("credited %d to %s (balance %d)", e.Amount, e.Account, e.Balance)
}

func (e Debited) String() string {
	return fmt.Sprintf("debited %d from %s (balance %d)", e.Amount, e.Account, e.Balance)
}

func (e SupplyIncreased) String() string {
	return fmt.Sprintf("supply increased by %d (total %d)", e.Amount, e.Total)
}

func (e SupplyDecreased) String() string {
	return fmt.Sprintf("supply decreased by %d (total %d)", e.Amount, e.Total)
}

func (e DataSet) String() string {
	return fmt.Sprintf("set %q on %s (%d bytes)", e.Key, e.Account, e.Size)
}

func (e Delegated) String() string {
	return fmt.Sprintf("%s delegated [%s] to %s", e.From, strings.Join(e.Permissions, ","), e.To)
}

func (e Revoked) String() string {
	return fmt.Sprintf("%s revoked [%s] from %s", e.From, strings.Join(e.Permissions, ","), e.To)
}

func (e Voted) String() string {
	return fmt.Sprintf("%s voted %t on proposal %d", e.Voter, e.Support, e.ProposalID)
}

func (e BalanceQueried) String() string {
	return fmt.Sprintf("balance of %s is %d", e.Account, e.Balance)
}

func (e CustomReceived) String() string {
	return fmt.Sprintf("received %d custom bytes from %s", len(e.Data), e.Caller)
}
