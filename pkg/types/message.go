package types

import (
	"sort"

	"github.com/ipfs/go-cid"
	"golang.org/x/xerrors"
)

// ErrMalformedMessage is returned when a message cannot be decoded from its
// wire form or references an undefined account.
var ErrMalformedMessage = xerrors.New("malformed message")

// MessageType is the wire tag of a message variant.
type MessageType string

const (
	TransferType      MessageType = "transfer"
	MintType          MessageType = "mint"
	BurnType          MessageType = "burn"
	SetDataType       MessageType = "set_data"
	DelegateType      MessageType = "delegate"
	RevokeType        MessageType = "revoke"
	BatchTransferType MessageType = "batch_transfer"
	QueryBalanceType  MessageType = "query_balance"
	VoteType          MessageType = "vote"
	WithdrawType      MessageType = "withdraw"
	CustomType        MessageType = "custom"
)

// Message is one requested state change. The set of implementations is
// closed: only the variants in this file satisfy it.
type Message interface {
	Type() MessageType
	// Validate reports ErrMalformedMessage for undefined account references.
	Validate() error

	message()
}

// Transfer moves Amount from the caller to To.
type Transfer struct {
	To     AccountID `json:"to"`
	Amount uint64    `json:"amount"`
}

// Mint creates Amount on To.
type Mint struct {
	To     AccountID `json:"to"`
	Amount uint64    `json:"amount"`
}

// Burn destroys Amount held by From.
type Burn struct {
	From   AccountID `json:"from"`
	Amount uint64    `json:"amount"`
}

// SetData upserts Key on the caller's data map.
type SetData struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

// Delegate grants To the listed permissions over From.
type Delegate struct {
	From        AccountID `json:"from"`
	To          AccountID `json:"to"`
	Permissions []string  `json:"permissions"`
}

// Revoke removes every permission To holds over From.
type Revoke struct {
	From AccountID `json:"from"`
	To   AccountID `json:"to"`
}

// TransferEntry is one leg of a BatchTransfer.
type TransferEntry struct {
	To     AccountID `json:"to"`
	Amount uint64    `json:"amount"`
}

// BatchTransfer applies its transfers in order, all or nothing.
type BatchTransfer struct {
	Transfers []TransferEntry `json:"transfers"`
}

// QueryBalance reads the balance of Account.
type QueryBalance struct {
	Account AccountID `json:"account"`
}

// Vote records Voter's position on ProposalID.
type Vote struct {
	ProposalID uint64    `json:"proposalId"`
	Voter      AccountID `json:"voter"`
	Support    bool      `json:"support"`
}

// Withdraw moves Amount held by From out of the ledger.
type Withdraw struct {
	From   AccountID `json:"from"`
	Amount uint64    `json:"amount"`
}

// Custom carries opaque bytes that the ledger records without interpreting.
type Custom struct {
	Data []byte `json:"data"`
}

func (*Transfer) Type() MessageType      { return TransferType }
func (*Mint) Type() MessageType          { return MintType }
func (*Burn) Type() MessageType          { return BurnType }
func (*SetData) Type() MessageType       { return SetDataType }
func (*Delegate) Type() MessageType      { return DelegateType }
func (*Revoke) Type() MessageType        { return RevokeType }
func (*BatchTransfer) Type() MessageType { return BatchTransferType }
func (*QueryBalance) Type() MessageType  { return QueryBalanceType }
func (*Vote) Type() MessageType          { return VoteType }
func (*Withdraw) Type() MessageType      { return WithdrawType }
func (*Custom) Type() MessageType        { return CustomType }

func (*Transfer) message()      {}
func (*Mint) message()          {}
func (*Burn) message()          {}
func (*SetData) message()       {}
func (*Delegate) message()      {}
func (*Revoke) message()        {}
func (*BatchTransfer) message() {}
func (*QueryBalance) message()  {}
func (*Vote) message()          {}
func (*Withdraw) message()      {}
func (*Custom) message()        {}

func (m *Transfer) Validate() error { return requireDefined("to", m.To) }
func (m *Mint) Validate() error     { return requireDefined("to", m.To) }
func (m *Burn) Validate() error     { return requireDefined("from", m.From) }
func (m *SetData) Validate() error  { return nil }
func (m *Delegate) Validate() error {
	if err := requireDefined("from", m.From); err != nil {
		return err
	}
	return requireDefined("to", m.To)
}
func (m *Revoke) Validate() error {
	if err := requireDefined("from", m.From); err != nil {
		return err
	}
	return requireDefined("to", m.To)
}
func (m *BatchTransfer) Validate() error {
	for i, tr := range m.Transfers {
		if !tr.To.Defined() {
			return xerrors.Errorf("transfers[%d].to is undefined: %w", i, ErrMalformedMessage)
		}
	}
	return nil
}
func (m *QueryBalance) Validate() error { return requireDefined("account", m.Account) }
func (m *Vote) Validate() error         { return requireDefined("voter", m.Voter) }
func (m *Withdraw) Validate() error     { return requireDefined("from", m.From) }
func (m *Custom) Validate() error       { return nil }

func requireDefined(field string, c cid.Cid) error {
	if !c.Defined() {
		return xerrors.Errorf("%s is undefined: %w", field, ErrMalformedMessage)
	}
	return nil
}

// messageTypes maps every wire tag to a constructor for its variant. It is the
// single list of variants; codecs and exhaustiveness tests range over it.
var messageTypes = map[MessageType]func() Message{
	TransferType:      func() Message { return new(Transfer) },
	MintType:          func() Message { return new(Mint) },
	BurnType:          func() Message { return new(Burn) },
	SetDataType:       func() Message { return new(SetData) },
	DelegateType:      func() Message { return new(Delegate) },
	RevokeType:        func() Message { return new(Revoke) },
	BatchTransferType: func() Message { return new(BatchTransfer) },
	QueryBalanceType:  func() Message { return new(QueryBalance) },
	VoteType:          func() Message { return new(Vote) },
	WithdrawType:      func() Message { return new(Withdraw) },
	CustomType:        func() Message { return new(Custom) },
}

// NewMessage returns an empty message of the given variant.
func NewMessage(t MessageType) (Message, error) {
	ctor, ok := messageTypes[t]
	if !ok {
		return nil, xerrors.Errorf("unknown message type %q: %w", t, ErrMalformedMessage)
	}
	return ctor(), nil
}

// MessageTypes lists every variant tag in a stable order.
func MessageTypes() []MessageType {
	out := make([]MessageType, 0, len(messageTypes))
	for t := range messageTypes {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
