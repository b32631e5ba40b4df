// Package vm applies messages to a ledger.
package vm

import (
	"reflect"

	"github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/venus-ledger/pkg/ledger"
	"github.com/filecoin-project/venus-ledger/pkg/types"
)

var log = logging.Logger("vm")

// Apply applies msg to l on behalf of caller.
//
// Every message runs inside a ledger snapshot. A rejected message reverts the
// snapshot, so the ledger is left exactly as it was, including accounts the
// message would have created. Recoverable conditions are reported through the
// outcome; Apply only panics when the ledger reports an invariant violation.
func Apply(l *ledger.Ledger, caller types.AccountID, msg types.Message) Outcome {
	if msg == nil || reflect.ValueOf(msg).IsNil() {
		return rejected(ReasonMalformed, xerrors.Errorf("nil message: %w", types.ErrMalformedMessage))
	}
	if err := msg.Validate(); err != nil {
		return rejected(ReasonMalformed, err)
	}

	l.Snapshot()
	defer l.ClearSnapshot()

	out := (&applier{ledger: l, caller: caller}).apply(msg)
	if !out.Applied() {
		l.Revert()
		log.Debugw("message rejected", "type", msg.Type(), "caller", caller, "reason", out.Reason, "index", out.AtIndex, "err", out.Err)
	}
	return out
}

type applier struct {
	ledger *ledger.Ledger
	caller cid.Cid
}

func (a *applier) apply(msg types.Message) Outcome {
	switch m := msg.(type) {
	case *types.Transfer:
		return a.transfer(m)
	case *types.Mint:
		return a.mint(m)
	case *types.Burn:
		return a.burn(m)
	case *types.SetData:
		return a.setData(m)
	case *types.Delegate:
		return a.delegate(m)
	case *types.Revoke:
		return a.revoke(m)
	case *types.BatchTransfer:
		return a.batchTransfer(m)
	case *types.QueryBalance:
		return a.queryBalance(m)
	case *types.Vote:
		return a.vote(m)
	case *types.Withdraw:
		return a.withdraw(m)
	case *types.Custom:
		return a.custom(m)
	default:
		return rejected(ReasonUnknownMessage, xerrors.Errorf("no handler for message type %s", msg.Type()))
	}
}

func (a *applier) transfer(m *types.Transfer) Outcome {
	if !a.caller.Defined() {
		return rejected(ReasonUnauthorized, xerrors.New("transfer requires a caller"))
	}
	effects, err := a.ledger.Transfer(a.caller, m.To, m.Amount)
	if err != nil {
		return failure(err)
	}
	return applied(effects...)
}

func (a *applier) mint(m *types.Mint) Outcome {
	effects, err := a.ledger.Mint(m.To, m.Amount)
	if err != nil {
		return failure(err)
	}
	return applied(effects...)
}

func (a *applier) burn(m *types.Burn) Outcome {
	if out, ok := a.authorize(m.From, ledger.PermBurn); !ok {
		return out
	}
	effects, err := a.ledger.Burn(m.From, m.Amount)
	if err != nil {
		return failure(err)
	}
	return applied(effects...)
}

// withdraw has the accounting of burn; value leaves the ledger.
func (a *applier) withdraw(m *types.Withdraw) Outcome {
	if out, ok := a.authorize(m.From, ledger.PermWithdraw); !ok {
		return out
	}
	effects, err := a.ledger.Burn(m.From, m.Amount)
	if err != nil {
		return failure(err)
	}
	return applied(effects...)
}

func (a *applier) setData(m *types.SetData) Outcome {
	if !a.caller.Defined() {
		return rejected(ReasonUnauthorized, xerrors.New("set_data requires a caller"))
	}
	return applied(a.ledger.SetData(a.caller, m.Key, m.Value))
}

func (a *applier) delegate(m *types.Delegate) Outcome {
	if out, ok := a.authorize(m.From, ledger.PermDelegate); !ok {
		return out
	}
	return applied(a.ledger.Delegate(m.From, m.To, m.Permissions))
}

func (a *applier) revoke(m *types.Revoke) Outcome {
	if out, ok := a.authorize(m.From, ledger.PermDelegate); !ok {
		return out
	}
	return applied(a.ledger.Revoke(m.From, m.To))
}

// batchTransfer applies the legs in order on the open snapshot. The first
// failing leg rejects the whole batch and Apply reverts the legs before it.
func (a *applier) batchTransfer(m *types.BatchTransfer) Outcome {
	if !a.caller.Defined() {
		return rejected(ReasonUnauthorized, xerrors.New("batch_transfer requires a caller"))
	}
	var effects []ledger.Event
	for i, tr := range m.Transfers {
		evs, err := a.ledger.Transfer(a.caller, tr.To, tr.Amount)
		if err != nil {
			out := failure(xerrors.Errorf("transfers[%d]: %w", i, err))
			out.AtIndex = i
			return out
		}
		effects = append(effects, evs...)
	}
	return applied(effects...)
}

func (a *applier) queryBalance(m *types.QueryBalance) Outcome {
	return applied(a.ledger.Balance(m.Account))
}

func (a *applier) vote(m *types.Vote) Outcome {
	if out, ok := a.authorize(m.Voter, ledger.PermVote); !ok {
		return out
	}
	return applied(a.ledger.Vote(m.Voter, m.ProposalID, m.Support))
}

func (a *applier) custom(m *types.Custom) Outcome {
	return applied(ledger.CustomReceived{Caller: a.caller, Data: append([]byte(nil), m.Data...)})
}

// authorize passes when the caller owns the account or holds perm over it.
func (a *applier) authorize(owner cid.Cid, perm string) (Outcome, bool) {
	if a.caller.Defined() && a.caller == owner {
		return Outcome{}, true
	}
	if act, ok := a.ledger.Get(owner); ok && a.caller.Defined() && act.Permits(a.caller, perm) {
		return Outcome{}, true
	}
	return rejected(ReasonUnauthorized, xerrors.Errorf("%s may not %s on behalf of %s", a.caller, perm, owner)), false
}

func failure(err error) Outcome {
	switch {
	case xerrors.Is(err, ledger.ErrInsufficientFunds):
		return rejected(ReasonInsufficientFunds, err)
	case xerrors.Is(err, ledger.ErrOverflow):
		return rejected(ReasonOverflow, err)
	default:
		panic(xerrors.Errorf("ledger failed applying message: %w", err))
	}
}
