package vm

import (
	"reflect"
	"testing"

	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/venus-ledger/pkg/ledger"
	"github.com/filecoin-project/venus-ledger/pkg/testhelpers"
	tf "github.com/filecoin-project/venus-ledger/pkg/testhelpers/testflags"
	"github.com/filecoin-project/venus-ledger/pkg/types"
)

func encoded(t *testing.T, l *ledger.Ledger) []byte {
	data, err := l.Encode()
	require.NoError(t, err)
	return data
}

func balance(l *ledger.Ledger, id types.AccountID) uint64 {
	act, _ := l.Get(id)
	return act.Balance
}

func requireApplied(t *testing.T, l *ledger.Ledger, caller types.AccountID, msg types.Message) Outcome {
	out := Apply(l, caller, msg)
	require.True(t, out.Applied(), out.String())
	return out
}

func TestEveryMessageTypeHasAHandler(t *testing.T) {
	tf.UnitTest(t)

	caller := testhelpers.RequireAccountID(t, "caller")
	for _, typ := range types.MessageTypes() {
		msg, err := types.NewMessage(typ)
		require.NoError(t, err)

		out := (&applier{ledger: ledger.NewLedger(), caller: caller}).apply(msg)
		assert.NotEqual(t, ReasonUnknownMessage, out.Reason, "no handler for %s", typ)
	}
}

func TestMintBurnDelta(t *testing.T) {
	tf.UnitTest(t)

	addrGetter := testhelpers.NewForTestGetter()
	a := addrGetter()
	l := ledger.NewLedger()

	requireApplied(t, l, a, &types.Mint{To: a, Amount: 100})
	assert.Equal(t, uint64(100), balance(l, a))
	assert.Equal(t, uint64(100), l.TotalBalance())

	requireApplied(t, l, a, &types.Burn{From: a, Amount: 30})
	assert.Equal(t, uint64(70), balance(l, a))
	assert.Equal(t, uint64(70), l.TotalBalance())

	before := encoded(t, l)
	out := Apply(l, a, &types.Burn{From: a, Amount: 71})
	assert.Equal(t, ReasonInsufficientFunds, out.Reason)
	assert.Equal(t, exitcode.ErrInsufficientFunds, out.ExitCode)
	assert.Empty(t, out.Effects)
	assert.Equal(t, before, encoded(t, l))

	out = Apply(l, a, &types.Mint{To: a, Amount: ^uint64(0)})
	assert.Equal(t, ReasonOverflow, out.Reason)
	assert.Equal(t, before, encoded(t, l))
}

func TestWithdrawBeyondBalance(t *testing.T) {
	tf.UnitTest(t)

	a := testhelpers.RequireAccountID(t, "a")
	l := ledger.NewLedger()
	requireApplied(t, l, a, &types.Mint{To: a, Amount: 40})
	before := encoded(t, l)

	out := Apply(l, a, &types.Withdraw{From: a, Amount: 41})
	assert.Equal(t, ReasonInsufficientFunds, out.Reason)
	assert.Equal(t, exitcode.ErrInsufficientFunds, out.ExitCode)
	assert.Empty(t, out.Effects)
	assert.Equal(t, before, encoded(t, l))

	requireApplied(t, l, a, &types.Withdraw{From: a, Amount: 40})
	assert.Equal(t, uint64(0), balance(l, a))
	assert.Equal(t, uint64(0), l.TotalBalance())
}

func TestConservation(t *testing.T) {
	tf.UnitTest(t)

	addrGetter := testhelpers.NewForTestGetter()
	a, b, c := addrGetter(), addrGetter(), addrGetter()
	l := ledger.NewLedger()
	requireApplied(t, l, a, &types.Mint{To: a, Amount: 1000})
	requireApplied(t, l, b, &types.Mint{To: b, Amount: 10})

	msgs := []struct {
		caller types.AccountID
		msg    types.Message
	}{
		{a, &types.Transfer{To: b, Amount: 250}},
		{b, &types.Transfer{To: c, Amount: 260}},
		{c, &types.Transfer{To: a, Amount: 1}},
		{a, &types.Delegate{From: a, To: b, Permissions: []string{ledger.PermBurn}}},
		{a, &types.Revoke{From: a, To: c}},
		{a, &types.Revoke{From: a, To: b}},
		{c, &types.Vote{ProposalID: 3, Voter: c, Support: true}},
		{b, &types.SetData{Key: "k", Value: []byte("v")}},
		{b, &types.Custom{Data: []byte{1, 2, 3}}},
		{a, &types.BatchTransfer{Transfers: []types.TransferEntry{{To: b, Amount: 1}, {To: c, Amount: 2}}}},
		{c, &types.Transfer{To: b, Amount: 1 << 40}},
		{a, &types.QueryBalance{Account: addrGetter()}},
	}
	for _, m := range msgs {
		Apply(l, m.caller, m.msg)
		assert.Equal(t, uint64(1010), l.TotalBalance(), "after %s", m.msg.Type())
		require.NoError(t, l.CheckInvariants())
	}
}

func TestBatchTransferIsAllOrNothing(t *testing.T) {
	tf.UnitTest(t)

	addrGetter := testhelpers.NewForTestGetter()
	a, b, c := addrGetter(), addrGetter(), addrGetter()
	l := ledger.NewLedger()
	requireApplied(t, l, a, &types.Mint{To: a, Amount: 100})
	before := encoded(t, l)

	out := Apply(l, a, &types.BatchTransfer{Transfers: []types.TransferEntry{
		{To: b, Amount: 60},
		{To: c, Amount: 60},
	}})
	assert.False(t, out.Applied())
	assert.Equal(t, ReasonInsufficientFunds, out.Reason)
	assert.Equal(t, 1, out.AtIndex)
	assert.Equal(t, uint64(100), balance(l, a))
	assert.False(t, l.Has(b))
	assert.Equal(t, before, encoded(t, l))

	t.Run("in order funds are counted", func(t *testing.T) {
		out := Apply(l, a, &types.BatchTransfer{Transfers: []types.TransferEntry{
			{To: b, Amount: 60},
			{To: a, Amount: 0},
			{To: c, Amount: 40},
		}})
		assert.True(t, out.Applied())
		assert.Equal(t, -1, out.AtIndex)
		assert.Len(t, out.Effects, 6)
		assert.Equal(t, uint64(0), balance(l, a))
		assert.Equal(t, uint64(60), balance(l, b))
		assert.Equal(t, uint64(40), balance(l, c))
	})

	t.Run("empty batch", func(t *testing.T) {
		out := Apply(l, a, &types.BatchTransfer{})
		assert.True(t, out.Applied())
		assert.Empty(t, out.Effects)
	})
}

func TestTransferRequiresCaller(t *testing.T) {
	tf.UnitTest(t)

	b := testhelpers.RequireAccountID(t, "b")
	l := ledger.NewLedger()

	out := Apply(l, types.UndefAccountID, &types.Transfer{To: b, Amount: 0})
	assert.Equal(t, ReasonUnauthorized, out.Reason)
	assert.Equal(t, exitcode.ErrForbidden, out.ExitCode)
	assert.Equal(t, 0, l.Len())
}

func TestAuthorization(t *testing.T) {
	tf.UnitTest(t)

	addrGetter := testhelpers.NewForTestGetter()
	owner, delegate, stranger := addrGetter(), addrGetter(), addrGetter()
	l := ledger.NewLedger()
	requireApplied(t, l, owner, &types.Mint{To: owner, Amount: 50})

	t.Run("unauthorized burn leaves ledger unchanged", func(t *testing.T) {
		before := encoded(t, l)
		out := Apply(l, stranger, &types.Burn{From: owner, Amount: 10})
		assert.Equal(t, ReasonUnauthorized, out.Reason)
		assert.Equal(t, before, encoded(t, l))
	})

	requireApplied(t, l, owner, &types.Delegate{From: owner, To: delegate, Permissions: []string{ledger.PermBurn}})

	requireApplied(t, l, delegate, &types.Burn{From: owner, Amount: 10})
	assert.Equal(t, uint64(40), balance(l, owner))

	out := Apply(l, delegate, &types.Withdraw{From: owner, Amount: 10})
	assert.Equal(t, ReasonUnauthorized, out.Reason)

	out = Apply(l, delegate, &types.Delegate{From: owner, To: stranger, Permissions: []string{ledger.PermAll}})
	assert.Equal(t, ReasonUnauthorized, out.Reason)

	requireApplied(t, l, owner, &types.Delegate{From: owner, To: delegate, Permissions: []string{ledger.PermAll}})
	requireApplied(t, l, delegate, &types.Withdraw{From: owner, Amount: 15})
	assert.Equal(t, uint64(25), balance(l, owner))
	assert.Equal(t, uint64(25), l.TotalBalance())

	requireApplied(t, l, delegate, &types.Vote{ProposalID: 1, Voter: owner, Support: true})
	out = Apply(l, stranger, &types.Vote{ProposalID: 1, Voter: owner, Support: false})
	assert.Equal(t, ReasonUnauthorized, out.Reason)

	requireApplied(t, l, owner, &types.Revoke{From: owner, To: delegate})
	out = Apply(l, delegate, &types.Burn{From: owner, Amount: 1})
	assert.Equal(t, ReasonUnauthorized, out.Reason)
}

func TestDelegationIsIdempotent(t *testing.T) {
	tf.UnitTest(t)

	addrGetter := testhelpers.NewForTestGetter()
	a, b := addrGetter(), addrGetter()
	l := ledger.NewLedger()

	msg := &types.Delegate{From: a, To: b, Permissions: []string{ledger.PermVote, ledger.PermBurn}}
	requireApplied(t, l, a, msg)
	once := encoded(t, l)
	requireApplied(t, l, a, msg)
	assert.Equal(t, once, encoded(t, l))

	out := requireApplied(t, l, b, &types.Revoke{From: b, To: a})
	assert.Equal(t, []ledger.Event{ledger.Revoked{From: b, To: a}}, out.Effects)
}

func TestQueryBalanceCreatesAccount(t *testing.T) {
	tf.UnitTest(t)

	x := testhelpers.RequireAccountID(t, "x")
	l := ledger.NewLedger()

	out := requireApplied(t, l, types.UndefAccountID, &types.QueryBalance{Account: x})
	assert.Equal(t, []ledger.Event{ledger.BalanceQueried{Account: x, Balance: 0}}, out.Effects)
	assert.True(t, l.Has(x))
}

func TestCustomIsRecorded(t *testing.T) {
	tf.UnitTest(t)

	caller := testhelpers.RequireAccountID(t, "caller")
	l := ledger.NewLedger()

	out := requireApplied(t, l, caller, &types.Custom{Data: []byte("opaque")})
	assert.Equal(t, []ledger.Event{ledger.CustomReceived{Caller: caller, Data: []byte("opaque")}}, out.Effects)
	assert.Equal(t, 0, l.Len())
}

func TestMalformedMessages(t *testing.T) {
	tf.UnitTest(t)

	l := ledger.NewLedger()
	caller := testhelpers.RequireAccountID(t, "caller")

	out := Apply(l, caller, &types.Mint{Amount: 1})
	assert.Equal(t, ReasonMalformed, out.Reason)
	assert.Equal(t, exitcode.ErrSerialization, out.ExitCode)

	out = Apply(l, caller, nil)
	assert.Equal(t, ReasonMalformed, out.Reason)
	assert.Equal(t, 0, l.Len())

	for _, typ := range types.MessageTypes() {
		msg, err := types.NewMessage(typ)
		require.NoError(t, err)
		typedNil := reflect.Zero(reflect.TypeOf(msg)).Interface().(types.Message)

		out := Apply(l, caller, typedNil)
		assert.Equal(t, ReasonMalformed, out.Reason, "nil %s", typ)
	}
	assert.Equal(t, 0, l.Len())
}

func TestReasonStrings(t *testing.T) {
	tf.UnitTest(t)

	assert.Equal(t, "insufficient funds", ReasonInsufficientFunds.String())
	assert.Equal(t, "reason(42)", Reason(42).String())
	assert.Equal(t, exitcode.Ok, ReasonNone.ExitCode())
	assert.Equal(t, exitcode.SysErrInvalidMethod, ReasonUnknownMessage.ExitCode())
}
