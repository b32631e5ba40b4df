package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/venus-ledger/pkg/constants"
	tf "github.com/filecoin-project/venus-ledger/pkg/testhelpers/testflags"
)

func newID(t *testing.T, s string) cid.Cid {
	c, err := constants.DefaultCidBuilder.Sum([]byte(s))
	require.NoError(t, err)
	return c
}

func requireEncoded(t *testing.T, l *Ledger) []byte {
	data, err := l.Encode()
	require.NoError(t, err)
	return data
}

func TestGetOrCreate(t *testing.T) {
	tf.UnitTest(t)

	l := NewLedger()
	a := newID(t, "a")

	_, ok := l.Get(a)
	assert.False(t, ok)
	assert.False(t, l.Has(a))

	act := l.GetOrCreate(a)
	assert.True(t, act.Empty())
	assert.True(t, l.Has(a))
	assert.Equal(t, 1, l.Len())

	assert.False(t, l.Register(a))
	assert.True(t, l.Register(newID(t, "b")))
	assert.Equal(t, 2, l.Len())
}

func TestMintAndBurn(t *testing.T) {
	tf.UnitTest(t)

	l := NewLedger()
	a := newID(t, "a")

	effects, err := l.Mint(a, 100)
	require.NoError(t, err)
	assert.Equal(t, []Event{
		Credited{Account: a, Amount: 100, Balance: 100},
		SupplyIncreased{Amount: 100, Total: 100},
	}, effects)
	assert.Equal(t, uint64(100), l.TotalBalance())

	effects, err = l.Burn(a, 40)
	require.NoError(t, err)
	assert.Equal(t, []Event{
		Debited{Account: a, Amount: 40, Balance: 60},
		SupplyDecreased{Amount: 40, Total: 60},
	}, effects)
	assert.Equal(t, uint64(60), l.TotalBalance())

	t.Run("burn beyond balance leaves ledger unchanged", func(t *testing.T) {
		before := requireEncoded(t, l)
		_, err := l.Burn(a, 61)
		assert.True(t, xerrors.Is(err, ErrInsufficientFunds))
		assert.Equal(t, before, requireEncoded(t, l))
	})

	t.Run("mint past the total overflows", func(t *testing.T) {
		before := requireEncoded(t, l)
		_, err := l.Mint(newID(t, "b"), ^uint64(0))
		assert.True(t, xerrors.Is(err, ErrOverflow))
		assert.Equal(t, before, requireEncoded(t, l))
	})

	require.NoError(t, l.CheckInvariants())
}

func TestTransfer(t *testing.T) {
	tf.UnitTest(t)

	l := NewLedger()
	a, b := newID(t, "a"), newID(t, "b")
	_, err := l.Mint(a, 10)
	require.NoError(t, err)

	_, err = l.Transfer(a, b, 4)
	require.NoError(t, err)

	actA, _ := l.Get(a)
	actB, _ := l.Get(b)
	assert.Equal(t, uint64(6), actA.Balance)
	assert.Equal(t, uint64(4), actB.Balance)
	assert.Equal(t, uint64(10), l.TotalBalance())

	_, err = l.Transfer(a, b, 7)
	assert.True(t, xerrors.Is(err, ErrInsufficientFunds))

	_, err = l.Transfer(b, newID(t, "c"), 5)
	assert.True(t, xerrors.Is(err, ErrInsufficientFunds))
	assert.False(t, l.Has(newID(t, "c")))

	t.Run("zero self transfer creates the account", func(t *testing.T) {
		d := newID(t, "d")
		effects, err := l.Transfer(d, d, 0)
		require.NoError(t, err)
		assert.Equal(t, []Event{
			Debited{Account: d, Amount: 0, Balance: 0},
			Credited{Account: d, Amount: 0, Balance: 0},
		}, effects)
		assert.True(t, l.Has(d))

		_, err = l.Transfer(newID(t, "e"), newID(t, "e"), 1)
		assert.True(t, xerrors.Is(err, ErrInsufficientFunds))
		assert.False(t, l.Has(newID(t, "e")))
	})

	t.Run("self transfer", func(t *testing.T) {
		_, err := l.Transfer(a, a, 6)
		require.NoError(t, err)
		act, _ := l.Get(a)
		assert.Equal(t, uint64(6), act.Balance)

		_, err = l.Transfer(a, a, 7)
		assert.True(t, xerrors.Is(err, ErrInsufficientFunds))
	})

	require.NoError(t, l.CheckInvariants())
}

func TestDelegateAndRevoke(t *testing.T) {
	tf.UnitTest(t)

	l := NewLedger()
	a, b := newID(t, "a"), newID(t, "b")

	ev := l.Delegate(a, b, []string{PermBurn, PermVote, PermBurn})
	assert.Equal(t, Delegated{From: a, To: b, Permissions: []string{PermBurn, PermVote}}, ev)
	once := requireEncoded(t, l)

	l.Delegate(a, b, []string{PermVote, PermBurn})
	assert.Equal(t, once, requireEncoded(t, l))

	act, _ := l.Get(a)
	assert.True(t, act.Permits(b, PermBurn))
	assert.False(t, act.Permits(b, PermWithdraw))
	assert.False(t, act.Permits(a, PermBurn))

	ev = l.Revoke(a, b)
	assert.Equal(t, Revoked{From: a, To: b, Permissions: []string{PermBurn, PermVote}}, ev)
	act, _ = l.Get(a)
	assert.False(t, act.Permits(b, PermBurn))

	ev = l.Revoke(a, b)
	assert.Empty(t, ev.(Revoked).Permissions)
}

func TestVoteAndTally(t *testing.T) {
	tf.UnitTest(t)

	l := NewLedger()
	a, b, c := newID(t, "a"), newID(t, "b"), newID(t, "c")

	l.Vote(a, 1, true)
	l.Vote(b, 1, false)
	l.Vote(c, 1, false)
	l.Vote(c, 1, true)
	l.Vote(c, 2, false)

	support, against := l.Tally(1)
	assert.Equal(t, uint64(2), support)
	assert.Equal(t, uint64(1), against)

	support, against = l.Tally(2)
	assert.Equal(t, uint64(0), support)
	assert.Equal(t, uint64(1), against)
}

func TestSnapshotRevert(t *testing.T) {
	tf.UnitTest(t)

	l := NewLedger()
	a, b := newID(t, "a"), newID(t, "b")
	_, err := l.Mint(a, 50)
	require.NoError(t, err)
	before := requireEncoded(t, l)

	l.Snapshot()
	_, err = l.Transfer(a, b, 20)
	require.NoError(t, err)
	l.SetData(a, "k", []byte("v"))
	assert.Equal(t, 2, l.Len())
	l.Revert()
	l.ClearSnapshot()

	assert.Equal(t, before, requireEncoded(t, l))
	assert.False(t, l.Has(b))

	l.Snapshot()
	_, err = l.Transfer(a, b, 20)
	require.NoError(t, err)
	l.ClearSnapshot()

	actB, ok := l.Get(b)
	require.True(t, ok)
	assert.Equal(t, uint64(20), actB.Balance)
	assert.Equal(t, uint64(50), l.TotalBalance())

	t.Run("encode refuses open snapshots", func(t *testing.T) {
		l.Snapshot()
		defer l.ClearSnapshot()
		_, err := l.Encode()
		assert.Error(t, err)
	})
}

func TestAccountCopiesOnWrite(t *testing.T) {
	tf.UnitTest(t)

	a := Account{}.SetData("k", []byte("v1"))
	b := a.SetData("k", []byte("v2"))
	assert.Equal(t, []byte("v1"), a.Data["k"])
	assert.Equal(t, []byte("v2"), b.Data["k"])

	c, set := Account{}.Delegate(newID(t, "x"), nil)
	assert.Nil(t, set)
	assert.True(t, c.Empty())
}

func TestReadsReturnCopies(t *testing.T) {
	tf.UnitTest(t)

	l := NewLedger()
	a, b := newID(t, "a"), newID(t, "b")
	l.SetData(a, "k", []byte("v"))
	l.Vote(a, 1, true)
	ev := l.Delegate(a, b, []string{PermVote})
	before := requireEncoded(t, l)

	act, ok := l.Get(a)
	require.True(t, ok)
	act.Data["k"][0] = 'X'
	act.Data["injected"] = []byte("!")
	act.Delegations[b][0] = PermAll
	act.Votes[1] = false

	created := l.GetOrCreate(a)
	created.Delegations[b] = append(created.Delegations[b], PermBurn)

	ev.(Delegated).Permissions[0] = PermAll

	_ = l.ForEach(func(_ cid.Cid, act Account) error {
		for k := range act.Data {
			act.Data[k] = nil
		}
		return nil
	})

	assert.Equal(t, before, requireEncoded(t, l))
	stored, _ := l.Get(a)
	assert.Equal(t, []byte("v"), stored.Data["k"])
	assert.False(t, stored.Permits(b, PermBurn))
	assert.True(t, stored.Votes[1])

	t.Run("revoked permissions are a copy", func(t *testing.T) {
		l.Snapshot()
		ev := l.Revoke(a, b)
		ev.(Revoked).Permissions[0] = PermAll
		l.Revert()
		l.ClearSnapshot()

		stored, _ := l.Get(a)
		assert.Equal(t, []string{PermVote}, stored.Delegations[b])
	})
}

type memStore struct {
	lk     sync.Mutex
	blocks map[cid.Cid][]byte
}

func (m *memStore) Put(_ context.Context, data []byte) (cid.Cid, error) {
	c, err := constants.DefaultCidBuilder.Sum(data)
	if err != nil {
		return cid.Undef, err
	}
	m.lk.Lock()
	defer m.lk.Unlock()
	m.blocks[c] = data
	return c, nil
}

func (m *memStore) Get(_ context.Context, c cid.Cid) ([]byte, error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	data, ok := m.blocks[c]
	if !ok {
		return nil, xerrors.Errorf("block %s not found", c)
	}
	return data, nil
}

func TestFlushAndLoad(t *testing.T) {
	tf.UnitTest(t)

	ctx := context.Background()
	s := &memStore{blocks: make(map[cid.Cid][]byte)}

	l := NewLedger()
	a, b := newID(t, "a"), newID(t, "b")
	_, err := l.Mint(a, 100)
	require.NoError(t, err)
	_, err = l.Transfer(a, b, 30)
	require.NoError(t, err)
	l.Delegate(a, b, []string{PermBurn})
	l.SetData(b, "name", []byte("bob"))
	l.Vote(a, 7, true)

	root, err := l.Flush(ctx, s)
	require.NoError(t, err)

	again, err := l.Flush(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, root, again)

	loaded, err := Load(ctx, s, root)
	require.NoError(t, err)
	assert.Equal(t, l.TotalBalance(), loaded.TotalBalance())
	assert.Equal(t, requireEncoded(t, l), requireEncoded(t, loaded))

	actA, _ := loaded.Get(a)
	actB, _ := loaded.Get(b)
	assert.Equal(t, uint64(70), actA.Balance)
	assert.Equal(t, uint64(30), actB.Balance)
	assert.True(t, actA.Permits(b, PermBurn))
	assert.Equal(t, []byte("bob"), actB.Data["name"])
	assert.True(t, actA.Votes[7])

	_, err = Load(ctx, s, newID(t, "missing"))
	assert.Error(t, err)
}

func TestDecodeRejectsBrokenTotal(t *testing.T) {
	tf.UnitTest(t)

	l := NewLedger()
	_, err := l.Mint(newID(t, "a"), 5)
	require.NoError(t, err)
	l.snaps.setTotal(6)

	_, err = Decode(requireEncoded(t, l))
	assert.True(t, xerrors.Is(err, ErrInvariantViolated))
}
