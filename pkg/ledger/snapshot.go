package ledger

import (
	"github.com/ipfs/go-cid"
)

// ledgerSnaps is a stack of write layers. Reads fall through from the top
// layer to the bottom one, writes only touch the top layer. Layer 0 is the
// committed ledger.
type ledgerSnaps struct {
	layers []*ledgerSnapLayer
}

type ledgerSnapLayer struct {
	accounts map[cid.Cid]Account
	total    uint64
	totalSet bool
}

func newLedgerSnapLayer() *ledgerSnapLayer {
	return &ledgerSnapLayer{
		accounts: make(map[cid.Cid]Account),
	}
}

func newLedgerSnaps() *ledgerSnaps {
	ss := &ledgerSnaps{}
	ss.addLayer()
	ss.layers[0].totalSet = true
	return ss
}

func (ss *ledgerSnaps) addLayer() {
	ss.layers = append(ss.layers, newLedgerSnapLayer())
}

func (ss *ledgerSnaps) dropLayer() {
	ss.layers[len(ss.layers)-1] = nil // allow it to be GCed
	ss.layers = ss.layers[:len(ss.layers)-1]
}

func (ss *ledgerSnaps) mergeLastLayer() {
	last := ss.layers[len(ss.layers)-1]
	nextLast := ss.layers[len(ss.layers)-2]

	for k, v := range last.accounts {
		nextLast.accounts[k] = v
	}
	if last.totalSet {
		nextLast.total = last.total
		nextLast.totalSet = true
	}

	ss.dropLayer()
}

func (ss *ledgerSnaps) top() *ledgerSnapLayer {
	return ss.layers[len(ss.layers)-1]
}

func (ss *ledgerSnaps) getAccount(id cid.Cid) (Account, bool) {
	for i := len(ss.layers) - 1; i >= 0; i-- {
		act, ok := ss.layers[i].accounts[id]
		if ok {
			return act, true
		}
	}
	return Account{}, false
}

func (ss *ledgerSnaps) setAccount(id cid.Cid, act Account) {
	ss.top().accounts[id] = act
}

func (ss *ledgerSnaps) getTotal() uint64 {
	for i := len(ss.layers) - 1; i >= 0; i-- {
		if ss.layers[i].totalSet {
			return ss.layers[i].total
		}
	}
	return 0
}

func (ss *ledgerSnaps) setTotal(total uint64) {
	l := ss.top()
	l.total = total
	l.totalSet = true
}
