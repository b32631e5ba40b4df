// Package store content-addresses payloads.
//
// A Store derives the id of a payload from its bytes, so putting the same
// bytes twice yields the same id and an id never names two payloads. There is
// no update or delete.
package store

import (
	"context"

	"github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/venus-ledger/pkg/constants"
	"github.com/filecoin-project/venus-ledger/pkg/metrics"
)

var log = logging.Logger("store")

var (
	// ErrNotFound is returned by Get for an id that was never put.
	ErrNotFound = xerrors.New("block not found")
	// ErrCapacityExceeded is returned by Put for a payload over the size
	// limit. Nothing is written.
	ErrCapacityExceeded = xerrors.New("payload exceeds capacity")
	// ErrBackendUnavailable wraps transient backend failures. The caller may
	// retry.
	ErrBackendUnavailable = xerrors.New("store backend unavailable")
)

var (
	putCount           = metrics.NewInt64Counter("store/puts", "Number of payloads put")
	putBytes           = metrics.NewInt64Sum("store/bytes_put", "Bytes of payload put", "By")
	capacityRejections = metrics.NewInt64Counter("store/capacity_rejections", "Number of payloads rejected by the size limit")
)

// Store maps payloads to content ids.
type Store interface {
	Put(ctx context.Context, data []byte) (cid.Cid, error)
	Get(ctx context.Context, c cid.Cid) ([]byte, error)
}

// Sum returns the id Put assigns to data without storing it.
func Sum(data []byte) (cid.Cid, error) {
	return constants.DefaultCidBuilder.Sum(data)
}
