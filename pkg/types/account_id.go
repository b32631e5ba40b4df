package types

import (
	"github.com/ipfs/go-cid"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/venus-ledger/pkg/constants"
)

// AccountID identifies an actor. It is the content identifier of the payload
// the actor was registered with, so two ids are equal iff their bytes are.
type AccountID = cid.Cid

// UndefAccountID is the zero value, never a valid account.
var UndefAccountID = cid.Undef

// NewAccountID derives the identifier of the given payload.
func NewAccountID(payload []byte) (AccountID, error) {
	return constants.DefaultCidBuilder.Sum(payload)
}

// MustNewAccountID is NewAccountID for fixtures and tests.
func MustNewAccountID(payload []byte) AccountID {
	c, err := NewAccountID(payload)
	if err != nil {
		panic(err)
	}
	return c
}

// ParseAccountID parses the canonical text form produced by AccountID.String.
func ParseAccountID(s string) (AccountID, error) {
	c, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, xerrors.Errorf("invalid account id %q: %w", s, err)
	}
	return c, nil
}
