package testhelpers

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/venus-ledger/pkg/types"
)

// RequireAccountID returns the account id of payload.
func RequireAccountID(t *testing.T, payload string) types.AccountID {
	id, err := types.NewAccountID([]byte(payload))
	require.NoError(t, err)
	return id
}

// NewForTestGetter returns a closure that returns an account id unique to that
// invocation. The id is unique wrt the closure returned, not globally.
func NewForTestGetter() func() types.AccountID {
	i := 0
	return func() types.AccountID {
		s := fmt.Sprintf("account%d", i)
		i++
		return types.MustNewAccountID([]byte(s))
	}
}
