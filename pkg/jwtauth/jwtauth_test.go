package jwtauth

import (
	"context"
	"testing"

	"github.com/filecoin-project/go-jsonrpc/auth"
	"github.com/ipfs/go-datastore"
	dss "github.com/ipfs/go-datastore/sync"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tf "github.com/filecoin-project/venus-ledger/pkg/testhelpers/testflags"
)

func TestTokenRoundTrip(t *testing.T) {
	tf.UnitTest(t)

	ctx := context.Background()
	a, err := NewJwtAuth(ctx, dss.MutexWrap(datastore.NewMapDatastore()))
	require.NoError(t, err)

	token, err := a.AuthNew(ctx, []auth.Permission{PermRead, PermWrite})
	require.NoError(t, err)

	perms, err := a.Verify(ctx, string(token))
	require.NoError(t, err)
	assert.Equal(t, []auth.Permission{PermRead, PermWrite}, perms)

	_, err = a.Verify(ctx, string(token)+"x")
	assert.Error(t, err)

	_, err = a.AuthNew(ctx, []auth.Permission{"root"})
	assert.True(t, errors.Is(err, ErrUnknownPermission))
}

func TestSecretPersists(t *testing.T) {
	tf.UnitTest(t)

	ctx := context.Background()
	ds := dss.MutexWrap(datastore.NewMapDatastore())

	first, err := NewJwtAuth(ctx, ds)
	require.NoError(t, err)
	token, err := first.AuthNew(ctx, []auth.Permission{PermAdmin})
	require.NoError(t, err)

	second, err := NewJwtAuth(ctx, ds)
	require.NoError(t, err)
	perms, err := second.Verify(ctx, string(token))
	require.NoError(t, err)
	assert.Equal(t, []auth.Permission{PermAdmin}, perms)

	other, err := NewJwtAuth(ctx, dss.MutexWrap(datastore.NewMapDatastore()))
	require.NoError(t, err)
	_, err = other.Verify(ctx, string(token))
	assert.Error(t, err)
}
