// Package jwtauth issues and verifies the bearer tokens guarding the store
// RPC endpoint.
package jwtauth

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/filecoin-project/go-jsonrpc/auth"
	jwt3 "github.com/gbrlsnchs/jwt/v3"
	"github.com/ipfs/go-datastore"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"
)

var jwtLog = logging.Logger("jwt")

// Permissions understood by the store endpoint.
const (
	PermRead  auth.Permission = "read"
	PermWrite auth.Permission = "write"
	PermAdmin auth.Permission = "admin"
)

var (
	// AllPermissions lists every permission a token may carry.
	AllPermissions = []auth.Permission{PermRead, PermWrite, PermAdmin}
	// DefaultPerms apply to requests without a token.
	DefaultPerms = []auth.Permission{PermRead}
)

// SecretKey is where the HMAC secret lives in the repo datastore.
var SecretKey = datastore.NewKey("/auth/jwt-hmac-secret")

const secretSize = 32

// ErrUnknownPermission is returned when a token is requested for a
// permission outside AllPermissions.
var ErrUnknownPermission = fmt.Errorf("unknown permission")

type JwtPayload struct {
	Allow []auth.Permission
}

// JwtAuth signs and verifies HS256 tokens with a secret kept in the repo.
type JwtAuth struct {
	apiSecret *jwt3.HMACSHA
}

// NewJwtAuth loads the secret from ds, generating and persisting one on
// first use.
func NewJwtAuth(ctx context.Context, ds datastore.Datastore) (*JwtAuth, error) {
	secret, err := loadAPISecret(ctx, ds)
	if err != nil {
		return nil, err
	}
	return &JwtAuth{apiSecret: jwt3.NewHS256(secret)}, nil
}

func loadAPISecret(ctx context.Context, ds datastore.Datastore) ([]byte, error) {
	secret, err := ds.Get(ctx, SecretKey)
	if err == nil {
		return secret, nil
	}
	if !errors.Is(err, datastore.ErrNotFound) {
		return nil, errors.Wrap(err, "could not read api secret")
	}

	jwtLog.Warn("Generating new API secret")
	secret = make([]byte, secretSize)
	if _, err := rand.Read(secret); err != nil {
		return nil, errors.Wrap(err, "failed to generate api secret")
	}
	if err := ds.Put(ctx, SecretKey, secret); err != nil {
		return nil, errors.Wrap(err, "failed to store api secret")
	}
	return secret, nil
}

// Verify returns the permissions carried by token.
func (a *JwtAuth) Verify(ctx context.Context, token string) ([]auth.Permission, error) {
	var payload JwtPayload
	if _, err := jwt3.Verify([]byte(token), a.apiSecret, &payload); err != nil {
		return nil, errors.Errorf("JWT Verification failed: %v", err)
	}
	return payload.Allow, nil
}

// AuthNew signs a token granting perms.
func (a *JwtAuth) AuthNew(ctx context.Context, perms []auth.Permission) ([]byte, error) {
	for _, p := range perms {
		if !known(p) {
			return nil, errors.Wrapf(ErrUnknownPermission, "%q", p)
		}
	}
	return jwt3.Sign(&JwtPayload{Allow: perms}, a.apiSecret)
}

func known(p auth.Permission) bool {
	for _, q := range AllPermissions {
		if p == q {
			return true
		}
	}
	return false
}
