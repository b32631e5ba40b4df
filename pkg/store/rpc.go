package store

import (
	"context"
	"net/http"
	"time"

	"github.com/filecoin-project/go-jsonrpc"
	"github.com/filecoin-project/go-jsonrpc/auth"
	"github.com/ipfs/go-cid"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/venus-ledger/pkg/jwtauth"
)

// RPCNamespace is the JSON-RPC namespace the store methods live in.
const RPCNamespace = "Ledger"

// RemoteBlock is the reply to BlockGet. A missing block is not an error on
// the wire, so transport failures stay distinguishable from absence.
type RemoteBlock struct {
	Found bool
	Data  []byte
}

// RemoteStoreAPI is served by RPCHandler and consumed by RPCStore.
type RemoteStoreAPI interface {
	BlockPut(ctx context.Context, data []byte) (cid.Cid, error)
	BlockGet(ctx context.Context, c cid.Cid) (*RemoteBlock, error)
}

// RemoteStoreStruct is the client side of RemoteStoreAPI.
type RemoteStoreStruct struct {
	Internal struct {
		BlockPut func(ctx context.Context, data []byte) (cid.Cid, error)    `perm:"write"`
		BlockGet func(ctx context.Context, c cid.Cid) (*RemoteBlock, error) `perm:"read"`
	}
}

var _ RemoteStoreAPI = (*RemoteStoreStruct)(nil)

func (s *RemoteStoreStruct) BlockPut(ctx context.Context, data []byte) (cid.Cid, error) {
	return s.Internal.BlockPut(ctx, data)
}

func (s *RemoteStoreStruct) BlockGet(ctx context.Context, c cid.Cid) (*RemoteBlock, error) {
	return s.Internal.BlockGet(ctx, c)
}

// RPCStore is a Store backed by a remote RPCHandler.
type RPCStore struct {
	api     RemoteStoreAPI
	closer  jsonrpc.ClientCloser
	timeout time.Duration
}

var _ Store = (*RPCStore)(nil)

// DialRPCStore connects to the store served at addr, e.g.
// ws://127.0.0.1:3460/rpc/v0. A timeout of zero leaves calls bounded only by
// their context.
func DialRPCStore(ctx context.Context, addr string, header http.Header, timeout time.Duration) (*RPCStore, error) {
	var res RemoteStoreStruct
	closer, err := jsonrpc.NewMergeClient(ctx, addr, RPCNamespace,
		[]interface{}{
			&res.Internal,
		},
		header,
	)
	if err != nil {
		return nil, xerrors.Errorf("dial store at %s: %v: %w", addr, err, ErrBackendUnavailable)
	}
	return &RPCStore{api: &res, closer: closer, timeout: timeout}, nil
}

// Close drops the connection.
func (s *RPCStore) Close() {
	s.closer()
}

func (s *RPCStore) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Put implements Store. The id returned by the server is checked against the
// local hash of data.
func (s *RPCStore) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	want, err := Sum(data)
	if err != nil {
		return cid.Undef, xerrors.Errorf("hash payload: %w", err)
	}

	ctx, cancel := s.callCtx(ctx)
	defer cancel()
	got, err := s.api.BlockPut(ctx, data)
	if err != nil {
		return cid.Undef, xerrors.Errorf("remote put: %v: %w", err, ErrBackendUnavailable)
	}
	if !got.Equals(want) {
		return cid.Undef, xerrors.Errorf("remote store returned %s for payload %s", got, want)
	}
	return want, nil
}

// Get implements Store. Returned payloads are rehashed before use.
func (s *RPCStore) Get(ctx context.Context, c cid.Cid) ([]byte, error) {
	ctx, cancel := s.callCtx(ctx)
	defer cancel()
	blk, err := s.api.BlockGet(ctx, c)
	if err != nil {
		return nil, xerrors.Errorf("remote get %s: %v: %w", c, err, ErrBackendUnavailable)
	}
	if blk == nil || !blk.Found {
		return nil, xerrors.Errorf("get %s: %w", c, ErrNotFound)
	}
	chk, err := c.Prefix().Sum(blk.Data)
	if err != nil {
		return nil, xerrors.Errorf("rehash %s: %w", c, err)
	}
	if !chk.Equals(c) {
		return nil, xerrors.Errorf("remote store returned data hashing to %s for %s", chk, c)
	}
	return blk.Data, nil
}

// RPCHandler serves a Store over JSON-RPC.
type RPCHandler struct {
	store Store
}

var _ RemoteStoreAPI = (*RPCHandler)(nil)

// NewRPCHandler serves s.
func NewRPCHandler(s Store) *RPCHandler {
	return &RPCHandler{store: s}
}

// BlockPut implements RemoteStoreAPI.
func (h *RPCHandler) BlockPut(ctx context.Context, data []byte) (cid.Cid, error) {
	return h.store.Put(ctx, data)
}

// BlockGet implements RemoteStoreAPI.
func (h *RPCHandler) BlockGet(ctx context.Context, c cid.Cid) (*RemoteBlock, error) {
	data, err := h.store.Get(ctx, c)
	if xerrors.Is(err, ErrNotFound) {
		return &RemoteBlock{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &RemoteBlock{Found: true, Data: data}, nil
}

// Verifier resolves a bearer token to the permissions it grants.
type Verifier interface {
	Verify(ctx context.Context, token string) ([]auth.Permission, error)
}

// NewRPCServer returns an http handler serving s under RPCNamespace. With a
// nil verifier every method is open. Otherwise each call needs the
// permission in its perm tag, and requests without a token only get
// jwtauth.DefaultPerms.
func NewRPCServer(s Store, v Verifier) http.Handler {
	srv := jsonrpc.NewServer()
	if v == nil {
		srv.Register(RPCNamespace, NewRPCHandler(s))
		return srv
	}

	var out RemoteStoreStruct
	auth.PermissionedProxy(jwtauth.AllPermissions, jwtauth.DefaultPerms, NewRPCHandler(s), &out.Internal)
	srv.Register(RPCNamespace, &out)
	return &auth.Handler{
		Verify: v.Verify,
		Next:   srv.ServeHTTP,
	}
}
