package constants

import (
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// DefaultHashFunction is the multihash every stored payload is addressed with.
const DefaultHashFunction = multihash.SHA2_256

// DefaultCidBuilder tags payload digests with the dag-cbor codec. Changing either
// field changes every identifier the ledger has ever handed out.
var DefaultCidBuilder = cid.V1Builder{Codec: cid.DagCBOR, MhType: DefaultHashFunction}

// DefaultMaxPayloadSize is the admission limit used when none is configured.
const DefaultMaxPayloadSize = 1 << 20

// DefaultCacheSize is the number of payloads kept by the read-through store cache.
const DefaultCacheSize = 1024
