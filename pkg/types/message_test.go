package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	tf "github.com/filecoin-project/venus-ledger/pkg/testhelpers/testflags"
)

func sampleMessages(t *testing.T) []Message {
	a := MustNewAccountID([]byte("a"))
	b := MustNewAccountID([]byte("b"))
	return []Message{
		&Transfer{To: b, Amount: 5},
		&Mint{To: a, Amount: 1 << 62},
		&Burn{From: a, Amount: 3},
		&SetData{Key: "name", Value: []byte("alice")},
		&Delegate{From: a, To: b, Permissions: []string{"burn", "vote"}},
		&Revoke{From: a, To: b},
		&BatchTransfer{Transfers: []TransferEntry{{To: a, Amount: 1}, {To: b, Amount: 2}}},
		&QueryBalance{Account: b},
		&Vote{ProposalID: 42, Voter: a, Support: true},
		&Withdraw{From: b, Amount: 9},
		&Custom{Data: []byte{0, 1, 2}},
	}
}

func TestSamplesCoverEveryType(t *testing.T) {
	tf.UnitTest(t)

	seen := make(map[MessageType]bool)
	for _, m := range sampleMessages(t) {
		seen[m.Type()] = true
	}
	for _, typ := range MessageTypes() {
		assert.True(t, seen[typ], "no sample for %s", typ)
	}
	assert.Len(t, MessageTypes(), len(seen))
}

func TestMessageJSONRoundTrip(t *testing.T) {
	tf.UnitTest(t)

	for _, m := range sampleMessages(t) {
		t.Run(string(m.Type()), func(t *testing.T) {
			data, err := EncodeMessageJSON(m)
			require.NoError(t, err)

			var fields map[string]interface{}
			require.NoError(t, json.Unmarshal(data, &fields))
			assert.Equal(t, string(m.Type()), fields["type"])

			out, err := DecodeMessageJSON(data)
			require.NoError(t, err)
			assert.Equal(t, m, out)
		})
	}
}

func TestMessageJSONFieldNames(t *testing.T) {
	tf.UnitTest(t)

	a := MustNewAccountID([]byte("a"))
	data, err := EncodeMessageJSON(&Vote{ProposalID: 1, Voter: a, Support: false})
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Contains(t, fields, "proposalId")
	assert.Contains(t, fields, "voter")
	assert.Contains(t, fields, "support")
}

func TestEnvelopeRoundTrip(t *testing.T) {
	tf.UnitTest(t)

	caller := MustNewAccountID([]byte("caller"))
	for _, m := range sampleMessages(t) {
		t.Run(string(m.Type()), func(t *testing.T) {
			env := Envelope{Caller: caller, Message: m}

			js, err := json.Marshal(env)
			require.NoError(t, err)
			var fromJSON Envelope
			require.NoError(t, json.Unmarshal(js, &fromJSON))
			assert.Equal(t, env, fromJSON)

			cb, err := env.EncodeCBOR()
			require.NoError(t, err)
			var fromCBOR Envelope
			require.NoError(t, fromCBOR.DecodeCBOR(cb))
			assert.Equal(t, env, fromCBOR)
		})
	}
}

func TestMalformedMessages(t *testing.T) {
	tf.UnitTest(t)

	cases := map[string]string{
		"not json":       `{"type":`,
		"unknown tag":    `{"type":"teleport","to":{"/":"bafy"}}`,
		"missing tag":    `{"amount":5}`,
		"bad cid":        `{"type":"transfer","to":{"/":"not-a-cid"},"amount":5}`,
		"missing to":     `{"type":"mint","amount":5}`,
		"negative":       `{"type":"burn","from":null,"amount":-1}`,
		"wrong field ty": `{"type":"vote","proposalId":"one"}`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeMessageJSON([]byte(in))
			assert.True(t, xerrors.Is(err, ErrMalformedMessage), "got %v", err)
		})
	}

	var env Envelope
	err := json.Unmarshal([]byte(`{"message":{"type":"custom","data":null}}`), &env)
	assert.True(t, xerrors.Is(err, ErrMalformedMessage))

	err = env.DecodeCBOR([]byte{0xff, 0x00})
	assert.True(t, xerrors.Is(err, ErrMalformedMessage))

	_, err = NewMessage("teleport")
	assert.True(t, xerrors.Is(err, ErrMalformedMessage))
}

func TestAccountIDTextRoundTrip(t *testing.T) {
	tf.UnitTest(t)

	id, err := NewAccountID([]byte("payload"))
	require.NoError(t, err)

	parsed, err := ParseAccountID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	same, err := NewAccountID([]byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, id, same)

	_, err = ParseAccountID("nope")
	assert.Error(t, err)
}
