package types

import (
	"encoding/json"

	cbor "github.com/ipfs/go-ipld-cbor"
	"golang.org/x/xerrors"
)

func init() {
	cbor.RegisterCborType(Transfer{})
	cbor.RegisterCborType(Mint{})
	cbor.RegisterCborType(Burn{})
	cbor.RegisterCborType(SetData{})
	cbor.RegisterCborType(Delegate{})
	cbor.RegisterCborType(Revoke{})
	cbor.RegisterCborType(TransferEntry{})
	cbor.RegisterCborType(BatchTransfer{})
	cbor.RegisterCborType(QueryBalance{})
	cbor.RegisterCborType(Vote{})
	cbor.RegisterCborType(Withdraw{})
	cbor.RegisterCborType(Custom{})
	cbor.RegisterCborType(cborEnvelope{})
}

// Envelope is a message together with the account applying it.
type Envelope struct {
	Caller  AccountID
	Message Message
}

// Validate checks the caller and the message references.
func (e *Envelope) Validate() error {
	if err := requireDefined("caller", e.Caller); err != nil {
		return err
	}
	if e.Message == nil {
		return xerrors.Errorf("missing message: %w", ErrMalformedMessage)
	}
	return e.Message.Validate()
}

// EncodeMessageJSON renders m as a flat JSON object whose "type" member names
// the variant, e.g. {"amount":5,"to":{"/":"bafy..."},"type":"transfer"}.
func EncodeMessageJSON(m Message) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	tag, err := json.Marshal(m.Type())
	if err != nil {
		return nil, err
	}
	fields["type"] = tag
	return json.Marshal(fields)
}

// DecodeMessageJSON is the inverse of EncodeMessageJSON. Every failure wraps
// ErrMalformedMessage.
func DecodeMessageJSON(data []byte) (Message, error) {
	var head struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, xerrors.Errorf("decode message tag: %v: %w", err, ErrMalformedMessage)
	}
	m, err := NewMessage(head.Type)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, xerrors.Errorf("decode %s message: %v: %w", head.Type, err, ErrMalformedMessage)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

type jsonEnvelope struct {
	Caller  AccountID       `json:"caller"`
	Message json.RawMessage `json:"message"`
}

// MarshalJSON implements json.Marshaler.
func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.Message == nil {
		return nil, xerrors.Errorf("missing message: %w", ErrMalformedMessage)
	}
	msg, err := EncodeMessageJSON(e.Message)
	if err != nil {
		return nil, err
	}
	return json.Marshal(jsonEnvelope{Caller: e.Caller, Message: msg})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var raw jsonEnvelope
	if err := json.Unmarshal(data, &raw); err != nil {
		return xerrors.Errorf("decode envelope: %v: %w", err, ErrMalformedMessage)
	}
	if len(raw.Message) == 0 {
		return xerrors.Errorf("missing message: %w", ErrMalformedMessage)
	}
	msg, err := DecodeMessageJSON(raw.Message)
	if err != nil {
		return err
	}
	e.Caller = raw.Caller
	e.Message = msg
	return requireDefined("caller", e.Caller)
}

// cborEnvelope is the dag-cbor form of an Envelope. Body holds the
// dag-cbor encoding of the variant named by Type.
type cborEnvelope struct {
	Caller AccountID
	Type   string
	Body   []byte
}

// EncodeCBOR encodes the envelope as dag-cbor. Account ids are written as
// CID links, so the encoding is itself content-addressable.
func (e *Envelope) EncodeCBOR() ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	body, err := cbor.DumpObject(e.Message)
	if err != nil {
		return nil, xerrors.Errorf("encode %s message: %w", e.Message.Type(), err)
	}
	return cbor.DumpObject(&cborEnvelope{
		Caller: e.Caller,
		Type:   string(e.Message.Type()),
		Body:   body,
	})
}

// DecodeCBOR decodes an envelope written by EncodeCBOR.
func (e *Envelope) DecodeCBOR(data []byte) error {
	var raw cborEnvelope
	if err := cbor.DecodeInto(data, &raw); err != nil {
		return xerrors.Errorf("decode envelope: %v: %w", err, ErrMalformedMessage)
	}
	msg, err := NewMessage(MessageType(raw.Type))
	if err != nil {
		return err
	}
	if err := cbor.DecodeInto(raw.Body, msg); err != nil {
		return xerrors.Errorf("decode %s message: %v: %w", raw.Type, err, ErrMalformedMessage)
	}
	e.Caller = raw.Caller
	e.Message = msg
	return e.Validate()
}
