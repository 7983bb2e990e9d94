package protocol

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var (
	// ErrMalformed reports a frame or body that is not valid for its type.
	ErrMalformed = errors.New("malformed frame")

	// ErrTagMismatch reports a well-formed frame carrying another type.
	ErrTagMismatch = errors.New("type tag mismatch")
)

// RawMessage is an undecoded CBOR body. Type alias so consumers import
// only this package, not fxamacker/cbor directly.
type RawMessage = cbor.RawMessage

// encMode is the CBOR encoder configured with Core Deterministic
// Encoding: the same payload always produces identical bytes.
var encMode cbor.EncMode

// decMode accepts standard CBOR and ignores unknown fields so older peers
// can read payloads that gained fields.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("protocol: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("protocol: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes msg into an envelope frame.
func Marshal[T Payload](msg T) ([]byte, error) {
	body, err := encMode.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Tag(), err)
	}
	return encMode.Marshal(envelope{Tag: msg.Tag(), Body: body})
}

// Open splits a frame into its tag and undecoded body.
func Open(data []byte) (string, RawMessage, error) {
	var env envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Tag == "" {
		return "", nil, fmt.Errorf("%w: missing tag", ErrMalformed)
	}
	if len(env.Body) == 0 {
		return "", nil, fmt.Errorf("%w: missing body", ErrMalformed)
	}
	return env.Tag, env.Body, nil
}

// Decode decodes body as a T, provided tag names T.
func Decode[T Payload](tag string, body RawMessage) (T, error) {
	var msg T
	if want := TagOf[T](); tag != want {
		return msg, fmt.Errorf("%w: got %q, want %q", ErrTagMismatch, tag, want)
	}
	if err := decMode.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("%w: %s: %v", ErrMalformed, tag, err)
	}
	if v, ok := any(msg).(validator); ok {
		if err := v.Validate(); err != nil {
			return msg, fmt.Errorf("%w: %s: %v", ErrMalformed, tag, err)
		}
	}
	return msg, nil
}

// Unmarshal decodes a whole frame as a T.
func Unmarshal[T Payload](data []byte) (T, error) {
	tag, body, err := Open(data)
	if err != nil {
		var zero T
		return zero, err
	}
	return Decode[T](tag, body)
}
