// Package protocol defines how application payloads travel over a channel:
// every frame is a CBOR envelope carrying the payload's type tag and its
// CBOR-encoded body.
package protocol

// Payload is implemented by every message type that can be registered with
// the router. Tag must use a value receiver and return a constant: the
// router reads it from the zero value to key its registry.
type Payload interface {
	// Tag is a stable, human-readable type name, e.g. "silk.login_request".
	Tag() string
}

// validator is implemented by payloads that reject some decoded shapes,
// such as tagged variants with no variant set.
type validator interface {
	Validate() error
}

// TagOf returns the tag of payload type T.
func TagOf[T Payload]() string {
	var zero T
	return zero.Tag()
}

// envelope is the on-wire frame layout: {1: tag, 2: body}.
type envelope struct {
	Tag  string     `cbor:"1,keyasint"`
	Body RawMessage `cbor:"2,keyasint"`
}
