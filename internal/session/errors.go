package session

import "errors"

var (
	// ErrConfig marks setup mistakes: duplicate registrations, connecting
	// without an address. The process should not continue.
	ErrConfig = errors.New("session configuration error")

	// ErrInvariant marks a broken internal precondition. It is never
	// reached through correct use and the caller should abort.
	ErrInvariant = errors.New("session invariant violated")

	// ErrTransportClosed is returned by Host.Tick once the host's
	// transport can no longer carry traffic.
	ErrTransportClosed = errors.New("host transport closed")
)

// IsFatal reports whether err came from a configuration error or an
// invariant violation.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConfig) || errors.Is(err, ErrInvariant)
}
