// internal/fieldbus/errors.go
package fieldbus

import "errors"

// Failure classes. Adapters wrap every transport error with exactly one of
// these so the poll loop can switch on errors.Is without knowing the
// underlying library.
var (
	// ErrConnect marks a failed endpoint open.
	ErrConnect = errors.New("fieldbus: connect failed")

	// ErrTransientRead marks a recoverable read failure
	// (timeout, checksum, device exception). The link is assumed alive.
	ErrTransientRead = errors.New("fieldbus: transient read failure")

	// ErrHardIO marks a dead transport: the handle must be discarded.
	ErrHardIO = errors.New("fieldbus: transport lost")
)
