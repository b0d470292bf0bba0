package biostream

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by Start when the stream was never
// connected (or has been closed). The caller may Connect and retry.
var ErrNotConnected = errors.New("biostream: not connected")

// ConnectionError reports a failed Connect. It is fatal to that
// Connect call only - the stream stays Disconnected and Connect may be
// retried with a different target.
type ConnectionError struct {
	Target string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("biostream: connect %q: %v", e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
