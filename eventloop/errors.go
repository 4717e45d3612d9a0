package eventloop

import "errors"

var (
	ErrStopped = errors.New("event loop stopped")
)
