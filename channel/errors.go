package channel

import "errors"

var (
	ErrOption = errors.New("unknown channel option")
	ErrClosed = errors.New("channel closed")
)
