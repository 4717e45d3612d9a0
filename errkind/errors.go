package errkind

import "errors"

var (
	ErrValue = errors.New("invalid value")
)
