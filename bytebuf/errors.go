package bytebuf

import "errors"

var (
	ErrShort = errors.New("not enough readable bytes")
)
