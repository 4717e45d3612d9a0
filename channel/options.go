package channel

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"
)

// Default channel options
var DefaultOptions = Options{
	Logger:            &log.Logger,
	Nodelay:           true,
	ReadIdleTimeoutMs: 30_000,
}

// Options are per-connection options, see also DefaultOptions.
// Applied to the socket when the channel is created.
type Options struct {
	Logger *zerolog.Logger // if nil logging is disabled

	TTLMs             int   // IP TTL; carried for API parity, not applied to the socket
	LingerMs          int   // SO_LINGER; 0 means disabled
	Nodelay           bool  // TCP_NODELAY
	KeepAliveMs       int   // keep-alive period; 0 means disabled
	RecvBufSize       int   // SO_RCVBUF; 0 means the OS default
	SendBufSize       int   // SO_SNDBUF; 0 means the OS default
	ReadIdleTimeoutMs int64 // read-idle eviction threshold; 0 means never
}

// option keys accepted by Set
const (
	OPT_TTL               = "ttl"
	OPT_LINGER            = "linger"
	OPT_NODELAY           = "nodelay"
	OPT_KEEP_ALIVE        = "keep_alive"
	OPT_RECV_BUF_SIZE     = "recv_buf_size"
	OPT_SEND_BUF_SIZE     = "send_buf_size"
	OPT_READ_IDLE_TIMEOUT = "read_idle_timeout_ms"
)

// Set sets the option named key, coercing value to the option type.
// Returns ErrOption for an unknown key, or a cast error for a value
// that does not coerce.
func (o *Options) Set(key string, value any) error {
	var err error
	switch key {
	case OPT_TTL:
		o.TTLMs, err = cast.ToIntE(value)
	case OPT_LINGER:
		o.LingerMs, err = cast.ToIntE(value)
	case OPT_NODELAY:
		o.Nodelay, err = cast.ToBoolE(value)
	case OPT_KEEP_ALIVE:
		o.KeepAliveMs, err = cast.ToIntE(value)
	case OPT_RECV_BUF_SIZE:
		o.RecvBufSize, err = cast.ToIntE(value)
	case OPT_SEND_BUF_SIZE:
		o.SendBufSize, err = cast.ToIntE(value)
	case OPT_READ_IDLE_TIMEOUT:
		o.ReadIdleTimeoutMs, err = cast.ToInt64E(value)
	default:
		return ErrOption
	}
	return err
}

// SetAll applies every entry of opts via Set, stopping at the first error.
func (o *Options) SetAll(opts map[string]any) error {
	for key, value := range opts {
		if err := o.Set(key, value); err != nil {
			return err
		}
	}
	return nil
}
