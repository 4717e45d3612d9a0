package bootstrap

import (
	"errors"

	"github.com/buger/jsonparser"
	"github.com/caarlos0/env/v11"
	"github.com/pipenet/pipenet/channel"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Default server options
var DefaultOptions = Options{
	Logger:  &log.Logger,
	Host:    "0.0.0.0",
	Port:    1511,
	Channel: channel.DefaultOptions,
}

// Options are server options, see also DefaultOptions.
// Modify before Start(), directly or through the builder methods.
type Options struct {
	Logger *zerolog.Logger // if nil logging is disabled

	Host    string // listener host
	Port    uint16 // listener port
	Workers int    // worker event loops; must be set before Start()

	Channel channel.Options // per-connection options

	AcceptLimit *rate.Limiter // if non-nil, limits the accept rate
}

// envConfig is the environment surface of ConfigureEnv.
type envConfig struct {
	Host              string `env:"PIPENET_HOST"`
	Port              uint16 `env:"PIPENET_PORT"`
	Workers           int    `env:"PIPENET_WORKERS"`
	Nodelay           *bool  `env:"PIPENET_NODELAY"`
	KeepAliveMs       int    `env:"PIPENET_KEEP_ALIVE_MS"`
	RecvBufSize       int    `env:"PIPENET_RECV_BUF_SIZE"`
	SendBufSize       int    `env:"PIPENET_SEND_BUF_SIZE"`
	ReadIdleTimeoutMs int64  `env:"PIPENET_READ_IDLE_TIMEOUT_MS"`
}

// ConfigureEnv overlays options from PIPENET_* environment
// variables. Unset variables leave the current values alone.
func (b *Bootstrap) ConfigureEnv() error {
	var cfg envConfig
	if err := env.Parse(&cfg); err != nil {
		return err
	}

	o := &b.Options
	if cfg.Host != "" {
		o.Host = cfg.Host
	}
	if cfg.Port != 0 {
		o.Port = cfg.Port
	}
	if cfg.Workers != 0 {
		o.Workers = cfg.Workers
	}
	if cfg.Nodelay != nil {
		o.Channel.Nodelay = *cfg.Nodelay
	}
	if cfg.KeepAliveMs != 0 {
		o.Channel.KeepAliveMs = cfg.KeepAliveMs
	}
	if cfg.RecvBufSize != 0 {
		o.Channel.RecvBufSize = cfg.RecvBufSize
	}
	if cfg.SendBufSize != 0 {
		o.Channel.SendBufSize = cfg.SendBufSize
	}
	if cfg.ReadIdleTimeoutMs != 0 {
		o.Channel.ReadIdleTimeoutMs = cfg.ReadIdleTimeoutMs
	}
	return nil
}

// ConfigureJSON overlays options from a JSON document of the shape
//
//	{
//	  "bind":    {"host": "0.0.0.0", "port": 1511},
//	  "workers": 4,
//	  "opts":    {"nodelay": true, "read_idle_timeout_ms": 30000}
//	}
//
// Absent keys leave the current values alone; "opts" keys are the
// channel option keys accepted by channel.Options.Set.
func (b *Bootstrap) ConfigureJSON(data []byte) error {
	o := &b.Options

	if host, err := jsonparser.GetString(data, "bind", "host"); err == nil {
		o.Host = host
	}
	if port, err := jsonparser.GetInt(data, "bind", "port"); err == nil {
		o.Port = uint16(port)
	}
	if n, err := jsonparser.GetInt(data, "workers"); err == nil {
		o.Workers = int(n)
	}

	err := jsonparser.ObjectEach(data, func(key, value []byte, _ jsonparser.ValueType, _ int) error {
		return o.Channel.Set(string(key), string(value))
	}, "opts")
	if err != nil && !errors.Is(err, jsonparser.KeyPathNotFoundError) {
		return err
	}
	return nil
}
