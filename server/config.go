package server

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/s00inx/xchgserver/server/engine"
	"github.com/s00inx/xchgserver/server/protocol"
)

const (
	DefaultIdleTimeout   = 30 * time.Second
	DefaultReadTimeout   = 20 * time.Second
	DefaultMaxDrainBytes = 64 << 10
	DefaultLingerTimeout = 500 * time.Millisecond
)

// Config of a Server. Zero values take defaults.
// Timeouts < 0 disable the timeout, other negative values are invalid.
type Config struct {
	Addr           string // host:port to bind on Start
	Backlog        int    // listen backlog, 0 is system default
	MaxConnections int    // open connections at once, 0 is unlimited

	// Executor runs handlers, nil means a goroutine per exchange
	// that Stop waits for. Shutting down a custom executor is up to the caller.
	Executor engine.Executor

	IdleTimeout   time.Duration // wait for next request on a kept-alive connection
	ReadTimeout   time.Duration // every read of request head and body
	WriteTimeout  time.Duration // every write of response, 0 is none
	LingerTimeout time.Duration // draining inbound bytes before close

	MaxHeaderBytes int   // request line + header block
	MaxHeaders     int   // header fields per request
	ChunkSize      int   // chunked response buffer
	MaxDrainBytes  int64 // unread request body discarded before connection reuse

	TLSConfig *tls.Config
	Logger    *slog.Logger
}

// Validate reports first invalid field
func (c *Config) Validate() error {
	switch {
	case c.Backlog < 0:
		return fmt.Errorf("%w: Backlog %d", ErrInvalidConfig, c.Backlog)
	case c.MaxConnections < 0:
		return fmt.Errorf("%w: MaxConnections %d", ErrInvalidConfig, c.MaxConnections)
	case c.MaxHeaderBytes < 0:
		return fmt.Errorf("%w: MaxHeaderBytes %d", ErrInvalidConfig, c.MaxHeaderBytes)
	case c.MaxHeaders < 0:
		return fmt.Errorf("%w: MaxHeaders %d", ErrInvalidConfig, c.MaxHeaders)
	case c.ChunkSize < 0:
		return fmt.Errorf("%w: ChunkSize %d", ErrInvalidConfig, c.ChunkSize)
	case c.MaxDrainBytes < 0:
		return fmt.Errorf("%w: MaxDrainBytes %d", ErrInvalidConfig, c.MaxDrainBytes)
	}
	return nil
}

func (c Config) withDefaults() Config {
	c.IdleTimeout = orDefault(c.IdleTimeout, DefaultIdleTimeout)
	c.ReadTimeout = orDefault(c.ReadTimeout, DefaultReadTimeout)
	c.LingerTimeout = orDefault(c.LingerTimeout, DefaultLingerTimeout)
	if c.WriteTimeout < 0 {
		c.WriteTimeout = 0
	}
	if c.MaxHeaderBytes == 0 {
		c.MaxHeaderBytes = protocol.DefaultMaxHeaderBytes
	}
	if c.MaxHeaders == 0 {
		c.MaxHeaders = protocol.DefaultMaxHeaders
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = protocol.DefaultChunkSize
	}
	if c.MaxDrainBytes == 0 {
		c.MaxDrainBytes = DefaultMaxDrainBytes
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// 0 takes default, < 0 turns off (stored as 0)
func orDefault(d, def time.Duration) time.Duration {
	switch {
	case d == 0:
		return def
	case d < 0:
		return 0
	}
	return d
}
