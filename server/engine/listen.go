// listener setup: backlog, connection limit, optional TLS
package engine

import (
	"crypto/tls"
	"net"

	"golang.org/x/net/netutil"
)

// ListenConfig describes the listening socket
type ListenConfig struct {
	Addr           string
	Backlog        int // listen backlog, <= 0 means system default
	MaxConnections int // accepted connections open at once, <= 0 means no limit
	TLSConfig      *tls.Config
}

// Listen creates listener for cfg.
// Accept blocks while MaxConnections connections are open.
func Listen(cfg ListenConfig) (net.Listener, error) {
	var (
		ln  net.Listener
		err error
	)
	if cfg.Backlog > 0 {
		ln, err = listenBacklog(cfg.Addr, cfg.Backlog)
	} else {
		ln, err = net.Listen("tcp", cfg.Addr)
	}
	if err != nil {
		return nil, err
	}
	return Wrap(ln, cfg), nil
}

// Wrap applies connection limit and TLS of cfg to an existing listener
func Wrap(ln net.Listener, cfg ListenConfig) net.Listener {
	if cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, cfg.MaxConnections)
	}
	if cfg.TLSConfig != nil {
		ln = tls.NewListener(ln, cfg.TLSConfig)
	}
	return ln
}
