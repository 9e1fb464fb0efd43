//go:build !unix

package engine

import "net"

// backlog can't be set here, system default is used
func listenBacklog(addr string, _ int) (net.Listener, error) {
	return net.Listen("tcp", addr)
}
