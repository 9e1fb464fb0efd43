package server

import (
	"github.com/s00inx/xchgserver/server/auth"
)

// Handler serves one exchange. It should read or close the request body,
// call SendResponseHeaders once, write the body and close the exchange.
// A returned error or panic answers 500 if nothing was sent yet, and the
// connection is closed either way.
type Handler interface {
	ServeExchange(ex *Exchange) error
}

type HandlerFunc func(ex *Exchange) error

func (f HandlerFunc) ServeExchange(ex *Exchange) error {
	return f(ex)
}

// Filter runs before the handler of a context, next continues the chain
type Filter interface {
	Filter(ex *Exchange, next Handler) error
}

type FilterFunc func(ex *Exchange, next Handler) error

func (f FilterFunc) Filter(ex *Exchange, next Handler) error {
	return f(ex, next)
}

// Context binds a path prefix to a handler, it does not change once registered
type Context struct {
	path    string
	handler Handler
	auth    auth.Authenticator
	filters []Filter
	server  *Server

	chain Handler // filters + handler
}

type ContextOption func(c *Context)

// WithAuthenticator guards the context, handler runs only for authenticated requests
func WithAuthenticator(a auth.Authenticator) ContextOption {
	return func(c *Context) { c.auth = a }
}

// WithFilters adds filters, they run in the given order
func WithFilters(f ...Filter) ContextOption {
	return func(c *Context) { c.filters = append(c.filters, f...) }
}

func (c *Context) Path() string                      { return c.path }
func (c *Context) Handler() Handler                  { return c.handler }
func (c *Context) Authenticator() auth.Authenticator { return c.auth }
func (c *Context) Server() *Server                   { return c.server }

func (c *Context) buildChain() {
	h := c.handler
	for i := len(c.filters) - 1; i >= 0; i-- {
		f, next := c.filters[i], h
		h = HandlerFunc(func(ex *Exchange) error {
			return f.Filter(ex, next)
		})
	}
	c.chain = h
}
