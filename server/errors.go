package server

import "errors"

var (
	ErrServerStarted = errors.New("server: already started")
	ErrServerClosed  = errors.New("server: closed")
	ErrInvalidConfig = errors.New("server: invalid config")

	ErrInvalidPath   = errors.New("server: context path must start with /")
	ErrNilHandler    = errors.New("server: nil handler")
	ErrContextExists = errors.New("server: context already exists")
	ErrNoContext     = errors.New("server: no such context")

	ErrHeadersSent    = errors.New("server: response headers already sent")
	ErrHeadersNotSent = errors.New("server: response headers not sent")
	ErrInvalidStatus  = errors.New("server: invalid response status")
	ErrExchangeClosed = errors.New("server: exchange is closed")
	ErrBodyClosed     = errors.New("server: request body is closed")
	ErrDrainLimit     = errors.New("server: unread request body too large to drain")
)
