// authentication gate contract, the server consults it before a handler runs
package auth

import (
	"errors"

	"github.com/s00inx/xchgserver/server/protocol"
)

var (
	ErrNilArgument     = errors.New("auth: nil argument")
	ErrInvalidArgument = errors.New("auth: invalid argument")
)

// Outcome of an authentication attempt
type Outcome uint8

const (
	Success Outcome = iota // handler runs with Principal set
	Retry                  // client may retry, answer carries a challenge
	Failure                // give up, answer with Status and close
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Retry:
		return "retry"
	case Failure:
		return "failure"
	}
	return "unknown"
}

// Principal is an authenticated user
type Principal struct {
	Username string
	Realm    string
}

func (p *Principal) String() string {
	return p.Realm + ":" + p.Username
}

// Result tells the server what to do with the request.
// For Retry and Failure, Header is added to the response sent with Status.
type Result struct {
	Outcome   Outcome
	Principal *Principal
	Status    int
	Header    protocol.Header
	Err       error // cause of a Failure, if any
}

// Authenticator checks the request head before the handler runs.
// It must not read the request body.
type Authenticator interface {
	Authenticate(h *protocol.Header) Result
}
