package protocol

import (
	"errors"
	"fmt"
	"io"
)

// errors for parsing and body coding
var (
	ErrInvalid        = errors.New("invalid request")
	ErrLineTooLong    = errors.New("line too long")
	ErrTruncated      = fmt.Errorf("body truncated: %w", io.ErrUnexpectedEOF)
	ErrMalformedChunk = errors.New("malformed chunked encoding")

	ErrTooManyBytes      = errors.New("too many bytes to write to stream")
	ErrInsufficientBytes = errors.New("insufficient bytes written to stream")
	ErrWriterClosed      = errors.New("stream is closed")
)

// Error is a request failure that has an HTTP status to answer with.
type Error struct {
	Status int
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.Status, e.Reason, e.Err)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

func badRequest(reason string) error {
	return &Error{Status: 400, Reason: reason, Err: ErrInvalid}
}
