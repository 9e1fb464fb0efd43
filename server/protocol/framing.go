package protocol

import "strconv"

// Framing is how a message body is delimited on the wire
type Framing uint8

const (
	FramingNone           Framing = iota // no body at all
	FramingFixed                         // Content-Length
	FramingChunked                       // Transfer-Encoding: chunked
	FramingCloseDelimited                // ends when connection closes, responses only
)

func (f Framing) String() string {
	switch f {
	case FramingNone:
		return "none"
	case FramingFixed:
		return "fixed"
	case FramingChunked:
		return "chunked"
	case FramingCloseDelimited:
		return "close-delimited"
	}
	return "framing(" + strconv.Itoa(int(f)) + ")"
}
