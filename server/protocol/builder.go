package protocol

import (
	"bufio"
	"strconv"
	"time"
)

// lookup table for reason phrases
// i use flat list instead of map bc codes is fixed
var statusTable = [600]string{
	// 1xx
	100: "Continue",
	101: "Switching Protocols",

	// 2xx
	200: "OK",
	201: "Created",
	202: "Accepted",
	203: "Non-Authoritative Information",
	204: "No Content",
	205: "Reset Content",
	206: "Partial Content",

	// 3xx
	300: "Multiple Choices",
	301: "Moved Permanently",
	302: "Found",
	303: "See Other",
	304: "Not Modified",
	307: "Temporary Redirect",
	308: "Permanent Redirect",

	// 4xx
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	406: "Not Acceptable",
	408: "Request Timeout",
	409: "Conflict",
	410: "Gone",
	411: "Length Required",
	412: "Precondition Failed",
	413: "Payload Too Large",
	414: "URI Too Long",
	415: "Unsupported Media Type",
	417: "Expectation Failed",
	426: "Upgrade Required",
	429: "Too Many Requests",
	431: "Request Header Fields Too Large",

	// 5xx
	500: "Internal Server Error",
	501: "Not Implemented",
	502: "Bad Gateway",
	503: "Service Unavailable",
	504: "Gateway Timeout",
	505: "HTTP Version Not Supported",
}

// for fast access
var (
	proto     = []byte("HTTP/1.1 ")
	crlf      = []byte("\r\n")
	colon     = []byte(": ")
	lastChunk = []byte("0\r\n\r\n")

	continueLine = []byte("HTTP/1.1 100 Continue\r\n\r\n")
)

// TimeFormat is the IMF-fixdate layout of the Date header
const TimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// StatusText returns reason phrase for code, "" if unknown
func StatusText(code int) string {
	if code < 0 || code >= len(statusTable) {
		return ""
	}
	return statusTable[code]
}

// AppendDate appends t as Date header value
func AppendDate(dst []byte, t time.Time) []byte {
	return t.UTC().AppendFormat(dst, TimeFormat)
}

// WriteHead writes status line, headers and the blank line to w w/o flushing
func WriteHead(w *bufio.Writer, code int, h *Header) error {
	var line [64]byte
	b := append(line[:0], proto...)
	b = strconv.AppendInt(b, int64(code), 10)
	b = append(b, ' ')
	b = append(b, StatusText(code)...)
	b = append(b, crlf...)
	w.Write(b)

	if err := h.WriteTo(w); err != nil {
		return err
	}
	_, err := w.Write(crlf)
	return err
}

// WriteContinue writes interim 100 Continue response
func WriteContinue(w *bufio.Writer) error {
	if _, err := w.Write(continueLine); err != nil {
		return err
	}
	return w.Flush()
}
