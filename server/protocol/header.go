package protocol

import (
	"bufio"
	"strings"
)

// Field is one header line, key keeps the case it was given with
type Field struct {
	Key, Val string
}

// Header is an ordered multi-map with case-insensitive keys.
// Order of fields is kept on the wire.
type Header struct {
	fields []Field
}

// NewHeader builds a header from key, value pairs
func NewHeader(kv ...string) Header {
	var h Header
	for i := 0; i+1 < len(kv); i += 2 {
		h.Add(kv[i], kv[i+1])
	}
	return h
}

func (h *Header) Add(key, val string) {
	h.fields = append(h.fields, Field{Key: key, Val: val})
}

// Set replaces all values of key with val, keeping the position of the first one
func (h *Header) Set(key, val string) {
	for i := range h.fields {
		if strings.EqualFold(h.fields[i].Key, key) {
			h.fields[i].Val = val
			h.delFrom(i+1, key)
			return
		}
	}
	h.Add(key, val)
}

// Get returns the first value of key or ""
func (h *Header) Get(key string) string {
	for _, f := range h.fields {
		if strings.EqualFold(f.Key, key) {
			return f.Val
		}
	}
	return ""
}

func (h *Header) Values(key string) []string {
	var vals []string
	for _, f := range h.fields {
		if strings.EqualFold(f.Key, key) {
			vals = append(vals, f.Val)
		}
	}
	return vals
}

func (h *Header) Has(key string) bool {
	for _, f := range h.fields {
		if strings.EqualFold(f.Key, key) {
			return true
		}
	}
	return false
}

func (h *Header) Del(key string) {
	h.delFrom(0, key)
}

func (h *Header) delFrom(start int, key string) {
	out := h.fields[:start]
	for _, f := range h.fields[start:] {
		if !strings.EqualFold(f.Key, key) {
			out = append(out, f)
		}
	}
	clear(h.fields[len(out):])
	h.fields = out
}

// HasToken reports whether any comma-separated element of key's values
// equals token, ignoring case (Connection: keep-alive, Upgrade)
func (h *Header) HasToken(key, token string) bool {
	for _, f := range h.fields {
		if !strings.EqualFold(f.Key, key) {
			continue
		}
		for elem := range strings.SplitSeq(f.Val, ",") {
			if strings.EqualFold(strings.TrimSpace(elem), token) {
				return true
			}
		}
	}
	return false
}

func (h *Header) Len() int {
	return len(h.fields)
}

// Each calls fn for every field in order until fn returns false
func (h *Header) Each(fn func(key, val string) bool) {
	for _, f := range h.fields {
		if !fn(f.Key, f.Val) {
			return
		}
	}
}

func (h *Header) Fields() []Field {
	return h.fields
}

func (h *Header) Clone() Header {
	if h.fields == nil {
		return Header{}
	}
	fields := make([]Field, len(h.fields))
	copy(fields, h.fields)
	return Header{fields: fields}
}

// CR and LF inside a field never reach the wire
var fieldReplacer = strings.NewReplacer("\r", " ", "\n", " ")

// WriteTo writes every field as "Key: Val\r\n", no terminating blank line
func (h *Header) WriteTo(w *bufio.Writer) error {
	for _, f := range h.fields {
		w.WriteString(fieldReplacer.Replace(f.Key))
		w.Write(colon)
		w.WriteString(fieldReplacer.Replace(f.Val))
		if _, err := w.Write(crlf); err != nil {
			return err
		}
	}
	return nil
}
