// File: http1/header.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package http1

import (
	"strings"
)

// Field is one header line.
type Field struct {
	Key   string
	Value string
}

// Header is an ordered header set. Keys are unique and compared
// case-insensitively; the first spelling seen is kept on the wire.
type Header struct {
	fields []Field
}

func (h *Header) index(key string) int {
	for i := range h.fields {
		if strings.EqualFold(h.fields[i].Key, key) {
			return i
		}
	}
	return -1
}

// Get returns the value for key or "".
func (h *Header) Get(key string) string {
	if i := h.index(key); i >= 0 {
		return h.fields[i].Value
	}
	return ""
}

// Lookup returns the value for key and whether it is present.
func (h *Header) Lookup(key string) (string, bool) {
	if i := h.index(key); i >= 0 {
		return h.fields[i].Value, true
	}
	return "", false
}

// Has reports whether key is present.
func (h *Header) Has(key string) bool { return h.index(key) >= 0 }

// Set replaces the value of key in place, or appends it.
func (h *Header) Set(key, value string) {
	if i := h.index(key); i >= 0 {
		h.fields[i].Value = value
		return
	}
	h.fields = append(h.fields, Field{Key: key, Value: value})
}

// Add merges value into an existing key using the list separator for that
// header, or appends a new key.
func (h *Header) Add(key, value string) {
	i := h.index(key)
	if i < 0 {
		h.fields = append(h.fields, Field{Key: key, Value: value})
		return
	}
	sep := ", "
	if strings.EqualFold(key, "Cookie") {
		sep = "; "
	}
	h.fields[i].Value += sep + value
}

// Del removes key.
func (h *Header) Del(key string) {
	if i := h.index(key); i >= 0 {
		h.fields = append(h.fields[:i], h.fields[i+1:]...)
	}
}

// Len returns the number of keys.
func (h *Header) Len() int { return len(h.fields) }

// Fields returns a copy of the header lines in order.
func (h *Header) Fields() []Field {
	out := make([]Field, len(h.fields))
	copy(out, h.fields)
	return out
}

// Clone returns an independent copy.
func (h *Header) Clone() Header {
	return Header{fields: h.Fields()}
}

// HasToken reports whether the comma-separated value of key contains token,
// ignoring case.
func (h *Header) HasToken(key, token string) bool {
	v, ok := h.Lookup(key)
	if !ok {
		return false
	}
	for _, part := range strings.Split(v, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}

func (h *Header) appendTo(dst []byte) []byte {
	for _, f := range h.fields {
		dst = append(dst, f.Key...)
		dst = append(dst, ": "...)
		dst = append(dst, f.Value...)
		dst = append(dst, "\r\n"...)
	}
	return dst
}
