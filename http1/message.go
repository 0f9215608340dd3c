// File: http1/message.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package http1

import (
	"net/url"
	"strconv"
	"strings"
)

const (
	Version10 = "HTTP/1.0"
	Version11 = "HTTP/1.1"
)

// Cookie is one name/value pair from a Cookie or Set-Cookie header.
type Cookie struct {
	Name  string
	Value string
}

func (c Cookie) String() string { return c.Name + "=" + c.Value }

// Request is a parsed or outgoing HTTP request.
type Request struct {
	Method  string
	URI     string // path part of the request target
	Query   string // raw query without '?'
	Version string
	Header  Header
	Cookies []Cookie
	Body    []byte
}

// NewRequest returns an HTTP/1.1 request for target, which may carry a query.
func NewRequest(method, target string) *Request {
	uri, query, _ := strings.Cut(target, "?")
	return &Request{Method: method, URI: uri, Query: query, Version: Version11}
}

// Target returns URI and query as sent on the request line.
func (r *Request) Target() string {
	if r.Query == "" {
		return r.URI
	}
	return r.URI + "?" + r.Query
}

// Params parses the query string. Malformed pairs are skipped.
func (r *Request) Params() url.Values {
	v, _ := url.ParseQuery(r.Query)
	return v
}

// Cookie returns the value of the named cookie.
func (r *Request) Cookie(name string) (string, bool) {
	for _, c := range r.Cookies {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

// KeepAlive reports whether the connection stays open after the response.
// HTTP/1.1 defaults to keep-alive, HTTP/1.0 to close.
func (r *Request) KeepAlive() bool {
	if r.Header.HasToken("Connection", "close") {
		return false
	}
	if r.Version == Version10 {
		return r.Header.HasToken("Connection", "keep-alive")
	}
	return true
}

// ExpectsContinue reports whether the client waits for an interim 100 response.
func (r *Request) ExpectsContinue() bool {
	return strings.EqualFold(strings.TrimSpace(r.Header.Get("Expect")), "100-continue")
}

// Bytes serializes the request. Content-Length is added for non-empty
// bodies and Cookies are emitted when no Cookie header is set.
func (r *Request) Bytes() []byte {
	version := r.Version
	if version == "" {
		version = Version11
	}
	dst := make([]byte, 0, 128+len(r.Body))
	dst = append(dst, r.Method...)
	dst = append(dst, ' ')
	dst = append(dst, r.Target()...)
	dst = append(dst, ' ')
	dst = append(dst, version...)
	dst = append(dst, "\r\n"...)
	dst = r.Header.appendTo(dst)
	if len(r.Cookies) > 0 && !r.Header.Has("Cookie") {
		parts := make([]string, len(r.Cookies))
		for i, c := range r.Cookies {
			parts[i] = c.String()
		}
		dst = append(dst, "Cookie: "+strings.Join(parts, "; ")+"\r\n"...)
	}
	if len(r.Body) > 0 && !r.Header.Has("Content-Length") {
		dst = append(dst, "Content-Length: "+strconv.Itoa(len(r.Body))+"\r\n"...)
	}
	dst = append(dst, "\r\n"...)
	return append(dst, r.Body...)
}

// Response is a parsed or outgoing HTTP response.
type Response struct {
	Version    string
	StatusCode int
	Reason     string
	Header     Header
	Cookies    []Cookie // Set-Cookie values
	Body       []byte
}

// NewResponse returns an HTTP/1.1 response with the standard reason phrase.
func NewResponse(code int) *Response {
	return &Response{Version: Version11, StatusCode: code, Reason: StatusText(code)}
}

// NewTextResponse returns a response with a text/plain body.
func NewTextResponse(code int, body string) *Response {
	r := NewResponse(code)
	r.SetBody("text/plain; charset=utf-8", []byte(body))
	return r
}

// SetBody sets the body and its Content-Type.
func (r *Response) SetBody(contentType string, body []byte) {
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	r.Body = body
}

// SetCookie appends a Set-Cookie value.
func (r *Response) SetCookie(name, value string) {
	r.Cookies = append(r.Cookies, Cookie{Name: name, Value: value})
}

// Bytes serializes the response. Content-Length is filled in for statuses
// that carry a body unless already set.
func (r *Response) Bytes() []byte {
	version := r.Version
	if version == "" {
		version = Version11
	}
	reason := r.Reason
	if reason == "" {
		reason = StatusText(r.StatusCode)
	}
	dst := make([]byte, 0, 128+len(r.Body))
	dst = append(dst, version...)
	dst = append(dst, ' ')
	dst = strconv.AppendInt(dst, int64(r.StatusCode), 10)
	dst = append(dst, ' ')
	dst = append(dst, reason...)
	dst = append(dst, "\r\n"...)
	dst = r.Header.appendTo(dst)
	for _, c := range r.Cookies {
		dst = append(dst, "Set-Cookie: "+c.String()+"\r\n"...)
	}
	if !bodyless(r.StatusCode) && !r.Header.Has("Content-Length") {
		dst = append(dst, "Content-Length: "+strconv.Itoa(len(r.Body))+"\r\n"...)
	}
	dst = append(dst, "\r\n"...)
	return append(dst, r.Body...)
}

func parseCookies(v string) []Cookie {
	var out []Cookie
	for _, part := range strings.Split(v, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, _ := strings.Cut(part, "=")
		out = append(out, Cookie{Name: strings.TrimSpace(name), Value: strings.TrimSpace(value)})
	}
	return out
}

// parseSetCookie keeps the leading name=value pair and drops attributes.
func parseSetCookie(v string) (Cookie, bool) {
	pair, _, _ := strings.Cut(v, ";")
	name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
	if !ok || name == "" {
		return Cookie{}, false
	}
	return Cookie{Name: strings.TrimSpace(name), Value: strings.TrimSpace(value)}, true
}
