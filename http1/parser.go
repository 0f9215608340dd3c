// File: http1/parser.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Incremental HTTP/1.x message parser. Bytes are appended with Feed and
// parsed from a saved offset, so no byte is examined twice across fragments.

package http1

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Stage is the parser position. When Feed returns without completing, the
// stage names the element still incomplete.
type Stage uint8

const (
	StageMethod Stage = iota
	StageURI
	StageQuery
	StageVersion
	StageStatus
	StageReason
	StageHeaderKey
	StageHeaderValue
	StageBody
	StageDone
)

var stageNames = [...]string{
	StageMethod:      "method",
	StageURI:         "uri",
	StageQuery:       "query",
	StageVersion:     "version",
	StageStatus:      "status",
	StageReason:      "reason",
	StageHeaderKey:   "header-key",
	StageHeaderValue: "header-value",
	StageBody:        "body",
	StageDone:        "done",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "stage(" + strconv.Itoa(int(s)) + ")"
}

const maxMethodLen = 16

var methods = map[string]struct{}{
	"GET": {}, "HEAD": {}, "POST": {}, "PUT": {}, "DELETE": {},
	"PATCH": {}, "OPTIONS": {}, "TRACE": {}, "CONNECT": {},
}

// Parser assembles one request or one response.
type Parser struct {
	response bool
	stage    Stage
	buf      []byte
	pos      int // next unparsed byte
	scanned  int // bytes before this offset hold no delimiter of the current stage
	key      string
	length   int64
	err      error

	req  *Request
	resp *Response
}

// NewRequestParser returns a parser for a request.
func NewRequestParser() *Parser {
	p := &Parser{}
	p.Reset()
	return p
}

// NewResponseParser returns a parser for a response.
func NewResponseParser() *Parser {
	p := &Parser{response: true}
	p.Reset()
	return p
}

// Reset discards all state, keeping the buffer capacity.
func (p *Parser) Reset() {
	p.buf = p.buf[:0]
	p.pos, p.scanned = 0, 0
	p.key = ""
	p.length = -1
	p.err = nil
	if p.response {
		p.stage = StageVersion
		p.resp = &Response{}
		p.req = nil
	} else {
		p.stage = StageMethod
		p.req = &Request{}
		p.resp = nil
	}
}

// Feed appends data and advances the state machine. It returns true once
// the message is complete; bytes past the end of the message are ignored
// (see Consumed). After an error the parser stays failed until Reset.
func (p *Parser) Feed(data []byte) (bool, error) {
	if p.err != nil {
		return false, p.err
	}
	if p.stage == StageDone {
		return true, nil
	}
	p.buf = append(p.buf, data...)
	for p.stage != StageDone {
		progressed, err := p.step()
		if err != nil {
			p.err = err
			return false, err
		}
		if !progressed {
			return false, nil
		}
	}
	return true, nil
}

// Stage returns the current stage.
func (p *Parser) Stage() Stage { return p.stage }

// Done reports whether the message is complete.
func (p *Parser) Done() bool { return p.stage == StageDone }

// Err returns the sticky parse error.
func (p *Parser) Err() error { return p.err }

// HeadersComplete reports whether the header section has ended.
func (p *Parser) HeadersComplete() bool { return p.stage >= StageBody }

// ContentLength returns the declared body length, or -1 when absent.
func (p *Parser) ContentLength() int64 { return p.length }

// Buffered returns the number of bytes fed so far.
func (p *Parser) Buffered() int { return len(p.buf) }

// Consumed returns the number of bytes that belong to the message.
func (p *Parser) Consumed() int { return p.pos }

// Request returns the request, partially filled until Done.
func (p *Parser) Request() *Request { return p.req }

// Response returns the response, partially filled until Done.
func (p *Parser) Response() *Response { return p.resp }

func (p *Parser) header() *Header {
	if p.response {
		return &p.resp.Header
	}
	return &p.req.Header
}

// scan returns the bytes up to the first delimiter and consumes the delimiter.
func (p *Parser) scan(delims string) (tok []byte, delim byte, ok bool) {
	if p.scanned < p.pos {
		p.scanned = p.pos
	}
	i := bytes.IndexAny(p.buf[p.scanned:], delims)
	if i < 0 {
		p.scanned = len(p.buf)
		return nil, 0, false
	}
	end := p.scanned + i
	tok, delim = p.buf[p.pos:end], p.buf[end]
	p.pos = end + 1
	p.scanned = p.pos
	return tok, delim, true
}

func (p *Parser) step() (bool, error) {
	switch p.stage {
	case StageMethod:
		tok, delim, ok := p.scan(" \n")
		if !ok {
			partial := p.buf[p.pos:]
			if len(partial) > maxMethodLen || !upperAlpha(partial) {
				return false, fmt.Errorf("%w: %q", ErrInvalidMethod, partial)
			}
			return false, nil
		}
		if _, known := methods[string(tok)]; !known || delim != ' ' {
			return false, fmt.Errorf("%w: %q", ErrInvalidMethod, tok)
		}
		p.req.Method = string(tok)
		p.stage = StageURI

	case StageURI:
		tok, delim, ok := p.scan(" ?\n")
		if !ok {
			return false, nil
		}
		if len(tok) == 0 || delim == '\n' {
			return false, fmt.Errorf("%w: %q", ErrInvalidURI, tok)
		}
		p.req.URI = string(tok)
		if delim == '?' {
			p.stage = StageQuery
		} else {
			p.stage = StageVersion
		}

	case StageQuery:
		tok, delim, ok := p.scan(" \n")
		if !ok {
			return false, nil
		}
		if delim != ' ' {
			return false, fmt.Errorf("%w: missing protocol version", ErrInvalidURI)
		}
		p.req.Query = string(tok)
		p.stage = StageVersion

	case StageVersion:
		if p.response {
			tok, delim, ok := p.scan(" \n")
			if !ok {
				return false, nil
			}
			if delim != ' ' || !validVersion(tok) {
				return false, fmt.Errorf("%w: %q", ErrInvalidVersion, tok)
			}
			p.resp.Version = string(tok)
			p.stage = StageStatus
			break
		}
		tok, _, ok := p.scan("\n")
		if !ok {
			return false, nil
		}
		tok = bytes.TrimSuffix(tok, []byte{'\r'})
		if !validVersion(tok) {
			return false, fmt.Errorf("%w: %q", ErrInvalidVersion, tok)
		}
		p.req.Version = string(tok)
		p.stage = StageHeaderKey

	case StageStatus:
		tok, delim, ok := p.scan(" \n")
		if !ok {
			return false, nil
		}
		tok = bytes.TrimSuffix(tok, []byte{'\r'})
		code, err := strconv.Atoi(string(tok))
		if err != nil || len(tok) != 3 || code < 100 || code > 599 {
			return false, fmt.Errorf("%w: %q", ErrInvalidStatus, tok)
		}
		p.resp.StatusCode = code
		if delim == '\n' {
			p.stage = StageHeaderKey
		} else {
			p.stage = StageReason
		}

	case StageReason:
		tok, _, ok := p.scan("\n")
		if !ok {
			return false, nil
		}
		p.resp.Reason = string(bytes.TrimSpace(tok))
		p.stage = StageHeaderKey

	case StageHeaderKey:
		if p.pos >= len(p.buf) {
			return false, nil
		}
		switch p.buf[p.pos] {
		case '\n':
			p.pos++
			return true, p.endHeaders()
		case '\r':
			if p.pos+1 >= len(p.buf) {
				return false, nil
			}
			if p.buf[p.pos+1] != '\n' {
				return false, fmt.Errorf("%w: stray CR", ErrMalformedHeader)
			}
			p.pos += 2
			return true, p.endHeaders()
		}
		tok, delim, ok := p.scan(":\n")
		if !ok {
			return false, nil
		}
		key := string(bytes.TrimSpace(tok))
		if delim != ':' || key == "" || strings.ContainsAny(key, " \t") {
			return false, fmt.Errorf("%w: %q", ErrMalformedHeader, tok)
		}
		p.key = key
		p.stage = StageHeaderValue

	case StageHeaderValue:
		tok, _, ok := p.scan("\n")
		if !ok {
			return false, nil
		}
		if err := p.addHeader(p.key, string(bytes.TrimSpace(tok))); err != nil {
			return false, err
		}
		p.key = ""
		p.stage = StageHeaderKey

	case StageBody:
		if int64(len(p.buf)-p.pos) < p.length {
			return false, nil
		}
		end := p.pos + int(p.length)
		p.setBody(bytes.Clone(p.buf[p.pos:end]))
		p.pos = end
		p.stage = StageDone
	}
	return true, nil
}

func (p *Parser) addHeader(key, value string) error {
	if strings.EqualFold(key, "Content-Length") {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil || n < 0 {
			return fmt.Errorf("%w: %q", ErrInvalidContentLength, value)
		}
		if p.length >= 0 && p.length != n {
			return fmt.Errorf("%w: conflicting values", ErrInvalidContentLength)
		}
		p.length = n
	}
	if p.response && strings.EqualFold(key, "Set-Cookie") {
		if c, ok := parseSetCookie(value); ok {
			p.resp.Cookies = append(p.resp.Cookies, c)
		}
		return nil
	}
	if strings.EqualFold(key, "Content-Length") {
		p.header().Set(key, value)
		return nil
	}
	p.header().Add(key, value)
	return nil
}

func (p *Parser) endHeaders() error {
	if !p.response {
		if v, ok := p.req.Header.Lookup("Cookie"); ok {
			p.req.Cookies = parseCookies(v)
		}
	}
	switch {
	case p.response && bodyless(p.resp.StatusCode):
		p.stage = StageDone
	case p.length >= 0:
		p.stage = StageBody
	default:
		// No declared length: whatever is buffered is the body.
		if p.pos < len(p.buf) {
			p.setBody(bytes.Clone(p.buf[p.pos:]))
		}
		p.pos = len(p.buf)
		p.stage = StageDone
	}
	return nil
}

func (p *Parser) setBody(b []byte) {
	if p.response {
		p.resp.Body = b
	} else {
		p.req.Body = b
	}
}

func upperAlpha(b []byte) bool {
	for _, c := range b {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}

func validVersion(v []byte) bool {
	s := string(v)
	return s == Version11 || s == Version10
}

// ParseRequest parses a request that must be complete in b.
func ParseRequest(b []byte) (*Request, error) {
	p := NewRequestParser()
	done, err := p.Feed(b)
	if err != nil {
		return nil, err
	}
	if !done {
		return nil, fmt.Errorf("%w: stopped in %s", ErrIncomplete, p.Stage())
	}
	return p.Request(), nil
}

// ParseResponse parses a response that must be complete in b.
func ParseResponse(b []byte) (*Response, error) {
	p := NewResponseParser()
	done, err := p.Feed(b)
	if err != nil {
		return nil, err
	}
	if !done {
		return nil, fmt.Errorf("%w: stopped in %s", ErrIncomplete, p.Stage())
	}
	return p.Response(), nil
}
