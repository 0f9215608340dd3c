// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package http1

import "errors"

var (
	ErrInvalidMethod        = errors.New("http1: invalid method")
	ErrInvalidURI           = errors.New("http1: invalid request target")
	ErrInvalidVersion       = errors.New("http1: unsupported protocol version")
	ErrInvalidStatus        = errors.New("http1: invalid status code")
	ErrMalformedHeader      = errors.New("http1: malformed header line")
	ErrInvalidContentLength = errors.New("http1: invalid Content-Length")
	// ErrIncomplete is returned by ParseRequest and ParseResponse when the
	// input ends before the message does.
	ErrIncomplete = errors.New("http1: incomplete message")
)
