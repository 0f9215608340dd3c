// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package http1

const (
	StatusContinue              = 100
	StatusSwitchingProtocols    = 101
	StatusOK                    = 200
	StatusCreated               = 201
	StatusAccepted              = 202
	StatusNoContent             = 204
	StatusMovedPermanently      = 301
	StatusFound                 = 302
	StatusNotModified           = 304
	StatusBadRequest            = 400
	StatusUnauthorized          = 401
	StatusForbidden             = 403
	StatusNotFound              = 404
	StatusMethodNotAllowed      = 405
	StatusRequestTimeout        = 408
	StatusRequestEntityTooLarge = 413
	StatusInternalServerError   = 500
	StatusNotImplemented        = 501
	StatusServiceUnavailable    = 503
)

var statusText = map[int]string{
	StatusContinue:              "Continue",
	StatusSwitchingProtocols:    "Switching Protocols",
	StatusOK:                    "OK",
	StatusCreated:               "Created",
	StatusAccepted:              "Accepted",
	StatusNoContent:             "No Content",
	StatusMovedPermanently:      "Moved Permanently",
	StatusFound:                 "Found",
	StatusNotModified:           "Not Modified",
	StatusBadRequest:            "Bad Request",
	StatusUnauthorized:          "Unauthorized",
	StatusForbidden:             "Forbidden",
	StatusNotFound:              "Not Found",
	StatusMethodNotAllowed:      "Method Not Allowed",
	StatusRequestTimeout:        "Request Timeout",
	StatusRequestEntityTooLarge: "Request Entity Too Large",
	StatusInternalServerError:   "Internal Server Error",
	StatusNotImplemented:        "Not Implemented",
	StatusServiceUnavailable:    "Service Unavailable",
}

// StatusText returns the reason phrase for code, or "" if unknown.
func StatusText(code int) string {
	return statusText[code]
}

// bodyless reports whether a response with this status never carries a body.
func bodyless(code int) bool {
	return (code >= 100 && code < 200) || code == StatusNoContent || code == StatusNotModified
}
