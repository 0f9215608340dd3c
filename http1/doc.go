// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package http1 implements an incremental HTTP/1.x codec.
//
// The Parser consumes a message in arbitrary byte fragments and reports
// which stage it stopped in, so a caller can keep the partial state between
// transport frames and resume once more bytes arrive. Request and Response
// are plain values with an ordered, case-insensitive header set and a
// serializer producing wire bytes.
package http1
