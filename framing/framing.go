// File: framing/framing.go
// Package framing implements the length-prefixed wire frame used on every
// connection: a 4-byte little-endian payload length followed by the payload.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package framing

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"
)

// PrefixSize is the length of the frame header.
const PrefixSize = 4

// DefaultMaxFrameSize bounds a single inbound frame.
const DefaultMaxFrameSize = 16 << 20

var (
	// ErrReadTimeout means no byte of a new frame arrived within the timeout.
	// The stream is untouched and the read may be retried.
	ErrReadTimeout = errors.New("frame read timeout")
	// ErrConnectionClosed means the peer closed the stream.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrFrameTruncated means a frame started but stalled or ended early.
	// The stream is no longer aligned and must be dropped.
	ErrFrameTruncated = errors.New("frame truncated")
	// ErrFrameTooLarge means the declared length exceeds the reader limit.
	ErrFrameTooLarge = errors.New("frame too large")
)

// DeadlineReader is a stream whose reads can be bounded in time.
type DeadlineReader interface {
	io.Reader
	SetReadDeadline(t time.Time) error
}

// Reader reads frames from a stream.
type Reader struct {
	r       DeadlineReader
	maxSize int
}

// NewReader returns a frame reader. maxSize <= 0 selects DefaultMaxFrameSize.
func NewReader(r DeadlineReader, maxSize int) *Reader {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &Reader{r: r, maxSize: maxSize}
}

// ReadFrame reads one frame with DefaultMaxFrameSize.
func ReadFrame(r DeadlineReader, timeout time.Duration) ([]byte, error) {
	return NewReader(r, 0).ReadFrame(timeout)
}

// ReadFrame waits up to timeout for a frame to start. Once its first byte has
// arrived, every further timeout window must make progress or the frame
// fails with ErrFrameTruncated. A zero timeout waits forever.
func (fr *Reader) ReadFrame(timeout time.Duration) ([]byte, error) {
	var prefix [PrefixSize]byte
	if err := fr.fill(prefix[:], timeout, true); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(prefix[:])
	if uint64(n) > uint64(fr.maxSize) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, fr.maxSize)
	}
	payload := make([]byte, n)
	if n == 0 {
		return payload, nil
	}
	if err := fr.fill(payload, timeout, false); err != nil {
		return nil, err
	}
	return payload, nil
}

// fill reads len(buf) bytes. fresh marks the very first read of a frame,
// the only point at which a timeout is recoverable.
func (fr *Reader) fill(buf []byte, timeout time.Duration, fresh bool) error {
	defer fr.r.SetReadDeadline(time.Time{})
	got := 0
	for got < len(buf) {
		if timeout > 0 {
			if err := fr.r.SetReadDeadline(time.Now().Add(timeout)); err != nil {
				return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
			}
		}
		n, err := fr.r.Read(buf[got:])
		got += n
		if err == nil {
			continue
		}
		if isTimeout(err) {
			if n > 0 {
				continue
			}
			if fresh && got == 0 {
				return ErrReadTimeout
			}
			return ErrFrameTruncated
		}
		if got == len(buf) {
			return nil
		}
		if errors.Is(err, io.EOF) && fresh && got == 0 {
			return ErrConnectionClosed
		}
		if errors.Is(err, io.EOF) {
			return ErrFrameTruncated
		}
		return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// AppendFrame appends the framed payload to dst.
func AppendFrame(dst, payload []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(payload)))
	return append(dst, payload...)
}

// WriteFrame writes prefix and payload with a single Write call, which
// net.Conn and tls.Conn serialize against concurrent writers.
func WriteFrame(w io.Writer, payload []byte) error {
	if uint64(len(payload)) > uint64(^uint32(0)) {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	buf := AppendFrame(make([]byte, 0, PrefixSize+len(payload)), payload)
	_, err := w.Write(buf)
	return err
}
