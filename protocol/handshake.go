// File: protocol/handshake.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// RFC6455 opening handshake on top of the http1 codec.

package protocol

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/momentics/hioload-appserver/http1"
)

var (
	ErrNotUpgrade          = errors.New("websocket: request is not an upgrade")
	ErrMissingWebSocketKey = errors.New("websocket: missing Sec-WebSocket-Key header")
	ErrBadWebSocketVersion = errors.New("websocket: unsupported version; only 13 is supported")
	ErrBadAccept           = errors.New("websocket: Sec-WebSocket-Accept mismatch")
)

// ComputeAcceptKey computes the Sec-WebSocket-Accept value from the client's key.
func ComputeAcceptKey(clientKey string) string {
	hash := sha1.Sum([]byte(clientKey + WebSocketGUID))
	return base64.StdEncoding.EncodeToString(hash[:])
}

// IsUpgrade reports whether req asks to switch to WebSocket. It does not
// check the version or key; see ValidateUpgrade.
func IsUpgrade(req *http1.Request) bool {
	return req.Method == "GET" &&
		req.Header.HasToken(HeaderConnection, ValueUpgrade) &&
		req.Header.HasToken(HeaderUpgrade, ValueWebSocket)
}

// ValidateUpgrade checks every header the server needs to accept req.
func ValidateUpgrade(req *http1.Request) error {
	if !IsUpgrade(req) {
		return ErrNotUpgrade
	}
	if strings.TrimSpace(req.Header.Get(HeaderSecWebSocketVersion)) != RequiredWebSocketVersion {
		return ErrBadWebSocketVersion
	}
	if strings.TrimSpace(req.Header.Get(HeaderSecWebSocketKey)) == "" {
		return ErrMissingWebSocketKey
	}
	return nil
}

// SelectSubprotocol returns the first protocol offered by the client that the
// server supports, or "".
func SelectSubprotocol(req *http1.Request, supported []string) string {
	offered, ok := req.Header.Lookup(HeaderSecWebSocketProtocol)
	if !ok {
		return ""
	}
	for _, p := range strings.Split(offered, ",") {
		p = strings.TrimSpace(p)
		for _, s := range supported {
			if p == s {
				return s
			}
		}
	}
	return ""
}

// AcceptUpgrade validates req and builds the 101 response. The selected
// subprotocol is returned alongside.
func AcceptUpgrade(req *http1.Request, supported []string) (*http1.Response, string, error) {
	if err := ValidateUpgrade(req); err != nil {
		return nil, "", err
	}
	resp := http1.NewResponse(http1.StatusSwitchingProtocols)
	resp.Header.Set(HeaderUpgrade, ValueWebSocket)
	resp.Header.Set(HeaderConnection, "Upgrade")
	resp.Header.Set(HeaderSecWebSocketAccept, ComputeAcceptKey(strings.TrimSpace(req.Header.Get(HeaderSecWebSocketKey))))
	sub := SelectSubprotocol(req, supported)
	if sub != "" {
		resp.Header.Set(HeaderSecWebSocketProtocol, sub)
	}
	return resp, sub, nil
}

// RejectUpgrade builds the 400 response sent for a failed handshake.
func RejectUpgrade(err error) *http1.Response {
	resp := http1.NewTextResponse(http1.StatusBadRequest, err.Error())
	if errors.Is(err, ErrBadWebSocketVersion) {
		resp.Header.Set(HeaderSecWebSocketVersion, RequiredWebSocketVersion)
	}
	resp.Header.Set(HeaderConnection, "close")
	return resp
}

// NewClientKey returns a random base64 handshake key.
func NewClientKey(src io.Reader) (string, error) {
	if src == nil {
		src = rand.Reader
	}
	var nonce [16]byte
	if _, err := io.ReadFull(src, nonce[:]); err != nil {
		return "", fmt.Errorf("websocket: key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(nonce[:]), nil
}

// NewUpgradeRequest builds a client handshake request.
func NewUpgradeRequest(target, host, key string, protocols ...string) *http1.Request {
	req := http1.NewRequest("GET", target)
	req.Header.Set("Host", host)
	req.Header.Set(HeaderUpgrade, ValueWebSocket)
	req.Header.Set(HeaderConnection, "Upgrade")
	req.Header.Set(HeaderSecWebSocketKey, key)
	req.Header.Set(HeaderSecWebSocketVersion, RequiredWebSocketVersion)
	if len(protocols) > 0 {
		req.Header.Set(HeaderSecWebSocketProtocol, strings.Join(protocols, ", "))
	}
	return req
}

// VerifyUpgradeResponse checks the server's answer to a handshake sent with key.
func VerifyUpgradeResponse(resp *http1.Response, key string) error {
	if resp.StatusCode != http1.StatusSwitchingProtocols {
		return fmt.Errorf("%w: status %d", ErrNotUpgrade, resp.StatusCode)
	}
	if !resp.Header.HasToken(HeaderUpgrade, ValueWebSocket) || !resp.Header.HasToken(HeaderConnection, ValueUpgrade) {
		return ErrNotUpgrade
	}
	if resp.Header.Get(HeaderSecWebSocketAccept) != ComputeAcceptKey(key) {
		return ErrBadAccept
	}
	return nil
}
