// File: cmd/hioload-appserver/modules.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Built-in application modules served by the serve command.

package main

import (
	"encoding/json"

	"github.com/momentics/hioload-appserver/api"
	"github.com/momentics/hioload-appserver/handlers/wshandler"
	"github.com/momentics/hioload-appserver/http1"
	"github.com/momentics/hioload-appserver/session"
)

// statusModule answers GET /healthz and GET /stats.
type statusModule struct {
	engine api.Engine
}

func (m statusModule) HandleRequest(_ *session.Connection, req *http1.Request) (*http1.Response, error) {
	if req.Method != "GET" {
		return nil, nil
	}
	switch req.URI {
	case "/healthz":
		if m.engine.State() != api.EngineRunning {
			return http1.NewTextResponse(http1.StatusServiceUnavailable, "stopping"), nil
		}
		return http1.NewTextResponse(http1.StatusOK, "ok"), nil
	case "/stats":
		body, err := json.Marshal(m.engine.Stats())
		if err != nil {
			return nil, err
		}
		resp := http1.NewResponse(http1.StatusOK)
		resp.SetBody("application/json", body)
		return resp, nil
	}
	return nil, nil
}

// echoModule returns the request body of POST /echo.
type echoModule struct{}

func (echoModule) HandleRequest(_ *session.Connection, req *http1.Request) (*http1.Response, error) {
	if req.URI != "/echo" || req.Method != "POST" {
		return nil, nil
	}
	resp := http1.NewResponse(http1.StatusOK)
	ct := req.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/octet-stream"
	}
	resp.SetBody(ct, req.Body)
	return resp, nil
}

// chatModule echoes messages on /echo and relays them to every other
// session on /chat.
type chatModule struct {
	wshandler.BaseModule
	ws *wshandler.Handler
}

type chatPath struct{ path string }

func (m *chatModule) ConnectionInitialized(conn *session.Connection, hs wshandler.Handshake) error {
	session.Set(conn.Resources(), chatPath{path: hs.Path})
	return nil
}

func (m *chatModule) HandleReceivedMessage(conn *session.Connection, msg wshandler.Message) (bool, error) {
	p, _ := session.TryGet[chatPath](conn.Resources())
	if p.path == "/chat" {
		for _, peer := range m.ws.Connections() {
			if peer == conn {
				continue
			}
			if q, ok := session.TryGet[chatPath](peer.Resources()); !ok || q.path != "/chat" {
				continue
			}
			if err := m.ws.Send(peer, msg.Opcode, msg.Payload); err != nil {
				return true, err
			}
		}
		return true, nil
	}
	return true, m.ws.Send(conn, msg.Opcode, msg.Payload)
}
