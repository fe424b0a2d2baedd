// Copyright (C) 2025 vaultsync contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoServer accepts one websocket connection at a time and records every
// envelope it receives, optionally echoing a canned reply back.
type echoServer struct {
	upgrader websocket.Upgrader

	mu       sync.Mutex
	received []Envelope
	conn     *websocket.Conn
}

func newEchoServer() *echoServer {
	return &echoServer{upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}}
}

func (s *echoServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env Envelope
		if json.Unmarshal(raw, &env) != nil {
			continue
		}
		s.mu.Lock()
		s.received = append(s.received, env)
		s.mu.Unlock()
	}
}

func (s *echoServer) sendToClient(t *testing.T, env Envelope) {
	t.Helper()
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	require.NotNil(t, conn)
	require.NoError(t, conn.WriteJSON(env))
}

func (s *echoServer) receivedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestWebsocketTransportRejectsInsecureURLByDefault(t *testing.T) {
	_, err := NewWebsocketTransport("ws://relay.example.com", "device-a", nil, nil)
	require.Error(t, err)
}

func TestWebsocketTransportSendsConnectMessageOnOpen(t *testing.T) {
	server := newEchoServer()
	testServer := httptest.NewServer(server)
	defer testServer.Close()

	var events []ConnectionEvent
	var mu sync.Mutex
	onEvent := func(e ConnectionEvent) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}

	tr, err := NewWebsocketTransport(wsURL(testServer.URL), "device-a", nil, onEvent,
		WithAllowInsecure(), WithReconnectInterval(50*time.Millisecond))
	require.NoError(t, err)
	defer tr.Close()

	tr.Connect()

	require.Eventually(t, func() bool { return tr.Connected() }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return server.receivedCount() >= 1 }, 2*time.Second, 10*time.Millisecond)

	server.mu.Lock()
	first := server.received[0]
	server.mu.Unlock()
	assert.Equal(t, TypeConnect, first.Type)

	var connectData ConnectData
	require.NoError(t, json.Unmarshal(first.Data, &connectData))
	assert.Equal(t, "device-a", connectData.DeviceID)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, events, EventConnected)
	assert.Contains(t, events, EventReady)
}

func TestWebsocketTransportDispatchesInboundMessagesByType(t *testing.T) {
	server := newEchoServer()
	testServer := httptest.NewServer(server)
	defer testServer.Close()

	received := make(chan Type, 1)
	handler := func(msgType Type, data []byte) { received <- msgType }

	tr, err := NewWebsocketTransport(wsURL(testServer.URL), "device-a", handler, nil,
		WithAllowInsecure(), WithReconnectInterval(50*time.Millisecond))
	require.NoError(t, err)
	defer tr.Close()

	tr.Connect()
	require.Eventually(t, func() bool { return tr.Connected() }, 2*time.Second, 10*time.Millisecond)

	server.sendToClient(t, Envelope{Type: TypeStartResilver, Data: json.RawMessage(`{"nonce":"n1"}`)})

	select {
	case got := <-received:
		assert.Equal(t, TypeStartResilver, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatched message")
	}
}

func TestWebsocketTransportSendDropsSilentlyWhenDisconnected(t *testing.T) {
	tr, err := NewWebsocketTransport("wss://relay.example.com", "device-a", nil, nil)
	require.NoError(t, err)

	err = tr.Send(TypeConnect, ConnectData{DeviceID: "device-a"})
	assert.NoError(t, err)
	assert.False(t, tr.Connected())
}

func TestWebsocketTransportEmitsReadyAfterGracePeriodWhenUnreachable(t *testing.T) {
	var events []ConnectionEvent
	var mu sync.Mutex
	onEvent := func(e ConnectionEvent) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}

	tr, err := NewWebsocketTransport("ws://127.0.0.1:1", "device-a", nil, onEvent,
		WithAllowInsecure(), WithReconnectInterval(50*time.Millisecond))
	require.NoError(t, err)
	defer tr.Close()

	tr.Connect()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			if e == EventReady {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, events, EventFailed)
	assert.False(t, tr.Connected())
}

func TestWebsocketTransportCloseStopsReconnecting(t *testing.T) {
	server := newEchoServer()
	testServer := httptest.NewServer(server)

	tr, err := NewWebsocketTransport(wsURL(testServer.URL), "device-a", nil, nil,
		WithAllowInsecure(), WithReconnectInterval(20*time.Millisecond))
	require.NoError(t, err)

	tr.Connect()
	require.Eventually(t, func() bool { return tr.Connected() }, 2*time.Second, 10*time.Millisecond)

	testServer.Close()
	require.NoError(t, tr.Close())
	require.Eventually(t, func() bool { return !tr.Connected() }, 2*time.Second, 10*time.Millisecond)
}
