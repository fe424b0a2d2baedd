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
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vaultsync/vaultsync/internal/logger"
	"github.com/vaultsync/vaultsync/internal/metrics"
	"github.com/vaultsync/vaultsync/vaulterr"
)

// ConnectionEvent names the connection lifecycle notifications a
// WebsocketTransport surfaces to the host, mirroring spec.md's
// ConnectionToSyncServerStatusChanged states plus a one-shot Ready signal.
type ConnectionEvent string

const (
	EventConnecting   ConnectionEvent = "connecting"
	EventConnected    ConnectionEvent = "connected"
	EventNotConnected ConnectionEvent = "notConnected"
	EventFailed       ConnectionEvent = "failed"
	EventReady        ConnectionEvent = "ready"
)

// EventFunc receives connection lifecycle notifications.
type EventFunc func(event ConnectionEvent)

const (
	defaultReconnectInterval = 5 * time.Second
	handshakeTimeout         = 10 * time.Second
	writeTimeout             = 10 * time.Second
	readTimeout              = 70 * time.Second
)

// Option configures a WebsocketTransport at construction.
type Option func(*WebsocketTransport)

// WithReconnectInterval overrides the production 5 s backoff, used by
// tests to keep reconnect loops fast (spec.md's 100 ms test interval).
func WithReconnectInterval(d time.Duration) Option {
	return func(t *WebsocketTransport) { t.reconnectInterval = d }
}

// WithAllowInsecure permits a ws:// URL, otherwise rejected outside
// wss://. Production callers must never set this.
func WithAllowInsecure() Option {
	return func(t *WebsocketTransport) { t.allowInsecure = true }
}

// WebsocketTransport implements Sync over a single reconnecting websocket
// connection to the sync relay.
type WebsocketTransport struct {
	url      string
	deviceID string
	handler  Handler
	onEvent  EventFunc

	reconnectInterval time.Duration
	allowInsecure     bool
	dialer            *websocket.Dialer

	mu              sync.Mutex
	conn            *websocket.Conn
	connected       bool
	shouldReconnect bool
	closeCh         chan struct{}
	readyFired      bool
}

// NewWebsocketTransport constructs a transport for the given relay URL and
// device identity. handler receives every inbound envelope; onEvent
// receives connection lifecycle notifications. Neither may be nil.
func NewWebsocketTransport(url, deviceID string, handler Handler, onEvent EventFunc, opts ...Option) (*WebsocketTransport, error) {
	t := &WebsocketTransport{
		url:               url,
		deviceID:          deviceID,
		handler:           handler,
		onEvent:           onEvent,
		reconnectInterval: defaultReconnectInterval,
		dialer:            &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
	}
	for _, opt := range opts {
		opt(t)
	}
	if !strings.HasPrefix(url, "wss://") && !(t.allowInsecure && strings.HasPrefix(url, "ws://")) {
		return nil, vaulterr.New(vaulterr.KindInitialization, "sync server url must use wss://", nil)
	}
	return t, nil
}

// Connect starts the dial/reconnect loop in the background and returns
// immediately. It arms the reconnectInterval+1s "give up waiting" timer
// spec.md assigns to the Ready event.
func (t *WebsocketTransport) Connect() {
	t.mu.Lock()
	if t.shouldReconnect {
		t.mu.Unlock()
		return
	}
	t.shouldReconnect = true
	t.closeCh = make(chan struct{})
	t.mu.Unlock()

	go t.runLoop()
	time.AfterFunc(t.reconnectInterval+time.Second, t.fireReadyIfStillDisconnected)
}

func (t *WebsocketTransport) fireReadyIfStillDisconnected() {
	t.mu.Lock()
	connected := t.connected
	alreadyFired := t.readyFired
	t.readyFired = true
	t.mu.Unlock()

	if connected || alreadyFired {
		return
	}
	t.emit(EventReady)
	t.emit(EventFailed)
}

func (t *WebsocketTransport) runLoop() {
	for {
		t.mu.Lock()
		reconnect := t.shouldReconnect
		closeCh := t.closeCh
		t.mu.Unlock()
		if !reconnect {
			return
		}

		t.emit(EventConnecting)
		conn, _, err := t.dialer.Dial(t.url, nil)
		if err != nil {
			metrics.TransportReconnects.WithLabelValues("error").Inc()
			logger.Warn("sync transport dial failed", logger.String("error", err.Error()))
			if !t.sleepOrClosed(closeCh) {
				return
			}
			continue
		}

		metrics.TransportReconnects.WithLabelValues("ok").Inc()
		t.onOpen(conn)
		t.readLoop(conn)

		t.mu.Lock()
		reconnect = t.shouldReconnect
		t.mu.Unlock()
		if !reconnect {
			return
		}
		t.emit(EventNotConnected)
		if !t.sleepOrClosed(closeCh) {
			return
		}
	}
}

func (t *WebsocketTransport) sleepOrClosed(closeCh chan struct{}) bool {
	select {
	case <-time.After(t.reconnectInterval):
		return true
	case <-closeCh:
		return false
	}
}

func (t *WebsocketTransport) onOpen(conn *websocket.Conn) {
	t.mu.Lock()
	t.conn = conn
	t.connected = true
	fired := t.readyFired
	t.readyFired = true
	t.mu.Unlock()

	if !fired {
		t.emit(EventReady)
	}
	t.emit(EventConnected)

	if err := t.Send(TypeConnect, ConnectData{DeviceID: t.deviceID}); err != nil {
		logger.Warn("failed to send initial connect message", logger.String("error", err.Error()))
	}
}

func (t *WebsocketTransport) readLoop(conn *websocket.Conn) {
	defer func() {
		t.mu.Lock()
		t.connected = false
		if t.conn == conn {
			t.conn = nil
		}
		t.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("sync transport read error", logger.String("error", err.Error()))
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			logger.Warn("discarding malformed sync message", logger.String("error", err.Error()))
			continue
		}

		metrics.MessagesReceived.WithLabelValues(string(env.Type)).Inc()
		if t.handler != nil {
			t.handler(env.Type, env.Data)
		} else {
			logger.Warn("no handler registered, dropping message", logger.String("type", string(env.Type)))
		}
	}
}

// Send marshals data into an envelope and writes it if currently connected.
// Per the Sync interface contract, a disconnected socket drops the send
// silently rather than erroring: the caller's own persisted queue (the
// command log's pending-outbound list) is the actual delivery guarantee,
// replayed once Connected again.
func (t *WebsocketTransport) Send(msgType Type, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return vaulterr.New(vaulterr.KindInitialization, "failed to marshal outbound message", err)
	}

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return nil
	}

	env := Envelope{Type: msgType, Data: raw}
	envBytes, err := json.Marshal(env)
	if err != nil {
		return vaulterr.New(vaulterr.KindInitialization, "failed to marshal envelope", err)
	}

	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return nil
	}
	if err := conn.WriteMessage(websocket.TextMessage, envBytes); err != nil {
		logger.Warn("sync transport write failed, dropping message", logger.String("type", string(msgType)))
		return nil
	}
	metrics.MessagesSent.WithLabelValues(string(msgType)).Inc()
	return nil
}

// Connected reports whether the underlying socket is currently open.
func (t *WebsocketTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Close disables reconnect and tears down any open socket.
func (t *WebsocketTransport) Close() error {
	t.mu.Lock()
	if !t.shouldReconnect {
		t.mu.Unlock()
		return nil
	}
	t.shouldReconnect = false
	close(t.closeCh)
	conn := t.conn
	t.conn = nil
	t.connected = false
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return conn.Close()
}

func (t *WebsocketTransport) emit(event ConnectionEvent) {
	if t.onEvent != nil {
		t.onEvent(event)
	}
}
