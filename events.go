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

package vaultsync

import "github.com/vaultsync/vaultsync/internal/logger"

// EventKind names a notification on a Vault's event stream.
type EventKind string

const (
	// EventChanged fires after any local or remote mutation of entries or
	// devices has been applied and persisted.
	EventChanged EventKind = "Changed"

	// EventLoadedFromLockedRepresentation fires once Unlock has finished
	// recovering (or creating) the vault's state.
	EventLoadedFromLockedRepresentation EventKind = "LoadedFromLockedRepresentation"

	// EventConnectToExistingVaultFinished fires once a pairing responder
	// has merged the initiator's vault, or an initiator has learned the
	// responder's identity and committed it as a peer.
	EventConnectToExistingVaultFinished EventKind = "ConnectToExistingVaultFinished"

	// EventConnectionStatusChanged carries a ConnectionStatus payload
	// mirroring the relay socket's connecting/connected/notConnected/failed
	// lifecycle.
	EventConnectionStatusChanged EventKind = "ConnectionToSyncServerStatusChanged"

	// EventReady fires once, the first time the relay connects or a
	// connect attempt has had enough time to fail, whichever comes first.
	EventReady EventKind = "Ready"

	// EventLog carries an informational or warning message a host may
	// want to surface, without being serious enough for an error return.
	EventLog EventKind = "Log"

	// EventPairingBundleReady fires once InitiateAddDevice has a bundle
	// ready for out-of-band transport to the responder. Not part of the
	// original closed event list, added because the bundle string itself
	// has to reach the host somehow and InitiateAddDevice's own call
	// already returns before the bundle exists.
	EventPairingBundleReady EventKind = "PairingBundleReady"

	// EventPairingCancelled fires when the peer (or we) abort an
	// in-progress add-device flow. Added for the same reason as
	// EventPairingBundleReady: the host needs to know pairing ended
	// without EventConnectToExistingVaultFinished firing.
	EventPairingCancelled EventKind = "PairingCancelled"
)

// ConnectionStatus is EventConnectionStatusChanged's payload.
type ConnectionStatus string

const (
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusNotConnected ConnectionStatus = "notConnected"
	StatusFailed       ConnectionStatus = "failed"
)

// LogSeverity is EventLog's severity.
type LogSeverity string

const (
	SeverityInfo    LogSeverity = "info"
	SeverityWarning LogSeverity = "warning"
)

// LogPayload is EventLog's payload.
type LogPayload struct {
	Severity LogSeverity
	Message  string
}

// Event is one notification on a Vault's event stream. Payload's concrete
// type depends on Kind: nil for EventChanged/EventLoadedFromLockedRepresentation,
// ConnectionStatus for EventConnectionStatusChanged, LogPayload for
// EventLog, a base64 bundle string for EventPairingBundleReady, nil
// otherwise.
type Event struct {
	Kind    EventKind
	Payload any
}

// Events returns the channel a host drains to observe vault activity. The
// channel is buffered (eventBufferSize); once a consumer falls behind and
// the buffer is full, new events are dropped rather than stalling the vault's own command
// processing, since no mutating call in this package may block on a
// slow/absent reader.
func (v *Vault) Events() <-chan Event {
	return v.events
}

func (v *Vault) emit(kind EventKind, payload any) {
	select {
	case v.events <- Event{Kind: kind, Payload: payload}:
	default:
		logger.Warn("event stream full, dropping event", logger.String("kind", string(kind)))
	}
}

func (v *Vault) emitLog(severity LogSeverity, message string) {
	v.emit(EventLog, LogPayload{Severity: severity, Message: message})
}
