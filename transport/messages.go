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

// Package transport defines the sync relay's wire protocol and a Sync
// interface that the pairing, resilver, and command layers send through.
package transport

import "encoding/json"

// Type names a wire message's shape. Messages are JSON-tagged by this
// field, matched on the client and the relay alike.
type Type string

const (
	TypeConnect                             Type = "connect"
	TypeAddSyncDeviceInitialiseData         Type = "addSyncDeviceInitialiseData"
	TypeConfirmAddSyncDeviceInitialiseData  Type = "confirmAddSyncDeviceInitialiseData"
	TypeJPAKEPass2                          Type = "JPAKEPass2"
	TypeJPAKEPass3                          Type = "JPAKEPass3"
	TypePublicKeyAndDeviceInfo              Type = "publicKeyAndDeviceInfo"
	TypeInitialVault                        Type = "initialVault"
	TypeVault                               Type = "vault"
	TypeAddSyncDeviceCancelled              Type = "addSyncDeviceCancelled"
	TypeSyncCommands                        Type = "syncCommands"
	TypeSyncCommandsReceived                Type = "syncCommandsReceived"
	TypeSyncCommandsExecuted                Type = "syncCommandsExecuted"
	TypeStartResilver                       Type = "startResilver"
)

// Envelope is the outer shape of every wire message: a type tag plus a
// raw payload the handler re-decodes into the concrete struct below.
type Envelope struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ConnectData is sent once, immediately after the socket opens.
type ConnectData struct {
	DeviceID string `json:"deviceId"`
}

// AddSyncDeviceInitialiseData announces a new pairing attempt.
type AddSyncDeviceInitialiseData struct {
	InitiatorDeviceID string `json:"initiatorDeviceId"`
	Timestamp         int64  `json:"timestamp"`
	Nonce             string `json:"nonce"`
}

// ConfirmAddSyncDeviceInitialiseData acknowledges the above.
type ConfirmAddSyncDeviceInitialiseData struct{}

// JPAKEPass2Data carries the responder's pass-2 contribution.
type JPAKEPass2Data struct {
	Nonce             string          `json:"nonce"`
	Pass2Result       json.RawMessage `json:"pass2Result"`
	ResponderDeviceID string          `json:"responderDeviceId"`
	InitiatorDeviceID string          `json:"initiatorDeviceId"`
}

// JPAKEPass3Data carries the initiator's pass-3 contribution.
type JPAKEPass3Data struct {
	Nonce             string          `json:"nonce"`
	InitiatorDeviceID string          `json:"initiatorDeviceId"`
	Pass3Result       json.RawMessage `json:"pass3Result"`
}

// PublicKeyAndDeviceInfoData carries the responder's identity, encrypted
// under the freshly derived sync key.
type PublicKeyAndDeviceInfoData struct {
	Nonce                        string `json:"nonce"`
	ResponderEncryptedPublicKey  string `json:"responderEncryptedPublicKey"`
	ResponderEncryptedDeviceInfo string `json:"responderEncryptedDeviceInfo"`
	InitiatorDeviceID            string `json:"initiatorDeviceId"`
}

// InitialVaultData hands the responder a full copy of the vault, encrypted
// under the sync key.
type InitialVaultData struct {
	Nonce               string `json:"nonce"`
	EncryptedVaultData  string `json:"encryptedVaultData"`
	InitiatorDeviceID   string `json:"initiatorDeviceId"`
}

// VaultData is a resilver response: a full vault copy addressed to one peer.
type VaultData struct {
	ForDeviceID           string `json:"forDeviceId"`
	FromDeviceID          string `json:"fromDeviceId"`
	Nonce                 string `json:"nonce"`
	EncryptedVaultData    string `json:"encryptedVaultData"`
	EncryptedSymmetricKey string `json:"encryptedSymmetricKey"`
}

// AddSyncDeviceCancelledData aborts an in-progress pairing flow.
type AddSyncDeviceCancelledData struct {
	InitiatorDeviceID string `json:"initiatorDeviceId"`
}

// SyncCommandEnvelope is one command as carried inside a syncCommands batch.
type SyncCommandEnvelope struct {
	CommandID             string `json:"commandId"`
	DeviceID              string `json:"deviceId"`
	EncryptedSymmetricKey string `json:"encryptedSymmetricKey"`
	EncryptedCommand      string `json:"encryptedCommand"`
}

// SyncCommandsData is the full pending-outbound queue, sent non-incrementally.
type SyncCommandsData struct {
	Nonce    string                `json:"nonce"`
	Commands []SyncCommandEnvelope `json:"commands"`
}

// SyncCommandsReceivedData acknowledges which outbound command ids the
// relay accepted.
type SyncCommandsReceivedData struct {
	CommandIDs []string `json:"commandIds"`
}

// SyncCommandsExecutedData acknowledges which inbound command ids were
// applied locally.
type SyncCommandsExecutedData struct {
	CommandIDs []string `json:"commandIds"`
}

// StartResilverData requests (or broadcasts) a full-vault re-exchange.
type StartResilverData struct {
	DeviceIDs []string `json:"deviceIds"`
	Nonce     string   `json:"nonce"`
}

// Sync is the transport surface the rest of the library sends through. It
// is intentionally narrow (one Send, one Close) so pairing/resilver/command
// code never depends on websocket specifics or reconnect state directly.
type Sync interface {
	// Send enqueues msg for delivery, returning an error only for
	// programmer mistakes (e.g. an unmarshalable payload); a closed or
	// reconnecting socket drops the send silently per spec, since the
	// caller's own persisted queue is the real delivery guarantee.
	Send(msgType Type, data any) error

	// Connected reports the current logical connection state.
	Connected() bool

	// Close tears the transport down and disables reconnect.
	Close() error
}

// Handler is invoked once per inbound message, after type-tagged
// unmarshaling of Data into the matching *Data struct above.
type Handler func(msgType Type, data []byte)
