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

import (
	"encoding/base64"
	"encoding/json"

	"github.com/vaultsync/vaultsync/command"
	"github.com/vaultsync/vaultsync/device"
	"github.com/vaultsync/vaultsync/internal/logger"
	"github.com/vaultsync/vaultsync/persistence"
	"github.com/vaultsync/vaultsync/transport"
)

// outboundCommandPayload is what actually gets symmetrically encrypted per
// peer. It deliberately omits Command.ID: the relay assigns its own
// routing identity to a delivery, and CommandID already travels on the
// outer SyncCommandEnvelope/PendingOutboundCommand for that purpose, so
// carrying it twice would be redundant. Padding is a random-length filler
// so ciphertext size doesn't leak which command kind was sent.
type outboundCommandPayload struct {
	Kind          command.Kind
	Timestamp     int64
	SchemaVersion int

	AddEntry         *command.AddEntryPayload          `json:",omitempty"`
	UpdateEntry      *command.UpdateEntryPayload       `json:",omitempty"`
	DeleteEntry      *command.DeleteEntryPayload       `json:",omitempty"`
	AddSyncDevice    *command.AddSyncDevicePayload     `json:",omitempty"`
	ChangeDeviceInfo *command.ChangeDeviceInfoPayload  `json:",omitempty"`

	Padding string
}

func (v *Vault) randomPadding() (string, error) {
	n, err := v.provider.RandomBytes(1)
	if err != nil {
		return "", err
	}
	pad, err := v.provider.RandomBytes(int(n[0]))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(pad), nil
}

func (v *Vault) randomNonce() (string, error) {
	raw, err := v.provider.RandomBytes(16)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// fanout is command.Log's FanoutFunc: invoked synchronously, with the log's
// own mutex still held, for every locally-applied command (including
// undo/redo). It must not call back into the log; it only encrypts a copy
// for each peer, queues it for delivery and persists.
func (v *Vault) fanout(c *command.Command) {
	padding, err := v.randomPadding()
	if err != nil {
		v.logWarn("failed to generate fanout padding", err)
		return
	}
	payload := outboundCommandPayload{
		Kind:             c.Kind,
		Timestamp:        c.Timestamp,
		SchemaVersion:    c.SchemaVersion,
		AddEntry:         c.AddEntry,
		UpdateEntry:      c.UpdateEntry,
		DeleteEntry:      c.DeleteEntry,
		AddSyncDevice:    c.AddSyncDevice,
		ChangeDeviceInfo: c.ChangeDeviceInfo,
		Padding:          padding,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		v.logWarn("failed to marshal outbound command", err)
		return
	}

	// A freshly paired device already learned of itself via the pairing
	// handshake's initialVault exchange, so it doesn't need its own
	// AddSyncDevice command fanned back to it.
	var skip string
	if c.Kind == command.KindAddSyncDevice {
		skip = c.AddSyncDevice.Device.DeviceID
	}

	for _, peer := range v.devices.Peers(v.cfg.DeviceID) {
		if peer.DeviceID == skip {
			continue
		}
		envelope, err := v.encryptForPeer(peer, c.ID, raw)
		if err != nil {
			v.logWarn("failed to encrypt command for peer", err)
			continue
		}
		v.pending = append(v.pending, envelope)
	}

	if err := v.store.Save(); err != nil {
		v.logWarn("failed to persist after fanout", err)
	}
	v.sendPendingCommands()
	v.emit(EventChanged, nil)
}

func (v *Vault) encryptForPeer(peer device.Device, commandID string, plaintext []byte) (persistence.PendingOutboundCommand, error) {
	symKey, err := v.provider.RandomBytes(32)
	if err != nil {
		return persistence.PendingOutboundCommand{}, err
	}
	encryptedCommand, err := v.provider.EncryptSymmetric(symKey, plaintext)
	if err != nil {
		return persistence.PendingOutboundCommand{}, err
	}
	encryptedKey, err := v.provider.Encrypt(peer.PublicKey, symKey)
	if err != nil {
		return persistence.PendingOutboundCommand{}, err
	}
	return persistence.PendingOutboundCommand{
		CommandID:             commandID,
		TargetDeviceID:        peer.DeviceID,
		EncryptedSymmetricKey: encryptedKey,
		EncryptedCommand:      encryptedCommand,
	}, nil
}

// sendPendingCommands flushes the persisted outbound queue over the sync
// transport. A disconnected transport drops the send silently (per
// transport.Sync's contract); the queue itself, not the relay's receipt,
// is the delivery guarantee, so nothing further is needed here until a
// syncCommandsReceived ack trims it.
func (v *Vault) sendPendingCommands() {
	if len(v.pending) == 0 {
		return
	}
	nonce, err := v.randomNonce()
	if err != nil {
		v.logWarn("failed to generate nonce for pending commands", err)
		return
	}
	envelopes := make([]transport.SyncCommandEnvelope, 0, len(v.pending))
	for _, p := range v.pending {
		envelopes = append(envelopes, transport.SyncCommandEnvelope{
			CommandID:             p.CommandID,
			DeviceID:              p.TargetDeviceID,
			EncryptedSymmetricKey: p.EncryptedSymmetricKey,
			EncryptedCommand:      p.EncryptedCommand,
		})
	}
	if err := v.sync.Send(transport.TypeSyncCommands, transport.SyncCommandsData{
		Nonce:    nonce,
		Commands: envelopes,
	}); err != nil {
		v.logWarn("failed to send pending commands", err)
	}
}

// dispatchInbound decodes one inbound wire message and routes it to the
// pairing coordinator, resilver engine or this file's own sync-command
// handling. Every error here is logged at Warn and dropped, never panics:
// a malformed or hostile relay message must not take the vault down.
func (v *Vault) dispatchInbound(msgType transport.Type, raw []byte) {
	switch msgType {
	case transport.TypeAddSyncDeviceInitialiseData:
		var data transport.AddSyncDeviceInitialiseData
		if v.decode(msgType, raw, &data) {
			v.handlePairingInitialise(data)
		}
	case transport.TypeConfirmAddSyncDeviceInitialiseData:
		v.pairer.HandleConfirmInitialiseData()
	case transport.TypeJPAKEPass2:
		var data transport.JPAKEPass2Data
		if v.decode(msgType, raw, &data) {
			if err := v.pairer.HandleJPAKEPass2(data); err != nil {
				v.logWarn("JPAKEPass2 handling failed", err)
			}
		}
	case transport.TypeJPAKEPass3:
		var data transport.JPAKEPass3Data
		if v.decode(msgType, raw, &data) {
			if err := v.pairer.HandleJPAKEPass3(data); err != nil {
				v.logWarn("JPAKEPass3 handling failed", err)
			}
		}
	case transport.TypePublicKeyAndDeviceInfo:
		var data transport.PublicKeyAndDeviceInfoData
		if v.decode(msgType, raw, &data) {
			if err := v.pairer.HandlePublicKeyAndDeviceInfo(data); err != nil {
				v.logWarn("publicKeyAndDeviceInfo handling failed", err)
			}
		}
	case transport.TypeInitialVault:
		var data transport.InitialVaultData
		if v.decode(msgType, raw, &data) {
			if err := v.pairer.HandleInitialVault(data); err != nil {
				v.logWarn("initialVault handling failed", err)
			}
		}
	case transport.TypeVault:
		var data transport.VaultData
		if v.decode(msgType, raw, &data) {
			if err := v.resilv.HandleVault(data); err != nil {
				v.logWarn("vault handling failed", err)
			}
		}
	case transport.TypeAddSyncDeviceCancelled:
		v.pairer.HandleCancelled()
	case transport.TypeStartResilver:
		var data transport.StartResilverData
		if v.decode(msgType, raw, &data) {
			if err := v.resilv.HandleStartResilver(data); err != nil {
				v.logWarn("startResilver handling failed", err)
			}
		}
	case transport.TypeSyncCommands:
		var data transport.SyncCommandsData
		if v.decode(msgType, raw, &data) {
			v.handleSyncCommands(data)
		}
	case transport.TypeSyncCommandsReceived:
		var data transport.SyncCommandsReceivedData
		if v.decode(msgType, raw, &data) {
			v.handleSyncCommandsReceived(data)
		}
	case transport.TypeSyncCommandsExecuted:
		// Nothing further to track on the sending side: the relay-receipt
		// ack (syncCommandsReceived) already retires our pending entry.
	default:
		logger.Warn("dropping unhandled sync message", logger.String("type", string(msgType)))
	}
}

func (v *Vault) decode(msgType transport.Type, raw []byte, out any) bool {
	if err := json.Unmarshal(raw, out); err != nil {
		logger.Warn("discarding malformed sync message",
			logger.String("type", string(msgType)), logger.Error(err))
		return false
	}
	return true
}

// handlePairingInitialise exists only so dispatchInbound can log
// initiator-side messages it has no handler for; a responder reacts to
// this message out of band (scanning/pasting the bundle), not over the
// socket, so there is nothing to do here beyond noting it arrived.
func (v *Vault) handlePairingInitialise(_ transport.AddSyncDeviceInitialiseData) {
	logger.Info("add-device initialise broadcast observed")
}

// handleSyncCommands applies every command addressed to this device from
// an inbound batch, then acks the ones it actually applied.
func (v *Vault) handleSyncCommands(data transport.SyncCommandsData) {
	for _, envelope := range data.Commands {
		if envelope.DeviceID != v.cfg.DeviceID {
			continue
		}
		symKey, err := v.provider.UnwrapSymmetricKey(envelope.EncryptedSymmetricKey, v.keys.PrivateKey)
		if err != nil {
			v.logWarn("failed to unwrap inbound command key", err)
			continue
		}
		raw, err := v.provider.DecryptSymmetric(symKey, envelope.EncryptedCommand)
		if err != nil {
			v.logWarn("failed to decrypt inbound command", err)
			continue
		}
		var payload outboundCommandPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			v.logWarn("failed to parse inbound command payload", err)
			continue
		}
		cmd := &command.Command{
			ID:               envelope.CommandID,
			Kind:             payload.Kind,
			Timestamp:        payload.Timestamp,
			SchemaVersion:    payload.SchemaVersion,
			AddEntry:         payload.AddEntry,
			UpdateEntry:      payload.UpdateEntry,
			DeleteEntry:      payload.DeleteEntry,
			AddSyncDevice:    payload.AddSyncDevice,
			ChangeDeviceInfo: payload.ChangeDeviceInfo,
		}
		if err := v.log.EnqueueRemote(cmd); err != nil {
			v.logWarn("rejected inbound command", err)
		}
	}

	applied := v.log.DrainRemote()
	if len(applied) == 0 {
		return
	}

	ids := make([]string, 0, len(applied))
	for _, c := range applied {
		ids = append(ids, c.ID)
	}

	if err := v.store.Save(); err != nil {
		v.logWarn("failed to persist after applying remote commands", err)
	}
	v.emit(EventChanged, nil)

	if err := v.sync.Send(transport.TypeSyncCommandsExecuted, transport.SyncCommandsExecutedData{CommandIDs: ids}); err != nil {
		v.logWarn("failed to ack executed commands", err)
	}
}

// handleSyncCommandsReceived retires acknowledged entries from the
// persisted outbound queue.
func (v *Vault) handleSyncCommandsReceived(data transport.SyncCommandsReceivedData) {
	acked := make(map[string]bool, len(data.CommandIDs))
	for _, id := range data.CommandIDs {
		acked[id] = true
	}
	remaining := v.pending[:0]
	for _, p := range v.pending {
		if !acked[p.CommandID] {
			remaining = append(remaining, p)
		}
	}
	v.pending = remaining

	if err := v.store.Save(); err != nil {
		v.logWarn("failed to persist after receipt ack", err)
	}
}

// onTransportEvent maps the websocket transport's connection lifecycle
// onto the public event stream. It runs on the transport's own goroutines,
// so it enqueues rather than touching vault state directly.
func (v *Vault) onTransportEvent(event transport.ConnectionEvent) {
	v.enqueue(func() {
		switch event {
		case transport.EventReady:
			v.emit(EventReady, nil)
		case transport.EventConnecting:
			v.emit(EventConnectionStatusChanged, StatusConnecting)
		case transport.EventConnected:
			v.emit(EventConnectionStatusChanged, StatusConnected)
			v.sendPendingCommands()
		case transport.EventNotConnected:
			v.emit(EventConnectionStatusChanged, StatusNotConnected)
		case transport.EventFailed:
			v.emit(EventConnectionStatusChanged, StatusFailed)
		}
	})
}

// onPairingEvent maps pairing.Coordinator's lifecycle notifications onto
// the public event stream. It is always called synchronously from within
// the command goroutine (the coordinator itself is only ever driven from
// there), so no further enqueueing is needed.
func (v *Vault) onPairingEvent(name string, payload any) {
	switch name {
	case "bundleReady":
		v.emit(EventPairingBundleReady, payload)
	case "connectToExistingVaultFinished":
		v.emit(EventConnectToExistingVaultFinished, nil)
	case "addSyncDeviceCancelled":
		v.emit(EventPairingCancelled, nil)
	case "error":
		msg, _ := payload.(string)
		if err, ok := payload.(error); ok {
			msg = err.Error()
		}
		v.emitLog(SeverityWarning, msg)
	}
}

// InitiateAddDevice starts an add-device pairing flow as the initiator.
// The resulting bundle (for out-of-band transport to the responder)
// arrives via an EventPairingBundleReady event, not this call's return.
func (v *Vault) InitiateAddDevice() error {
	return v.do(func() error {
		return v.pairer.InitiateAddDevice()
	})
}

// RespondToAddDevice completes pairing as the responder, given the bundle
// string the initiator produced.
func (v *Vault) RespondToAddDevice(bundle string) error {
	return v.do(func() error {
		return v.pairer.RespondToAddDevice(bundle)
	})
}

// CancelAddDevice aborts an in-progress add-device flow.
func (v *Vault) CancelAddDevice() error {
	return v.do(func() error {
		return v.pairer.CancelAddDevice()
	})
}

// RequestResilver asks the named peers (or, if empty, every peer) for a
// fresh full-vault copy.
func (v *Vault) RequestResilver(deviceIDs []string) error {
	return v.do(func() error {
		return v.resilv.RequestResilver(deviceIDs)
	})
}
