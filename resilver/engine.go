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

// Package resilver implements on-demand full-vault re-exchange between
// paired devices, recovering from command loss the ordinary replication
// path can't detect on its own (a purged server queue, a suspected
// divergence bug).
package resilver

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"github.com/vaultsync/vaultsync/crypto"
	"github.com/vaultsync/vaultsync/device"
	"github.com/vaultsync/vaultsync/internal/logger"
	"github.com/vaultsync/vaultsync/internal/metrics"
	"github.com/vaultsync/vaultsync/syncdata"
	"github.com/vaultsync/vaultsync/transport"
	"github.com/vaultsync/vaultsync/vaulterr"
)

// requestWindow is how long an outstanding requestResilver call makes this
// device willing to accept an inbound vault message.
const requestWindow = 60 * time.Second

// Host is the facade surface the engine calls back into.
type Host interface {
	SelfDevice() device.Device
	PrivateKey() *rsa.PrivateKey
	Peers() []device.Device
	Snapshot() syncdata.Snapshot
	Merge(syncdata.Snapshot) error
}

// Engine drives one device's side of the resilver protocol.
type Engine struct {
	mu sync.Mutex

	provider crypto.Provider
	sync     transport.Sync
	host     Host

	requested bool
	timer     *time.Timer
}

// New constructs an Engine over the given crypto provider, transport, and
// facade host.
func New(provider crypto.Provider, syncTransport transport.Sync, host Host) *Engine {
	return &Engine{provider: provider, sync: syncTransport, host: host}
}

// RequestResilver asks every device named in deviceIDs (or, if empty, every
// known peer) to resend its view of the vault, and opens the 60 s window
// during which an inbound vault message from them is trusted.
func (e *Engine) RequestResilver(deviceIDs []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	nonce, err := e.randomNonce()
	if err != nil {
		return err
	}

	e.requested = true
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(requestWindow, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.requested = false
	})

	metrics.ResilverRequests.WithLabelValues("requester", "started").Inc()

	return e.sync.Send(transport.TypeStartResilver, transport.StartResilverData{
		DeviceIDs: deviceIDs,
		Nonce:     nonce,
	})
}

// HandleStartResilver processes a server-broadcast startResilver: every
// other sync device with a known public key gets a fresh vault copy,
// wrapped under a one-time AES key RSA-encrypted to that peer.
func (e *Engine) HandleStartResilver(data transport.StartResilverData) error {
	self := e.host.SelfDevice()
	snapshot := e.host.Snapshot()
	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return vaulterr.New(vaulterr.KindInitialization, "failed to marshal vault snapshot for resilver", err)
	}

	targets := e.host.Peers()
	if len(data.DeviceIDs) > 0 {
		targets = filterDevices(targets, data.DeviceIDs)
	}

	var firstErr error
	for _, peer := range targets {
		if peer.PublicKey == nil {
			continue
		}
		if err := e.sendVaultTo(peer, self.DeviceID, data.Nonce, snapshotJSON); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	metrics.ResilverRequests.WithLabelValues("responder", "honored").Inc()
	return firstErr
}

func (e *Engine) sendVaultTo(peer device.Device, selfID, nonce string, snapshotJSON []byte) error {
	aesKey, err := e.provider.RandomBytes(32)
	if err != nil {
		return err
	}
	encryptedKey, err := e.provider.Encrypt(peer.PublicKey, aesKey)
	if err != nil {
		return err
	}
	encryptedVault, err := e.provider.EncryptSymmetric(aesKey, snapshotJSON)
	if err != nil {
		return err
	}

	return e.sync.Send(transport.TypeVault, transport.VaultData{
		ForDeviceID:           peer.DeviceID,
		FromDeviceID:          selfID,
		Nonce:                 nonce,
		EncryptedVaultData:    encryptedVault,
		EncryptedSymmetricKey: encryptedKey,
	})
}

// HandleVault processes an inbound vault message, the resilver response to
// a prior RequestResilver call. Any message arriving outside the 60 s
// window, or addressed to another device, is treated as a replay.
func (e *Engine) HandleVault(data transport.VaultData) error {
	e.mu.Lock()
	requested := e.requested
	e.mu.Unlock()

	if !requested {
		metrics.ReplayAttacksDetected.Inc()
		metrics.ResilverRequests.WithLabelValues("requester", "rejected_replay").Inc()
		return vaulterr.NewSync(vaulterr.SubKindReplay,
			"Got vault data while no resilver was requested, probably replay attack!", nil)
	}
	if data.ForDeviceID != e.host.SelfDevice().DeviceID {
		metrics.ReplayAttacksDetected.Inc()
		metrics.ResilverRequests.WithLabelValues("requester", "rejected_wrong_device").Inc()
		return vaulterr.NewSync(vaulterr.SubKindReplay, "vault message addressed to another device", nil)
	}

	aesKey, err := e.provider.UnwrapSymmetricKey(data.EncryptedSymmetricKey, e.host.PrivateKey())
	if err != nil {
		return err
	}
	raw, err := e.provider.DecryptSymmetric(aesKey, data.EncryptedVaultData)
	if err != nil {
		return err
	}
	var snapshot syncdata.Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return vaulterr.New(vaulterr.KindCrypto, "malformed decrypted vault snapshot", err)
	}

	if err := e.host.Merge(snapshot); err != nil {
		return err
	}

	logger.Info("resilver completed", logger.String("fromDeviceId", data.FromDeviceID))
	metrics.ResilverRequests.WithLabelValues("requester", "completed").Inc()
	return nil
}

func filterDevices(all []device.Device, ids []string) []device.Device {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	filtered := make([]device.Device, 0, len(all))
	for _, d := range all {
		if want[d.DeviceID] {
			filtered = append(filtered, d)
		}
	}
	return filtered
}

func (e *Engine) randomNonce() (string, error) {
	raw, err := e.provider.RandomBytes(16)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
