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

package resilver

import (
	"crypto/rsa"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultsync/vaultsync/crypto"
	"github.com/vaultsync/vaultsync/device"
	"github.com/vaultsync/vaultsync/syncdata"
	"github.com/vaultsync/vaultsync/totp"
	"github.com/vaultsync/vaultsync/transport"
	"github.com/vaultsync/vaultsync/vault"
	"github.com/vaultsync/vaultsync/vaulterr"
)

var fastParams = crypto.Argon2Params{Parallelism: 1, Iterations: 1, MemoryKiB: 8}

type recordingWire struct {
	connected bool
	sent      []sentMessage
}

type sentMessage struct {
	msgType transport.Type
	data    []byte
}

func (w *recordingWire) Send(msgType transport.Type, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	w.sent = append(w.sent, sentMessage{msgType: msgType, data: raw})
	return nil
}

func (w *recordingWire) Connected() bool { return w.connected }
func (w *recordingWire) Close() error    { w.connected = false; return nil }

type fakeHost struct {
	self     device.Device
	priv     *rsa.PrivateKey
	peers    []device.Device
	snapshot syncdata.Snapshot
	merged   *syncdata.Snapshot
}

func (h *fakeHost) SelfDevice() device.Device   { return h.self }
func (h *fakeHost) PrivateKey() *rsa.PrivateKey { return h.priv }
func (h *fakeHost) Peers() []device.Device      { return h.peers }
func (h *fakeHost) Snapshot() syncdata.Snapshot { return h.snapshot }

func (h *fakeHost) Merge(s syncdata.Snapshot) error {
	h.merged = &s
	return nil
}

func testEntry(id string) vault.Entry {
	return vault.Entry{
		ID:     id,
		Name:   "Test",
		Issuer: "Test Issuer",
		Type:   vault.TypeTOTP,
		Payload: vault.Payload{
			Secret:    "TESTSECRET",
			Period:    30,
			Digits:    6,
			Algorithm: totp.SHA1,
		},
	}
}

func TestHandleStartResilverSendsVaultToEachPeer(t *testing.T) {
	p := crypto.NewProviderWithParams(fastParams)
	aKeys, err := p.CreateKeys("a-pass")
	require.NoError(t, err)
	bKeys, err := p.CreateKeys("b-pass")
	require.NoError(t, err)

	self := device.Device{DeviceID: "device-a", PublicKey: aKeys.PublicKey}
	peerB := device.Device{DeviceID: "device-b", PublicKey: bKeys.PublicKey}

	host := &fakeHost{
		self:     self,
		priv:     aKeys.PrivateKey,
		peers:    []device.Device{peerB},
		snapshot: syncdata.Snapshot{DeviceID: "device-a", Entries: []vault.Entry{testEntry("e1")}, Devices: []device.Device{self, peerB}},
	}
	w := &recordingWire{connected: true}
	e := New(p, w, host)

	require.NoError(t, e.HandleStartResilver(transport.StartResilverData{Nonce: "n1"}))

	require.Len(t, w.sent, 1)
	assert.Equal(t, transport.TypeVault, w.sent[0].msgType)

	var vaultMsg transport.VaultData
	require.NoError(t, json.Unmarshal(w.sent[0].data, &vaultMsg))
	assert.Equal(t, "device-b", vaultMsg.ForDeviceID)
	assert.Equal(t, "device-a", vaultMsg.FromDeviceID)
	assert.Equal(t, "n1", vaultMsg.Nonce)
	assert.NotEmpty(t, vaultMsg.EncryptedVaultData)
	assert.NotEmpty(t, vaultMsg.EncryptedSymmetricKey)
}

func TestHandleVaultRejectsWithoutOutstandingRequest(t *testing.T) {
	p := crypto.NewProviderWithParams(fastParams)
	aKeys, err := p.CreateKeys("a-pass")
	require.NoError(t, err)

	host := &fakeHost{self: device.Device{DeviceID: "device-a"}, priv: aKeys.PrivateKey}
	w := &recordingWire{connected: true}
	e := New(p, w, host)

	err = e.HandleVault(transport.VaultData{ForDeviceID: "device-a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "probably replay attack")
	assert.True(t, vaulterr.Is(err, vaulterr.KindSync))
}

func TestHandleVaultRejectsWrongRecipient(t *testing.T) {
	p := crypto.NewProviderWithParams(fastParams)
	aKeys, err := p.CreateKeys("a-pass")
	require.NoError(t, err)

	host := &fakeHost{self: device.Device{DeviceID: "device-a"}, priv: aKeys.PrivateKey}
	w := &recordingWire{connected: true}
	e := New(p, w, host)

	require.NoError(t, e.RequestResilver(nil))

	err = e.HandleVault(transport.VaultData{ForDeviceID: "nonexistent"})
	require.Error(t, err)
}

func TestFullResilverRoundTripMergesSnapshot(t *testing.T) {
	p := crypto.NewProviderWithParams(fastParams)
	aKeys, err := p.CreateKeys("a-pass")
	require.NoError(t, err)
	bKeys, err := p.CreateKeys("b-pass")
	require.NoError(t, err)

	selfA := device.Device{DeviceID: "device-a", PublicKey: aKeys.PublicKey}
	selfB := device.Device{DeviceID: "device-b", PublicKey: bKeys.PublicKey}

	hostA := &fakeHost{self: selfA, priv: aKeys.PrivateKey, peers: []device.Device{selfB}}
	hostB := &fakeHost{
		self:     selfB,
		priv:     bKeys.PrivateKey,
		peers:    []device.Device{selfA},
		snapshot: syncdata.Snapshot{DeviceID: "device-b", Entries: []vault.Entry{testEntry("e1")}, Devices: []device.Device{selfA, selfB}},
	}

	wireA := &recordingWire{connected: true}
	wireB := &recordingWire{connected: true}
	engineA := New(p, wireA, hostA)
	engineB := New(p, wireB, hostB)

	require.NoError(t, engineA.RequestResilver(nil))

	require.NoError(t, engineB.HandleStartResilver(transport.StartResilverData{Nonce: "resilver-1"}))
	require.Len(t, wireB.sent, 1)

	var vaultMsg transport.VaultData
	require.NoError(t, json.Unmarshal(wireB.sent[0].data, &vaultMsg))

	require.NoError(t, engineA.HandleVault(vaultMsg))
	require.NotNil(t, hostA.merged)
	assert.Equal(t, "device-b", hostA.merged.DeviceID)
	require.Len(t, hostA.merged.Entries, 1)
	assert.Equal(t, "e1", hostA.merged.Entries[0].ID)
}
