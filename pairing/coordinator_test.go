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

package pairing

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultsync/vaultsync/crypto"
	"github.com/vaultsync/vaultsync/device"
	"github.com/vaultsync/vaultsync/syncdata"
	"github.com/vaultsync/vaultsync/transport"
	"github.com/vaultsync/vaultsync/vaulterr"
)

// fastParams keeps Argon2id cheap enough for the suite to run in
// milliseconds instead of the production cost (512 MiB, 256 iterations).
var fastParams = crypto.Argon2Params{Parallelism: 1, Iterations: 1, MemoryKiB: 8}

// recordingWire is a transport.Sync that never touches the network: each
// Send just records the envelope so the test can forward it to the other
// side's matching Handle* method on its own terms. Driving the handshake
// this way (rather than dispatching back into the sender from inside
// Send) avoids relocking a Coordinator's own mutex from within its own
// call stack.
type recordingWire struct {
	connected bool
	lastType  transport.Type
	lastData  []byte
}

func (w *recordingWire) Send(msgType transport.Type, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	w.lastType, w.lastData = msgType, raw
	return nil
}

func (w *recordingWire) Connected() bool { return w.connected }
func (w *recordingWire) Close() error    { w.connected = false; return nil }

// fakeHost is a minimal pairing.Host backed by an in-memory snapshot.
type fakeHost struct {
	self     device.Device
	snapshot syncdata.Snapshot
	merged   *syncdata.Snapshot
	added    []device.Device
}

func (h *fakeHost) SelfDevice() device.Device   { return h.self }
func (h *fakeHost) Snapshot() syncdata.Snapshot { return h.snapshot }

func (h *fakeHost) ApplyAddSyncDevice(d device.Device) error {
	h.added = append(h.added, d)
	return nil
}

func (h *fakeHost) Merge(s syncdata.Snapshot) error {
	h.merged = &s
	return nil
}

func devicePair(t *testing.T) (device.Device, device.Device) {
	t.Helper()
	p := crypto.NewProviderWithParams(fastParams)

	initKeys, err := p.CreateKeys("initiator-passphrase")
	require.NoError(t, err)
	respKeys, err := p.CreateKeys("responder-passphrase")
	require.NoError(t, err)

	initiator := device.Device{DeviceID: "initiator-device", DeviceType: "desktop", FriendlyName: "Initiator", PublicKey: initKeys.PublicKey}
	responder := device.Device{DeviceID: "responder-device", DeviceType: "mobile", FriendlyName: "Responder", PublicKey: respKeys.PublicKey}
	return initiator, responder
}

// handshake bundles the two coordinators, their hosts, wires, and captured
// events needed to drive a full add-device flow step by step.
type handshake struct {
	t *testing.T

	initC, respC           *Coordinator
	initHost, respHost     *fakeHost
	initWire, respWire     *recordingWire
	initEvents, respEvents []string
}

func newHandshake(t *testing.T) *handshake {
	t.Helper()
	initDevice, respDevice := devicePair(t)
	p := crypto.NewProviderWithParams(fastParams)

	h := &handshake{t: t}
	h.initHost = &fakeHost{self: initDevice, snapshot: syncdata.Snapshot{DeviceID: initDevice.DeviceID, Devices: []device.Device{initDevice}}}
	h.respHost = &fakeHost{self: respDevice}
	h.initWire = &recordingWire{connected: true}
	h.respWire = &recordingWire{connected: true}

	h.initC = New(p, h.initWire, h.initHost, func(name string, _ any) { h.initEvents = append(h.initEvents, name) })
	h.respC = New(p, h.respWire, h.respHost, func(name string, _ any) { h.respEvents = append(h.respEvents, name) })
	return h
}

// run drives the handshake to completion: initiate, confirm, bundle
// exchange, the three J-PAKE passes, and the final vault exchange.
func (h *handshake) run() {
	t := h.t
	require.NoError(t, h.initC.InitiateAddDevice())

	h.initC.HandleConfirmInitialiseData()
	require.Contains(t, h.initEvents, "bundleReady")
	bundleStr := h.lastBundle()

	require.NoError(t, h.respC.RespondToAddDevice(bundleStr))
	require.Equal(t, transport.TypeJPAKEPass2, h.respWire.lastType)

	var pass2 transport.JPAKEPass2Data
	require.NoError(t, json.Unmarshal(h.respWire.lastData, &pass2))
	require.NoError(t, h.initC.HandleJPAKEPass2(pass2))
	require.Equal(t, transport.TypeJPAKEPass3, h.initWire.lastType)

	var pass3 transport.JPAKEPass3Data
	require.NoError(t, json.Unmarshal(h.initWire.lastData, &pass3))
	require.NoError(t, h.respC.HandleJPAKEPass3(pass3))
	require.Equal(t, transport.TypePublicKeyAndDeviceInfo, h.respWire.lastType)

	var pkInfo transport.PublicKeyAndDeviceInfoData
	require.NoError(t, json.Unmarshal(h.respWire.lastData, &pkInfo))
	require.NoError(t, h.initC.HandlePublicKeyAndDeviceInfo(pkInfo))
	require.Equal(t, transport.TypeInitialVault, h.initWire.lastType)

	var initialVault transport.InitialVaultData
	require.NoError(t, json.Unmarshal(h.initWire.lastData, &initialVault))
	require.NoError(t, h.respC.HandleInitialVault(initialVault))
}

// lastBundle extracts the pairing bundle string the test's onEvent
// callback observed, by recomputing it from the coordinator rather than
// threading the payload through the event slice (which only records names).
func (h *handshake) lastBundle() string {
	bundle := Bundle{
		AddDevicePassword: h.initC.session.password,
		InitiatorDeviceID: h.initHost.self.DeviceID,
		Timestamp:         h.initC.session.timestamp,
		Pass1:             *h.initC.session.ownPass1,
	}
	encoded, err := EncodeBundle(bundle)
	require.NoError(h.t, err)
	return encoded
}

func TestFullPairingHandshakeConvergesOnSyncKeyAndState(t *testing.T) {
	h := newHandshake(t)
	h.run()

	assert.Equal(t, StateIdle, h.initC.State())
	assert.Equal(t, StateIdle, h.respC.State())

	assert.Contains(t, h.initEvents, "connectToExistingVaultFinished")
	assert.Contains(t, h.respEvents, "connectToExistingVaultFinished")

	require.Len(t, h.initHost.added, 1)
	assert.Equal(t, "responder-device", h.initHost.added[0].DeviceID)

	require.NotNil(t, h.respHost.merged)
	assert.Equal(t, "initiator-device", h.respHost.merged.DeviceID)
}

func TestInitiateAddDeviceRejectsConcurrentSession(t *testing.T) {
	h := newHandshake(t)

	require.NoError(t, h.initC.InitiateAddDevice())
	err := h.initC.InitiateAddDevice()
	require.Error(t, err)
	assert.True(t, vaulterr.IsSub(err, vaulterr.KindSync, vaulterr.SubKindAddDeviceConflict))
}

func TestInitiateAddDeviceRequiresConnection(t *testing.T) {
	initDevice, _ := devicePair(t)
	p := crypto.NewProviderWithParams(fastParams)
	host := &fakeHost{self: initDevice}
	w := &recordingWire{connected: false}
	c := New(p, w, host, nil)

	err := c.InitiateAddDevice()
	require.Error(t, err)
	assert.True(t, vaulterr.IsSub(err, vaulterr.KindSync, vaulterr.SubKindNoServerConnection))
}

func TestCancelAddDeviceClearsSessionAndNotifiesPeer(t *testing.T) {
	h := newHandshake(t)

	require.NoError(t, h.initC.InitiateAddDevice())
	require.NoError(t, h.initC.CancelAddDevice())
	assert.Equal(t, StateIdle, h.initC.State())

	// Cancelling clears the session entirely, so give the responder one to
	// cancel via a fresh initiate/bundle round before exercising
	// HandleCancelled.
	require.NoError(t, h.initC.InitiateAddDevice())
	h.initC.HandleConfirmInitialiseData()
	bundleStr := h.lastBundle()
	require.NoError(t, h.respC.RespondToAddDevice(bundleStr))
	require.Equal(t, StateResponding, h.respC.State())

	h.respC.HandleCancelled()
	assert.Equal(t, StateIdle, h.respC.State())
	assert.Contains(t, h.respEvents, "addSyncDeviceCancelled")
}

func TestCancelAddDeviceWithNoActiveSessionErrors(t *testing.T) {
	initDevice, _ := devicePair(t)
	p := crypto.NewProviderWithParams(fastParams)
	host := &fakeHost{self: initDevice}
	w := &recordingWire{connected: true}
	c := New(p, w, host, nil)

	err := c.CancelAddDevice()
	require.Error(t, err)
	assert.True(t, vaulterr.Is(err, vaulterr.KindInvalidCommand))
}

func TestRespondToAddDeviceRejectsMalformedBundle(t *testing.T) {
	respDevice := device.Device{DeviceID: "responder-device"}
	p := crypto.NewProviderWithParams(fastParams)
	host := &fakeHost{self: respDevice}
	w := &recordingWire{connected: true}
	c := New(p, w, host, nil)

	err := c.RespondToAddDevice("not-valid-base64-json")
	require.Error(t, err)
}

func TestSessionTimesOutAfterRegistrationWindow(t *testing.T) {
	initDevice, _ := devicePair(t)
	p := crypto.NewProviderWithParams(fastParams)
	host := &fakeHost{self: initDevice}
	w := &recordingWire{connected: true}

	var events []string
	done := make(chan struct{})
	c := New(p, w, host, func(name string, _ any) {
		events = append(events, name)
		if name == "timeout" {
			close(done)
		}
	})

	require.NoError(t, c.InitiateAddDevice())
	assert.Equal(t, StateInitiated, c.State())

	select {
	case <-done:
	case <-time.After(registrationTimeout + 2*time.Second):
		t.Fatal("timed out waiting for pairing session timeout event")
	}

	assert.Equal(t, StateIdle, c.State())
	assert.Contains(t, events, "timeout")
}
