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
	"bytes"
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"github.com/vaultsync/vaultsync/crypto"
	"github.com/vaultsync/vaultsync/device"
	"github.com/vaultsync/vaultsync/internal/logger"
	"github.com/vaultsync/vaultsync/internal/metrics"
	"github.com/vaultsync/vaultsync/jpake"
	"github.com/vaultsync/vaultsync/syncdata"
	"github.com/vaultsync/vaultsync/transport"
	"github.com/vaultsync/vaultsync/vaulterr"
)

// registrationTimeout is the 10 s window after which a pairing session is
// aborted. The initiator's timer is stopped once the relay confirms its
// registration; the responder's once it has derived the sync key.
const registrationTimeout = 10 * time.Second

// otpPasswordBytes is the one-time password's raw length before base64
// encoding for out-of-band transport.
const otpPasswordBytes = 60

// Role distinguishes which side of the bundle exchange this coordinator
// plays in a given session.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

// State is the coordinator's coarse position in the add-device flow.
type State int

const (
	StateIdle State = iota
	StateInitiated  // initiator only
	StateResponding // responder only
	StateSyncKeyCreated
)

// Host is the facade surface the coordinator calls back into: reading and
// merging vault state, and committing the new peer once pairing completes.
type Host interface {
	SelfDevice() device.Device
	Snapshot() syncdata.Snapshot
	Merge(syncdata.Snapshot) error
	ApplyAddSyncDevice(device.Device) error
}

// EventFunc receives coordinator lifecycle notifications the facade turns
// into its public event stream.
type EventFunc func(name string, payload any)

type activeSession struct {
	role      Role
	state     State
	jp        *jpake.Session
	password  string
	nonce     string
	timestamp int64
	peerID    string
	// responderID is always the responder's own device id, the same on
	// both sides of the handshake; unlike peerID (which means "the other
	// device" and so differs by perspective) it is the canonical salt
	// input for deriveSyncKey.
	responderID string
	syncKey     []byte
	ownPass1  *jpake.Pass1Bundle
	timer     *time.Timer
	startedAt time.Time
}

// Coordinator drives one device's side of the add-device flow. Only one
// session may be active at a time, matching spec.md's AddDeviceFlowConflict
// rule.
type Coordinator struct {
	mu sync.Mutex

	provider crypto.Provider
	sync     transport.Sync
	host     Host
	onEvent  EventFunc

	session *activeSession
}

// New constructs a Coordinator over the given crypto provider, transport,
// and facade host.
func New(provider crypto.Provider, syncTransport transport.Sync, host Host, onEvent EventFunc) *Coordinator {
	return &Coordinator{provider: provider, sync: syncTransport, host: host, onEvent: onEvent}
}

func (c *Coordinator) emit(name string, payload any) {
	if c.onEvent != nil {
		c.onEvent(name, payload)
	}
}

// InitiateAddDevice starts the initiator flow, returning once pass 1 has
// been computed and the registration request has been sent to the relay.
// Pass 1 itself travels inside the pairing bundle. The pairing bundle to convey out-of-band arrives
// later via the onEvent callback ("bundleReady") once the server confirms
// registration.
func (c *Coordinator) InitiateAddDevice() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return vaulterr.NewSync(vaulterr.SubKindAddDeviceConflict, "a pairing session is already active", nil)
	}
	if !c.sync.Connected() {
		return vaulterr.NewSync(vaulterr.SubKindNoServerConnection, "cannot start pairing without a relay connection", nil)
	}

	password, err := c.randomPassword()
	if err != nil {
		return err
	}

	self := c.host.SelfDevice()
	jp, err := jpake.NewSession(self.DeviceID, "", password)
	if err != nil {
		return err
	}

	nonce, err := c.randomNonce()
	if err != nil {
		return err
	}

	sess := &activeSession{
		role:      RoleInitiator,
		state:     StateInitiated,
		jp:        jp,
		password:  password,
		nonce:     nonce,
		timestamp: time.Now().UnixMilli(),
		startedAt: time.Now(),
	}
	c.session = sess
	c.armTimeout(sess)

	pass1, err := jp.CreatePass1()
	if err != nil {
		c.clearSession()
		return err
	}
	sess.ownPass1 = pass1

	metrics.PairingAttempts.WithLabelValues("initiator", "started").Inc()

	if err := c.sync.Send(transport.TypeAddSyncDeviceInitialiseData, transport.AddSyncDeviceInitialiseData{
		InitiatorDeviceID: self.DeviceID,
		Timestamp:         sess.timestamp,
		Nonce:             sess.nonce,
	}); err != nil {
		c.clearSession()
		return err
	}
	return nil
}

// RespondToAddDevice starts the responder flow from a bundle scanned or
// typed in from the initiator.
func (c *Coordinator) RespondToAddDevice(bundleStr string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return vaulterr.NewSync(vaulterr.SubKindAddDeviceConflict, "a pairing session is already active", nil)
	}
	if !c.sync.Connected() {
		return vaulterr.NewSync(vaulterr.SubKindNoServerConnection, "cannot join pairing without a relay connection", nil)
	}

	bundle, err := DecodeBundle(bundleStr)
	if err != nil {
		return err
	}

	self := c.host.SelfDevice()
	jp, err := jpake.NewSession(self.DeviceID, bundle.InitiatorDeviceID, bundle.AddDevicePassword)
	if err != nil {
		return err
	}

	ownPass1, err := jp.CreatePass1()
	if err != nil {
		return err
	}
	if err := jp.ReceivePass1(&bundle.Pass1); err != nil {
		metrics.PairingAttempts.WithLabelValues("responder", "invalid_pass1").Inc()
		return vaulterr.New(vaulterr.KindCrypto, "invalid pass-1 / ZKP", err)
	}

	pass2, err := jp.CreatePass2()
	if err != nil {
		return err
	}
	// The wire protocol's pass2Result carries the responder's own pass-1
	// bundle alongside its pass-2 contribution, since the initiator only
	// learned the responder's identity out of the bundle exchange, never
	// its G1/G2 points.
	wire := pass1And2{Pass1: *ownPass1, Pass2: *pass2}
	pass2Raw, err := json.Marshal(wire)
	if err != nil {
		return vaulterr.New(vaulterr.KindInitialization, "failed to marshal pass-2 bundle", err)
	}

	sess := &activeSession{
		role:        RoleResponder,
		state:       StateResponding,
		jp:          jp,
		peerID:      bundle.InitiatorDeviceID,
		responderID: self.DeviceID,
		timestamp:   bundle.Timestamp,
		ownPass1:    ownPass1,
		startedAt:   time.Now(),
	}
	c.session = sess
	c.armTimeout(sess)

	metrics.PairingAttempts.WithLabelValues("responder", "started").Inc()

	return c.sync.Send(transport.TypeJPAKEPass2, transport.JPAKEPass2Data{
		Nonce:             bundle.InitiatorDeviceID, // echoes the flow identifier; the relay routes on device ids
		Pass2Result:       pass2Raw,
		ResponderDeviceID: self.DeviceID,
		InitiatorDeviceID: bundle.InitiatorDeviceID,
	})
}

// pass1And2 is the wire shape carried inside JPAKEPass2Data.Pass2Result:
// the responder's pass-1 bundle (which the initiator has not seen yet)
// alongside its pass-2 contribution.
type pass1And2 struct {
	Pass1 jpake.Pass1Bundle `json:"pass1"`
	Pass2 jpake.Pass2Bundle `json:"pass2"`
}

// CancelAddDevice aborts the active session, if any, notifying the peer.
func (c *Coordinator) CancelAddDevice() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return vaulterr.New(vaulterr.KindInvalidCommand, "no active pairing session to cancel", nil)
	}

	self := c.host.SelfDevice()
	err := c.sync.Send(transport.TypeAddSyncDeviceCancelled, transport.AddSyncDeviceCancelledData{
		InitiatorDeviceID: self.DeviceID,
	})
	c.clearSession()
	return err
}

// HandleConfirmInitialiseData processes the relay's registration ack.
func (c *Coordinator) HandleConfirmInitialiseData() {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess := c.session
	if sess == nil || sess.role != RoleInitiator || sess.state != StateInitiated {
		return
	}
	c.stopTimeout(sess)

	bundle := Bundle{
		AddDevicePassword: sess.password,
		InitiatorDeviceID: c.host.SelfDevice().DeviceID,
		Timestamp:         sess.timestamp,
		Pass1:             *sess.ownPass1,
	}

	encoded, err := EncodeBundle(bundle)
	if err != nil {
		c.emit("error", err)
		return
	}
	c.emit("bundleReady", encoded)
}

// HandleJPAKEPass2 processes the responder's pass-2 contribution (received
// by the initiator).
func (c *Coordinator) HandleJPAKEPass2(data transport.JPAKEPass2Data) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess := c.session
	if sess == nil || sess.role != RoleInitiator {
		return vaulterr.NewSync(vaulterr.SubKindWrongState, "JPAKEPass2 received outside an initiator session", nil)
	}

	var wire pass1And2
	if err := json.Unmarshal(data.Pass2Result, &wire); err != nil {
		return vaulterr.New(vaulterr.KindCrypto, "malformed pass-2 payload", err)
	}
	wire.Pass1.UserID = data.ResponderDeviceID
	wire.Pass2.UserID = data.ResponderDeviceID

	if err := sess.jp.ReceivePass1(&wire.Pass1); err != nil {
		metrics.PairingAttempts.WithLabelValues("initiator", "invalid_pass1").Inc()
		return vaulterr.New(vaulterr.KindCrypto, "invalid pass-1 / ZKP", err)
	}

	pass2, err := sess.jp.CreatePass2()
	if err != nil {
		return err
	}
	if err := sess.jp.ReceivePass2(&wire.Pass2); err != nil {
		metrics.PairingAttempts.WithLabelValues("initiator", "invalid_pass2").Inc()
		return err
	}

	sess.peerID = data.ResponderDeviceID
	sess.responderID = data.ResponderDeviceID
	syncKey, err := c.deriveSyncKey(sess)
	if err != nil {
		return err
	}
	sess.syncKey = syncKey
	sess.state = StateSyncKeyCreated
	c.stopTimeout(sess)
	metrics.PairingDuration.Observe(time.Since(sess.startedAt).Seconds())

	pass3Raw, err := json.Marshal(pass2)
	if err != nil {
		return vaulterr.New(vaulterr.KindInitialization, "failed to marshal pass-3 bundle", err)
	}

	metrics.PairingAttempts.WithLabelValues("initiator", "sync_key_created").Inc()

	return c.sync.Send(transport.TypeJPAKEPass3, transport.JPAKEPass3Data{
		Nonce:             sess.nonce,
		InitiatorDeviceID: c.host.SelfDevice().DeviceID,
		Pass3Result:       pass3Raw,
	})
}

// HandleJPAKEPass3 processes the initiator's pass-3 contribution (received
// by the responder), completing the responder's key derivation.
func (c *Coordinator) HandleJPAKEPass3(data transport.JPAKEPass3Data) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess := c.session
	if sess == nil || sess.role != RoleResponder {
		return vaulterr.NewSync(vaulterr.SubKindWrongState, "JPAKEPass3 received outside a responder session", nil)
	}

	var peerPass2 jpake.Pass2Bundle
	if err := json.Unmarshal(data.Pass3Result, &peerPass2); err != nil {
		return vaulterr.New(vaulterr.KindCrypto, "malformed pass-3 payload", err)
	}
	peerPass2.UserID = sess.peerID

	if err := sess.jp.ReceivePass2(&peerPass2); err != nil {
		metrics.PairingAttempts.WithLabelValues("responder", "invalid_pass3").Inc()
		return err
	}

	syncKey, err := c.deriveSyncKey(sess)
	if err != nil {
		return err
	}
	sess.syncKey = syncKey
	sess.state = StateSyncKeyCreated
	c.stopTimeout(sess)
	metrics.PairingDuration.Observe(time.Since(sess.startedAt).Seconds())

	self := c.host.SelfDevice()
	pubPEM, err := self.PublicKeyPEM()
	if err != nil {
		return err
	}
	encryptedPub, err := c.provider.EncryptSymmetric(syncKey, []byte(pubPEM))
	if err != nil {
		return err
	}

	infoJSON, err := json.Marshal(struct {
		DeviceType   string `json:"deviceType"`
		FriendlyName string `json:"friendlyName"`
	}{DeviceType: self.DeviceType, FriendlyName: self.FriendlyName})
	if err != nil {
		return vaulterr.New(vaulterr.KindInitialization, "failed to marshal device info", err)
	}
	encryptedInfo, err := c.provider.EncryptSymmetric(syncKey, infoJSON)
	if err != nil {
		return err
	}

	metrics.PairingAttempts.WithLabelValues("responder", "sync_key_created").Inc()

	return c.sync.Send(transport.TypePublicKeyAndDeviceInfo, transport.PublicKeyAndDeviceInfoData{
		Nonce:                        sess.nonce,
		ResponderEncryptedPublicKey:  encryptedPub,
		ResponderEncryptedDeviceInfo: encryptedInfo,
		InitiatorDeviceID:            sess.peerID,
	})
}

// HandlePublicKeyAndDeviceInfo processes the responder's identity
// (received by the initiator), completing the handshake by sending the
// initial vault snapshot and locally recording the new device.
func (c *Coordinator) HandlePublicKeyAndDeviceInfo(data transport.PublicKeyAndDeviceInfoData) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess := c.session
	if sess == nil || sess.role != RoleInitiator || sess.state != StateSyncKeyCreated {
		return vaulterr.NewSync(vaulterr.SubKindWrongState, "publicKeyAndDeviceInfo received outside an active initiator session", nil)
	}

	pubPEM, err := c.provider.DecryptSymmetric(sess.syncKey, data.ResponderEncryptedPublicKey)
	if err != nil {
		return err
	}
	infoRaw, err := c.provider.DecryptSymmetric(sess.syncKey, data.ResponderEncryptedDeviceInfo)
	if err != nil {
		return err
	}
	var info struct {
		DeviceType   string `json:"deviceType"`
		FriendlyName string `json:"friendlyName"`
	}
	if err := json.Unmarshal(infoRaw, &info); err != nil {
		return vaulterr.New(vaulterr.KindCrypto, "malformed decrypted device info", err)
	}
	pub, err := device.ParsePublicKeyPEM(string(pubPEM))
	if err != nil {
		return err
	}

	newDevice := device.Device{
		DeviceID:     sess.peerID,
		DeviceType:   info.DeviceType,
		FriendlyName: info.FriendlyName,
		PublicKey:    pub,
	}
	if err := newDevice.Validate(); err != nil {
		return err
	}

	snapshot := c.host.Snapshot()
	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return vaulterr.New(vaulterr.KindInitialization, "failed to marshal vault snapshot", err)
	}
	encryptedVault, err := c.provider.EncryptSymmetric(sess.syncKey, snapshotJSON)
	if err != nil {
		return err
	}

	if err := c.sync.Send(transport.TypeInitialVault, transport.InitialVaultData{
		Nonce:              sess.nonce,
		EncryptedVaultData: encryptedVault,
		InitiatorDeviceID:  c.host.SelfDevice().DeviceID,
	}); err != nil {
		return err
	}

	if err := c.host.ApplyAddSyncDevice(newDevice); err != nil {
		return err
	}

	logger.Info("paired new device", logger.String("deviceId", newDevice.DeviceID))
	c.emit("connectToExistingVaultFinished", nil)
	c.clearSession()
	return nil
}

// HandleInitialVault processes the initial vault snapshot (received by the
// responder), merging it into local state.
func (c *Coordinator) HandleInitialVault(data transport.InitialVaultData) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess := c.session
	if sess == nil || sess.role != RoleResponder || sess.state != StateSyncKeyCreated {
		return vaulterr.NewSync(vaulterr.SubKindWrongState, "initialVault received outside an active responder session", nil)
	}
	if data.InitiatorDeviceID != sess.peerID {
		return vaulterr.NewSync(vaulterr.SubKindNone, "initialVault device id mismatch, possible replay", nil)
	}

	raw, err := c.provider.DecryptSymmetric(sess.syncKey, data.EncryptedVaultData)
	if err != nil {
		return err
	}
	var snapshot syncdata.Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return vaulterr.New(vaulterr.KindCrypto, "malformed decrypted vault snapshot", err)
	}
	if snapshot.DeviceID != sess.peerID {
		return vaulterr.NewSync(vaulterr.SubKindNone, "vault snapshot device id mismatch, possible replay", nil)
	}

	if err := c.host.Merge(snapshot); err != nil {
		return err
	}

	c.emit("connectToExistingVaultFinished", nil)
	c.clearSession()
	return nil
}

// HandleCancelled processes an addSyncDeviceCancelled message.
func (c *Coordinator) HandleCancelled() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return
	}
	c.clearSession()
	c.emit("addSyncDeviceCancelled", nil)
}

// State reports the coordinator's current coarse state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return StateIdle
	}
	return c.session.state
}

func (c *Coordinator) deriveSyncKey(sess *activeSession) ([]byte, error) {
	shared, err := sess.jp.SharedSecret()
	if err != nil {
		return nil, err
	}
	sess.jp.MarkKeyDerived()

	salt := repeatSalt(sess.responderID)
	encoded, err := c.provider.CreateSyncKey(shared, salt)
	if err != nil {
		return nil, err
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, vaulterr.New(vaulterr.KindCrypto, "sync key was not valid base64", err)
	}
	return key, nil
}

// repeatSalt repeats the responder's device id until it reaches at least
// 16 bytes, the salt convention assigned to sync-key derivation. Using the
// responder's id specifically (rather than "whichever device is not me")
// gives both sides of a handshake the same salt.
func repeatSalt(responderDeviceID string) []byte {
	if responderDeviceID == "" {
		responderDeviceID = "vaultsync"
	}
	var buf bytes.Buffer
	for buf.Len() < 16 {
		buf.WriteString(responderDeviceID)
	}
	return buf.Bytes()
}

func (c *Coordinator) randomPassword() (string, error) {
	raw, err := c.provider.RandomBytes(otpPasswordBytes)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func (c *Coordinator) randomNonce() (string, error) {
	raw, err := c.provider.RandomBytes(16)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func (c *Coordinator) armTimeout(sess *activeSession) {
	sess.timer = time.AfterFunc(registrationTimeout, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.session != sess {
			return
		}
		c.clearSession()
		c.emit("timeout", nil)
		metrics.PairingAttempts.WithLabelValues(roleLabel(sess.role), "timeout").Inc()
	})
}

func (c *Coordinator) stopTimeout(sess *activeSession) {
	if sess.timer != nil {
		sess.timer.Stop()
	}
}

func (c *Coordinator) clearSession() {
	if c.session != nil {
		c.stopTimeout(c.session)
	}
	c.session = nil
}

func roleLabel(r Role) string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}
