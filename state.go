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
	"crypto/rsa"
	"time"

	"github.com/vaultsync/vaultsync/command"
	"github.com/vaultsync/vaultsync/device"
	"github.com/vaultsync/vaultsync/persistence"
	"github.com/vaultsync/vaultsync/syncdata"
)

// VaultState implements persistence.StateSource. Only ever called from the
// command goroutine, either directly (Save) or via persistence.Store's own
// serialized save path.
func (v *Vault) VaultState() persistence.VaultState {
	return persistence.VaultState{
		DeviceID:     v.cfg.DeviceID,
		FriendlyName: v.cfg.FriendlyName,
		Vault:        v.entries.List(),
		Sync: persistence.SyncSection{
			Devices:   v.devices.List(),
			ServerURL: v.cfg.ServerURL,
			Pending:   v.pending,
		},
	}
}

// SelfDevice implements pairing.Host and resilver.Host.
func (v *Vault) SelfDevice() device.Device {
	return device.Device{
		DeviceID:     v.cfg.DeviceID,
		DeviceType:   v.cfg.DeviceType,
		FriendlyName: v.cfg.FriendlyName,
		PublicKey:    v.keys.PublicKey,
	}
}

// PrivateKey implements resilver.Host.
func (v *Vault) PrivateKey() *rsa.PrivateKey {
	return v.keys.PrivateKey
}

// Peers implements resilver.Host. device.List never holds self, so this is
// equivalent to Devices().List(), but goes through Peers for the
// self-exclusion guarantee that interface documents explicitly.
func (v *Vault) Peers() []device.Device {
	return v.devices.Peers(v.cfg.DeviceID)
}

// Snapshot implements pairing.Host and resilver.Host: a full copy of the
// vault, unlike VaultState's sync-section devices list, this one carries
// self too, since a peer receiving it has no other way to learn our
// identity and public key.
func (v *Vault) Snapshot() syncdata.Snapshot {
	return syncdata.Snapshot{
		DeviceID:     v.cfg.DeviceID,
		FriendlyName: v.cfg.FriendlyName,
		Entries:      v.entries.List(),
		Devices:      v.allSyncDevices(),
	}
}

func (v *Vault) allSyncDevices() []device.Device {
	self := v.SelfDevice()
	all := make([]device.Device, 0, 1+len(v.devices.List()))
	all = append(all, self)
	return append(all, v.devices.List()...)
}

// Merge implements pairing.Host and resilver.Host: entries are upserted by
// id, sync devices unioned by id, self always excluded from the latter,
// matching the literal merge semantics a reconnecting or newly paired peer
// expects. Both callers (pairing's initialVault handler, resilver's vault
// handler) already run on the command goroutine, so no locking is needed
// here either.
func (v *Vault) Merge(snapshot syncdata.Snapshot) error {
	for _, e := range snapshot.Entries {
		if _, err := v.entries.Get(e.ID); err == nil {
			if _, err := v.entries.Delete(e.ID); err != nil {
				return err
			}
		}
		if err := v.entries.Add(e); err != nil {
			return err
		}
	}

	for _, d := range snapshot.Devices {
		if d.DeviceID == v.cfg.DeviceID {
			continue
		}
		if v.devices.Exists(d.DeviceID) {
			if err := v.devices.Remove(d.DeviceID); err != nil {
				return err
			}
		}
		if err := v.devices.Add(d); err != nil {
			return err
		}
	}

	if err := v.store.Save(); err != nil {
		return err
	}
	v.emit(EventChanged, nil)
	return nil
}

// ApplyAddSyncDevice implements pairing.Host: it records the newly paired
// peer as an ordinary AddSyncDevice command, so it both lands in our own
// device list and fans out to every other peer already connected. The new
// peer itself already learned of itself via the pairing handshake, so
// fanout skips it explicitly (see fanout in sync.go).
func (v *Vault) ApplyAddSyncDevice(d device.Device) error {
	return v.log.ApplyLocal(&command.Command{
		ID:            v.newID(),
		Kind:          command.KindAddSyncDevice,
		Timestamp:     time.Now().UnixMilli(),
		SchemaVersion: command.SchemaVersion,
		AddSyncDevice: &command.AddSyncDevicePayload{Device: d},
	})
}
