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

// Package syncdata holds the sync-facing vault bundle shared by pairing,
// resilver, and persistence: entries plus known devices, the two pieces of
// state every peer must converge on.
package syncdata

import (
	"github.com/vaultsync/vaultsync/device"
	"github.com/vaultsync/vaultsync/vault"
)

// Snapshot is a full copy of one device's view of the synced vault state,
// exchanged wholesale during pairing (initialVault) and resilver (vault).
type Snapshot struct {
	DeviceID     string          `json:"deviceId"`
	FriendlyName string          `json:"friendlyName"`
	Entries      []vault.Entry   `json:"vault"`
	Devices      []device.Device `json:"sync"`
}
