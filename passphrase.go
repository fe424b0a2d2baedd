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

import "github.com/vaultsync/vaultsync/persistence"

// ChangePassphrase re-wraps the vault's keys under a freshly derived KEK.
// scorer may be nil to skip strength checking.
func (v *Vault) ChangePassphrase(oldPassword, newPassword string, scorer persistence.StrengthScorer) error {
	return v.do(func() error {
		return v.store.ChangePassphrase(oldPassword, newPassword, scorer)
	})
}

// SetFriendlyName updates this device's own display name. Unlike a peer's
// FriendlyName (changed via the synced ChangeDeviceInfo command), self's
// name is local bookkeeping persisted alongside the vault state rather
// than routed through the command log, since there is no peer to apply it
// against.
func (v *Vault) SetFriendlyName(name string) error {
	return v.do(func() error {
		v.cfg.FriendlyName = name
		return v.store.Save()
	})
}
