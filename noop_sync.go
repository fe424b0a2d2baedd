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

import "github.com/vaultsync/vaultsync/transport"

// noopSync implements transport.Sync for a vault opened without a relay
// URL: single-device use, or a host that wires up sync later. Sends are
// silently dropped, matching the interface's own documented behavior for
// a disconnected socket; the persisted pending queue still accumulates
// and is sent once a real transport is connected.
type noopSync struct{}

func (noopSync) Send(transport.Type, any) error { return nil }
func (noopSync) Connected() bool                { return false }
func (noopSync) Close() error                   { return nil }
