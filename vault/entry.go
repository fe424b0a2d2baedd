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

// Package vault holds the in-memory OTP entry map that a command log
// applies commands against.
package vault

import (
	"github.com/vaultsync/vaultsync/totp"
	"github.com/vaultsync/vaultsync/vaulterr"
)

// EntryType names the kind of OTP payload an Entry carries. TOTP is
// currently the only supported type.
type EntryType string

const TypeTOTP EntryType = "TOTP"

// Payload is an entry's TOTP-generation parameters.
type Payload struct {
	Secret    string
	Period    int
	Digits    int
	Algorithm totp.Algorithm
}

// Validate enforces the invariants spec.md assigns to an Entry's payload.
func (p Payload) Validate() error {
	if p.Secret == "" {
		return vaulterr.New(vaulterr.KindInvalidCommand, "entry secret must not be empty", nil)
	}
	if p.Period <= 0 {
		return vaulterr.New(vaulterr.KindInvalidCommand, "entry period must be positive", nil)
	}
	if p.Digits != 6 && p.Digits != 8 {
		return vaulterr.New(vaulterr.KindInvalidCommand, "entry digits must be 6 or 8", nil)
	}
	return nil
}

// Entry is a single OTP credential.
type Entry struct {
	ID        string
	Name      string
	Issuer    string
	Type      EntryType
	Payload   Payload
	AddedAt   int64
	UpdatedAt *int64
}

// Clone returns a deep copy so callers (and the command log's undo
// snapshots) never alias a live Entry.
func (e Entry) Clone() Entry {
	cp := e
	if e.UpdatedAt != nil {
		u := *e.UpdatedAt
		cp.UpdatedAt = &u
	}
	return cp
}
