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

// Package pairing implements the add-device state machine: J-PAKE pairing
// authenticated by a one-time password conveyed out of band (QR scan or
// typed code), producing a shared sync key both sides trust.
package pairing

import (
	"encoding/base64"
	"encoding/json"

	"github.com/vaultsync/vaultsync/jpake"
	"github.com/vaultsync/vaultsync/vaulterr"
)

// Bundle is what the initiator hands the responder out-of-band, either
// rendered as a QR image or as the base64-url JSON string DecodeBundle
// expects. Rendering the QR image itself is a host concern (spec.md §10
// Non-goals); this package only produces and parses the string form.
type Bundle struct {
	AddDevicePassword string            `json:"addDevicePassword"`
	InitiatorDeviceID string            `json:"initiatorDeviceId"`
	Timestamp         int64             `json:"timestamp"`
	Pass1             jpake.Pass1Bundle `json:"pass1Result"`
}

// EncodeBundle renders a Bundle as the base64-url JSON string conveyed to
// the responder.
func EncodeBundle(b Bundle) (string, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return "", vaulterr.New(vaulterr.KindInitialization, "failed to marshal pairing bundle", err)
	}
	return base64.URLEncoding.EncodeToString(raw), nil
}

// DecodeBundle parses a bundle string produced by EncodeBundle.
func DecodeBundle(s string) (Bundle, error) {
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return Bundle{}, vaulterr.New(vaulterr.KindInitialization, "malformed pairing bundle encoding", err)
	}
	var b Bundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return Bundle{}, vaulterr.New(vaulterr.KindInitialization, "malformed pairing bundle contents", err)
	}
	if b.AddDevicePassword == "" || b.InitiatorDeviceID == "" {
		return Bundle{}, vaulterr.New(vaulterr.KindInitialization, "pairing bundle missing required fields", nil)
	}
	return b, nil
}
