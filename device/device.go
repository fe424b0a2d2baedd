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

// Package device holds the sync peer identity type.
package device

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"

	"github.com/vaultsync/vaultsync/vaulterr"
)

const (
	maxDeviceTypeLen   = 256
	maxFriendlyNameLen = 256
)

// Device is a peer participating in sync. Identity is DeviceID.
type Device struct {
	DeviceID     string
	DeviceType   string
	FriendlyName string
	PublicKey    *rsa.PublicKey
}

// Validate enforces the attribute-length invariants spec.md assigns to a
// Device.
func (d Device) Validate() error {
	if d.DeviceID == "" {
		return vaulterr.New(vaulterr.KindInvalidCommand, "device id must not be empty", nil)
	}
	if len(d.DeviceType) > maxDeviceTypeLen {
		return vaulterr.New(vaulterr.KindInvalidCommand, "device type exceeds 256 characters", nil)
	}
	if len(d.FriendlyName) > maxFriendlyNameLen {
		return vaulterr.New(vaulterr.KindInvalidCommand, "device friendly name exceeds 256 characters", nil)
	}
	return nil
}

// PublicKeyPEM renders the device's RSA public key as a PEM block, the wire
// format spec.md uses for device public keys.
func (d Device) PublicKeyPEM() (string, error) {
	der, err := x509.MarshalPKIXPublicKey(d.PublicKey)
	if err != nil {
		return "", vaulterr.New(vaulterr.KindCrypto, "failed to marshal device public key", err)
	}
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	return string(pem.EncodeToMemory(block)), nil
}

// ParsePublicKeyPEM parses a PEM-encoded RSA public key as received over
// the wire from a peer.
func ParsePublicKeyPEM(pemStr string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, vaulterr.New(vaulterr.KindCrypto, "malformed device public key PEM", nil)
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, vaulterr.New(vaulterr.KindCrypto, "failed to parse device public key", err)
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, vaulterr.New(vaulterr.KindCrypto, "device public key is not RSA", nil)
	}
	return pub, nil
}
