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

// Package totp implements RFC 6238 time-based one-time passwords behind a
// small Generator interface, so vault.Store never depends on a concrete
// hash algorithm.
package totp

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"hash"
	"strings"

	"github.com/vaultsync/vaultsync/vaulterr"
)

// Algorithm names the HMAC hash used by a TOTP generator.
type Algorithm string

const (
	SHA1   Algorithm = "SHA1"
	SHA256 Algorithm = "SHA256"
	SHA512 Algorithm = "SHA512"
)

func (a Algorithm) newHash() func() hash.Hash {
	switch a {
	case SHA256:
		return sha256.New
	case SHA512:
		return sha512.New
	default:
		return sha1.New
	}
}

// Params fixes one entry's TOTP generation parameters.
type Params struct {
	Secret    string // base32-encoded, no padding required
	Period    int    // seconds, typically 30
	Digits    int    // typically 6
	Algorithm Algorithm
}

// Code is a generated one-time password with its validity window in
// milliseconds, matching spec's [floor(now/period)*period*1000, +period*1000).
type Code struct {
	OTP        string
	ValidFrom  int64
	ValidTill  int64
}

// Generator produces TOTP codes for a given secret at a given time.
type Generator interface {
	Generate(params Params, nowMs int64) (Code, error)
}

// RFC6238Generator is the default Generator.
type RFC6238Generator struct{}

// NewGenerator returns the default RFC 6238 generator.
func NewGenerator() Generator {
	return RFC6238Generator{}
}

func (RFC6238Generator) Generate(params Params, nowMs int64) (Code, error) {
	if params.Period <= 0 {
		return Code{}, vaulterr.New(vaulterr.KindCrypto, "totp period must be positive", nil)
	}
	if params.Digits <= 0 {
		params.Digits = 6
	}

	secret, err := decodeSecret(params.Secret)
	if err != nil {
		return Code{}, err
	}

	periodMs := int64(params.Period) * 1000
	counter := uint64(nowMs / periodMs)

	otp, err := hotp(secret, counter, params.Digits, params.Algorithm)
	if err != nil {
		return Code{}, err
	}

	validFrom := counter * uint64(params.Period) * 1000
	return Code{
		OTP:       otp,
		ValidFrom: int64(validFrom),
		ValidTill: int64(validFrom) + periodMs,
	}, nil
}

func decodeSecret(secret string) ([]byte, error) {
	cleaned := strings.ToUpper(strings.TrimSpace(secret))
	cleaned = strings.TrimRight(cleaned, "=")

	decoded, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(cleaned)
	if err != nil {
		return nil, vaulterr.New(vaulterr.KindCrypto, "invalid base32 TOTP secret", err)
	}
	return decoded, nil
}

// hotp implements RFC 4226 HOTP, parameterized over the HMAC hash RFC 6238
// selects.
func hotp(secret []byte, counter uint64, digits int, algo Algorithm) (string, error) {
	msg := make([]byte, 8)
	binary.BigEndian.PutUint64(msg, counter)

	mac := hmac.New(algo.newHash(), secret)
	if _, err := mac.Write(msg); err != nil {
		return "", vaulterr.New(vaulterr.KindCrypto, "failed to compute HOTP hmac", err)
	}
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	truncated := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	mod := uint32(1)
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	code := truncated % mod

	return fmt.Sprintf("%0*d", digits, code), nil
}
