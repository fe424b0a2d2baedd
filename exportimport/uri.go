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

// Package exportimport encodes and decodes vault entries in the two
// formats hosts actually move them around in: otpauth:// URIs (one entry,
// typically behind a QR code) and a plain JSON array (bulk import/export).
// QR rendering and password-strength scoring stay external collaborators
// reached through narrow interfaces; this package ships no default for
// either.
package exportimport

import (
	"net/url"
	"strconv"

	"github.com/vaultsync/vaultsync/totp"
	"github.com/vaultsync/vaultsync/vault"
	"github.com/vaultsync/vaultsync/vaulterr"
)

const (
	defaultPeriod    = 30
	defaultDigits    = 6
	defaultAlgorithm = totp.SHA1
)

// EncodeURI renders an entry as an otpauth://totp/ URI, the de facto
// standard most authenticator apps import via QR code.
func EncodeURI(e vault.Entry) (string, error) {
	if e.Type != vault.TypeTOTP {
		return "", vaulterr.New(vaulterr.KindExportImport, "only TOTP entries can be exported as otpauth URIs", nil)
	}
	if err := e.Payload.Validate(); err != nil {
		return "", err
	}

	label := e.Name
	if e.Issuer != "" {
		label = e.Issuer + ":" + e.Name
	}

	u := url.URL{
		Scheme: "otpauth",
		Host:   "totp",
		Path:   "/" + label,
	}
	q := url.Values{}
	q.Set("secret", e.Payload.Secret)
	if e.Issuer != "" {
		q.Set("issuer", e.Issuer)
	}
	q.Set("period", strconv.Itoa(e.Payload.Period))
	q.Set("digits", strconv.Itoa(e.Payload.Digits))
	q.Set("algorithm", string(e.Payload.Algorithm))
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// DecodeURI parses an otpauth://totp/ URI into an Entry. ID and AddedAt
// are left zero-valued; the caller assigns those on insert.
func DecodeURI(raw string) (vault.Entry, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return vault.Entry{}, vaulterr.New(vaulterr.KindExportImport, "malformed otpauth uri", err)
	}
	if u.Scheme != "otpauth" {
		return vault.Entry{}, vaulterr.New(vaulterr.KindExportImport, "not an otpauth uri", nil)
	}
	if u.Host != "totp" {
		return vault.Entry{}, vaulterr.New(vaulterr.KindExportImport, "only totp otpauth uris are supported", nil)
	}

	label, err := url.PathUnescape(trimLeadingSlash(u.Path))
	if err != nil {
		return vault.Entry{}, vaulterr.New(vaulterr.KindExportImport, "malformed otpauth label", err)
	}
	issuer, name := splitLabel(label)

	q := u.Query()
	secret := q.Get("secret")
	if secret == "" {
		return vault.Entry{}, vaulterr.New(vaulterr.KindExportImport, "otpauth uri is missing a secret", nil)
	}
	if qIssuer := q.Get("issuer"); qIssuer != "" {
		issuer = qIssuer
	}

	period := defaultPeriod
	if raw := q.Get("period"); raw != "" {
		period, err = strconv.Atoi(raw)
		if err != nil {
			return vault.Entry{}, vaulterr.New(vaulterr.KindExportImport, "invalid period", err)
		}
	}
	digits := defaultDigits
	if raw := q.Get("digits"); raw != "" {
		digits, err = strconv.Atoi(raw)
		if err != nil {
			return vault.Entry{}, vaulterr.New(vaulterr.KindExportImport, "invalid digits", err)
		}
	}
	algorithm := defaultAlgorithm
	if raw := q.Get("algorithm"); raw != "" {
		algorithm = totp.Algorithm(raw)
	}

	entry := vault.Entry{
		Name:   name,
		Issuer: issuer,
		Type:   vault.TypeTOTP,
		Payload: vault.Payload{
			Secret:    secret,
			Period:    period,
			Digits:    digits,
			Algorithm: algorithm,
		},
	}
	if err := entry.Payload.Validate(); err != nil {
		return vault.Entry{}, err
	}
	return entry, nil
}

func trimLeadingSlash(path string) string {
	if len(path) > 0 && path[0] == '/' {
		return path[1:]
	}
	return path
}

func splitLabel(label string) (issuer, name string) {
	for i := 0; i < len(label); i++ {
		if label[i] == ':' {
			return label[:i], label[i+1:]
		}
	}
	return "", label
}
