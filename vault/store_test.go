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

package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultsync/vaultsync/totp"
)

func testEntry(id, name, issuer string) Entry {
	return Entry{
		ID:     id,
		Name:   name,
		Issuer: issuer,
		Type:   TypeTOTP,
		Payload: Payload{
			Secret:    "TESTSECRET",
			Period:    30,
			Digits:    6,
			Algorithm: totp.SHA1,
		},
		AddedAt: 0,
	}
}

func TestAddGetListOrder(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Add(testEntry("1", "Test TOTP", "Test Issuer")))
	require.NoError(t, s.Add(testEntry("2", "Second", "Other")))

	got, err := s.Get("1")
	require.NoError(t, err)
	assert.Equal(t, "Test TOTP", got.Name)

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, "1", list[0].ID)
	assert.Equal(t, "2", list[1].ID)
}

func TestAddDuplicateIDRejected(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Add(testEntry("1", "a", "b")))
	err := s.Add(testEntry("1", "c", "d"))
	assert.Error(t, err)
}

func TestAddInvalidPayloadRejected(t *testing.T) {
	s := NewStore()
	e := testEntry("1", "a", "b")
	e.Payload.Secret = ""
	assert.Error(t, s.Add(e))

	e2 := testEntry("2", "a", "b")
	e2.Payload.Digits = 7
	assert.Error(t, s.Add(e2))
}

func TestUpdatePreservesAddedAt(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Add(testEntry("1", "a", "b")))

	updated := testEntry("1", "renamed", "b")
	prior, err := s.Update(updated, 5000)
	require.NoError(t, err)
	assert.Equal(t, "a", prior.Name)

	got, err := s.Get("1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, int64(0), got.AddedAt)
	require.NotNil(t, got.UpdatedAt)
	assert.Equal(t, int64(5000), *got.UpdatedAt)
}

func TestDeleteRemovesFromOrder(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Add(testEntry("1", "a", "b")))
	require.NoError(t, s.Add(testEntry("2", "c", "d")))

	removed, err := s.Delete("1")
	require.NoError(t, err)
	assert.Equal(t, "a", removed.Name)

	assert.Len(t, s.List(), 1)
	_, err = s.Get("1")
	assert.Error(t, err)
}

func TestSearchCaseInsensitiveOverNameAndIssuer(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Add(testEntry("1", "GitHub", "GitHub Inc")))
	require.NoError(t, s.Add(testEntry("2", "Gitlab", "Other Co")))
	require.NoError(t, s.Add(testEntry("3", "Unrelated", "Acme")))

	results := s.Search("git")
	assert.Len(t, results, 2)

	byIssuer := s.Search("acme")
	assert.Len(t, byIssuer, 1)
	assert.Equal(t, "3", byIssuer[0].ID)
}

func TestGenerateTokenKnownVector(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Add(testEntry("1", "Test TOTP", "Test Issuer")))

	token, err := s.GenerateToken("1", 0)
	require.NoError(t, err)
	assert.Equal(t, "810290", token.OTP)
	assert.Equal(t, int64(0), token.ValidFrom)
	assert.Equal(t, int64(30000), token.ValidTill)
}

func TestGenerateTokenUnknownEntry(t *testing.T) {
	s := NewStore()
	_, err := s.GenerateToken("missing", 0)
	assert.Error(t, err)
}
