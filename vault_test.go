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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultsync/vaultsync/crypto"
	"github.com/vaultsync/vaultsync/persistence"
	"github.com/vaultsync/vaultsync/totp"
	"github.com/vaultsync/vaultsync/vault"
)

var fastParams = crypto.Argon2Params{Parallelism: 1, Iterations: 1, MemoryKiB: 8}

// memBackend gives each test an in-memory load/save pair so no real
// filesystem or relay is needed.
type memBackend struct {
	mu  sync.Mutex
	lr  persistence.LockedRepresentation
	has bool
}

func (b *memBackend) load() (persistence.LockedRepresentation, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lr, b.has, nil
}

func (b *memBackend) save(lr persistence.LockedRepresentation) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lr = lr
	b.has = true
	return nil
}

func newTestVault(t *testing.T, deviceID string) (*Vault, *memBackend) {
	t.Helper()
	backend := &memBackend{}
	cfg := Config{DeviceID: deviceID, DeviceType: "cli", FriendlyName: "test-device"}
	v := New(cfg, crypto.NewProviderWithParams(fastParams), backend.load, backend.save)
	require.NoError(t, v.Unlock("correct horse battery staple"))
	t.Cleanup(func() { _ = v.Lock() })
	return v, backend
}

func TestUnlockCreatesFreshVault(t *testing.T) {
	v, _ := newTestVault(t, "device-1")

	entries, err := v.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUnlockReopensExistingVault(t *testing.T) {
	backend := &memBackend{}
	cfg := Config{DeviceID: "device-1", DeviceType: "cli", FriendlyName: "test-device"}
	provider := crypto.NewProviderWithParams(fastParams)

	v1 := New(cfg, provider, backend.load, backend.save)
	require.NoError(t, v1.Unlock("hunter2"))
	_, err := v1.AddEntry("alice@example.com", "Example", vault.Payload{
		Secret: "JBSWY3DPEHPK3PXP", Period: 30, Digits: 6, Algorithm: totp.SHA1,
	})
	require.NoError(t, err)
	require.NoError(t, v1.Lock())

	v2 := New(cfg, provider, backend.load, backend.save)
	require.NoError(t, v2.Unlock("hunter2"))
	t.Cleanup(func() { _ = v2.Lock() })

	entries, err := v2.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "alice@example.com", entries[0].Name)
}

func TestUnlockRejectsWrongPassword(t *testing.T) {
	backend := &memBackend{}
	cfg := Config{DeviceID: "device-1", DeviceType: "cli", FriendlyName: "test-device"}
	provider := crypto.NewProviderWithParams(fastParams)

	v1 := New(cfg, provider, backend.load, backend.save)
	require.NoError(t, v1.Unlock("hunter2"))
	require.NoError(t, v1.Lock())

	v2 := New(cfg, provider, backend.load, backend.save)
	err := v2.Unlock("wrong-password")
	require.Error(t, err)
}

func TestAddUpdateDeleteEntry(t *testing.T) {
	v, _ := newTestVault(t, "device-1")

	entry, err := v.AddEntry("alice@example.com", "Example", vault.Payload{
		Secret: "JBSWY3DPEHPK3PXP", Period: 30, Digits: 6, Algorithm: totp.SHA1,
	})
	require.NoError(t, err)
	require.NotEmpty(t, entry.ID)

	entry.Issuer = "Example Co"
	updated, err := v.UpdateEntry(entry)
	require.NoError(t, err)
	assert.Equal(t, "Example Co", updated.Issuer)

	require.NoError(t, v.DeleteEntry(entry.ID))

	entries, err := v.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGenerateToken(t *testing.T) {
	v, _ := newTestVault(t, "device-1")

	entry, err := v.AddEntry("alice@example.com", "Example", vault.Payload{
		Secret: "JBSWY3DPEHPK3PXP", Period: 30, Digits: 6, Algorithm: totp.SHA1,
	})
	require.NoError(t, err)

	tok, err := v.GenerateToken(entry.ID)
	require.NoError(t, err)
	assert.Len(t, tok.OTP, 6)
}

func TestSearchFindsByNameAndIssuer(t *testing.T) {
	v, _ := newTestVault(t, "device-1")

	_, err := v.AddEntry("alice@example.com", "Example Co", vault.Payload{
		Secret: "JBSWY3DPEHPK3PXP", Period: 30, Digits: 6, Algorithm: totp.SHA1,
	})
	require.NoError(t, err)

	results, err := v.Search("example")
	require.NoError(t, err)
	assert.Len(t, results, 1)

	results, err = v.Search("nonexistent")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestUndoRedo(t *testing.T) {
	v, _ := newTestVault(t, "device-1")

	entry, err := v.AddEntry("alice@example.com", "Example", vault.Payload{
		Secret: "JBSWY3DPEHPK3PXP", Period: 30, Digits: 6, Algorithm: totp.SHA1,
	})
	require.NoError(t, err)

	_, err = v.Undo()
	require.NoError(t, err)
	entries, err := v.List()
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = v.Redo()
	require.NoError(t, err)
	entries, err = v.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entry.ID, entries[0].ID)
}

func TestEventsEmittedOnMutation(t *testing.T) {
	v, _ := newTestVault(t, "device-1")

	// Unlock itself already emitted LoadedFromLockedRepresentation; drain it.
	<-v.Events()

	_, err := v.AddEntry("alice@example.com", "Example", vault.Payload{
		Secret: "JBSWY3DPEHPK3PXP", Period: 30, Digits: 6, Algorithm: totp.SHA1,
	})
	require.NoError(t, err)

	ev := <-v.Events()
	assert.Equal(t, EventChanged, ev.Kind)
}

func TestLockThenOperationsFail(t *testing.T) {
	backend := &memBackend{}
	cfg := Config{DeviceID: "device-1", DeviceType: "cli", FriendlyName: "test-device"}
	v := New(cfg, crypto.NewProviderWithParams(fastParams), backend.load, backend.save)
	require.NoError(t, v.Unlock("hunter2"))
	require.NoError(t, v.Lock())

	_, err := v.List()
	assert.Error(t, err)
}

func TestChangePassphrase(t *testing.T) {
	v, backend := newTestVault(t, "device-1")

	require.NoError(t, v.ChangePassphrase("correct horse battery staple", "new-passphrase-1234", nil))
	require.NoError(t, v.Lock())

	cfg := Config{DeviceID: "device-1", DeviceType: "cli", FriendlyName: "test-device"}
	v2 := New(cfg, crypto.NewProviderWithParams(fastParams), backend.load, backend.save)
	require.NoError(t, v2.Unlock("new-passphrase-1234"))
	require.NoError(t, v2.Lock())
}
