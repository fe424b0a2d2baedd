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

package persistence

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultsync/vaultsync/crypto"
	"github.com/vaultsync/vaultsync/vault"
)

var fastParams = crypto.Argon2Params{Parallelism: 1, Iterations: 1, MemoryKiB: 8}

type fakeState struct {
	state VaultState
}

func (f *fakeState) VaultState() VaultState { return f.state }

type fixedScorer struct{ score int }

func (s fixedScorer) Score(string) int { return s.score }

func newTestStore(t *testing.T, save SaveFunc) (*Store, *crypto.KeyMaterial) {
	t.Helper()
	provider := crypto.NewProviderWithParams(fastParams)
	keys, err := provider.CreateKeys("correct horse battery staple")
	require.NoError(t, err)

	state := &fakeState{state: VaultState{
		DeviceID:     "device-a",
		FriendlyName: "Laptop",
		Vault: []vault.Entry{{
			ID:     "e1",
			Name:   "GitHub",
			Issuer: "GitHub",
			Type:   vault.TypeTOTP,
			Payload: vault.Payload{
				Secret: "TESTSECRET", Period: 30, Digits: 6, Algorithm: "SHA1",
			},
		}},
	}}

	if save == nil {
		save = func(LockedRepresentation) error { return nil }
	}
	return NewStore(provider, keys, state, save), keys
}

func TestGetLockedRepresentationRoundTripsViaLoad(t *testing.T) {
	store, _ := newTestStore(t, nil)

	lr, err := store.GetLockedRepresentation()
	require.NoError(t, err)
	assert.Equal(t, StorageVersion, lr.StorageVersion)
	assert.NotEmpty(t, lr.EncryptedVaultState)

	provider := crypto.NewProviderWithParams(fastParams)
	_, state, err := Load(provider, lr, "correct horse battery staple")
	require.NoError(t, err)
	assert.Equal(t, "device-a", state.DeviceID)
	require.Len(t, state.Vault, 1)
	assert.Equal(t, "e1", state.Vault[0].ID)
}

func TestLoadRejectsWrongPassphrase(t *testing.T) {
	store, _ := newTestStore(t, nil)
	lr, err := store.GetLockedRepresentation()
	require.NoError(t, err)

	provider := crypto.NewProviderWithParams(fastParams)
	_, _, err = Load(provider, lr, "wrong passphrase")
	require.Error(t, err)
}

func TestLoadRejectsUnsupportedStorageVersion(t *testing.T) {
	store, _ := newTestStore(t, nil)
	lr, err := store.GetLockedRepresentation()
	require.NoError(t, err)
	lr.StorageVersion = 2

	provider := crypto.NewProviderWithParams(fastParams)
	_, _, err = Load(provider, lr, "correct horse battery staple")
	require.Error(t, err)
}

func TestGetEncryptedVaultStateAddressesSnapshotToRequestedDevice(t *testing.T) {
	store, keys := newTestStore(t, nil)

	blob, err := store.GetEncryptedVaultState(keys.SymmetricKey, "device-b")
	require.NoError(t, err)

	provider := crypto.NewProviderWithParams(fastParams)
	raw, err := provider.DecryptSymmetric(keys.SymmetricKey, blob)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"deviceId":"device-b"`)
}

func TestSaveCoalescesConcurrentCallsIntoOneTrailingSave(t *testing.T) {
	var calls int32
	started := make(chan struct{}, 1)
	release := make(chan struct{})

	store, _ := newTestStore(t, func(LockedRepresentation) error {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			started <- struct{}{}
			<-release
		}
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- store.Save() }()
	<-started

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = store.Save() }()
	go func() { defer wg.Done(); _ = store.Save() }()
	time.Sleep(20 * time.Millisecond)

	close(release)
	wg.Wait()
	require.NoError(t, <-done)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestChangePassphraseInvalidatesOldPassphrase(t *testing.T) {
	store, _ := newTestStore(t, nil)

	require.NoError(t, store.ChangePassphrase("correct horse battery staple", "new much stronger passphrase", nil))

	lr, err := store.GetLockedRepresentation()
	require.NoError(t, err)

	provider := crypto.NewProviderWithParams(fastParams)
	_, _, err = Load(provider, lr, "correct horse battery staple")
	require.Error(t, err, "old passphrase must no longer unlock the vault")

	_, state, err := Load(provider, lr, "new much stronger passphrase")
	require.NoError(t, err)
	assert.Equal(t, "device-a", state.DeviceID)
}

func TestChangePassphraseRejectsWrongOldPassphrase(t *testing.T) {
	store, _ := newTestStore(t, nil)
	err := store.ChangePassphrase("not the right passphrase", "new much stronger passphrase", nil)
	require.Error(t, err)
}

func TestChangePassphraseRejectsWeakPassphrase(t *testing.T) {
	store, _ := newTestStore(t, nil)
	err := store.ChangePassphrase("correct horse battery staple", "weak", fixedScorer{score: 1})
	require.Error(t, err)
}
