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

// Package persistence assembles the vault's sealed at-rest representation
// and drives the host-supplied save callback, serializing concurrent save
// requests so a burst of mutations produces one trailing write rather than
// an interleaved pile of them.
package persistence

import (
	"encoding/base64"
	"encoding/json"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/vaultsync/vaultsync/crypto"
	"github.com/vaultsync/vaultsync/device"
	"github.com/vaultsync/vaultsync/internal/logger"
	"github.com/vaultsync/vaultsync/vault"
	"github.com/vaultsync/vaultsync/vaulterr"
)

// LibVersion is stamped into every locked representation this build
// produces.
const LibVersion = "0.1.0"

// StorageVersion is the only storageVersion this build accepts on load.
const StorageVersion = 1

// PendingOutboundCommand is a fanned-out command awaiting the relay's
// receipt acknowledgement, persisted so it survives a process restart.
type PendingOutboundCommand struct {
	CommandID             string `json:"commandId"`
	TargetDeviceID        string `json:"targetDeviceId"`
	EncryptedSymmetricKey string `json:"encryptedSymmetricKey"`
	EncryptedCommand      string `json:"encryptedCommand"`
}

// SyncSection is the sync-facing half of the plaintext vault state.
type SyncSection struct {
	Devices   []device.Device          `json:"devices"`
	ServerURL string                   `json:"serverUrl"`
	Pending   []PendingOutboundCommand `json:"pendingOutboundCommands"`
}

// VaultState is the full plaintext state that gets symmetrically
// encrypted into LockedRepresentation.EncryptedVaultState.
type VaultState struct {
	DeviceID     string        `json:"deviceId"`
	FriendlyName string        `json:"friendlyName"`
	Vault        []vault.Entry `json:"vault"`
	Sync         SyncSection   `json:"sync"`
}

// LockedRepresentation is the sealed form handed to the host's save
// callback, and read back on load.
type LockedRepresentation struct {
	LibVersion            string `json:"libVersion"`
	StorageVersion        int    `json:"storageVersion"`
	EncryptedPrivateKey   string `json:"encryptedPrivateKey"`
	EncryptedSymmetricKey string `json:"encryptedSymmetricKey"`
	Salt                  string `json:"salt"`
	EncryptedVaultState   string `json:"encryptedVaultState"`
}

// StateSource supplies the current plaintext snapshot to seal. Implemented
// by the library facade, which owns the vault.Store/device.List/command.Log
// this reads from.
type StateSource interface {
	VaultState() VaultState
}

// SaveFunc persists a sealed LockedRepresentation, e.g. to disk or to
// platform-native secure storage. Supplied by the embedding host.
type SaveFunc func(LockedRepresentation) error

// StrengthScorer scores a candidate passphrase, returning a zxcvbn-style
// 0-4 score. A true external collaborator: no default implementation
// ships, since password-strength heuristics are a host concern.
type StrengthScorer interface {
	Score(passphrase string) int
}

const minPassphraseScore = 3

// Store owns the per-vault KeyMaterial and drives save serialization.
type Store struct {
	provider crypto.Provider
	state    StateSource
	save     SaveFunc

	mu   sync.Mutex
	keys *crypto.KeyMaterial

	group singleflight.Group
	dirty bool
}

// NewStore constructs a Store around an already-unlocked KeyMaterial.
func NewStore(provider crypto.Provider, keys *crypto.KeyMaterial, state StateSource, save SaveFunc) *Store {
	return &Store{provider: provider, keys: keys, state: state, save: save}
}

// Load verifies storageVersion and passphrase, and recovers the KeyMaterial
// plus the plaintext VaultState from a previously saved LockedRepresentation.
func Load(provider crypto.Provider, lr LockedRepresentation, password string) (*crypto.KeyMaterial, VaultState, error) {
	if lr.StorageVersion != StorageVersion {
		return nil, VaultState{}, vaulterr.New(vaulterr.KindInitialization,
			"unsupported storage version, expected 1", nil)
	}

	salt, err := base64.StdEncoding.DecodeString(lr.Salt)
	if err != nil {
		return nil, VaultState{}, vaulterr.New(vaulterr.KindInitialization, "malformed salt", err)
	}

	kek, err := provider.DeriveKEK(password, salt)
	if err != nil {
		return nil, VaultState{}, err
	}
	priv, err := provider.UnwrapPrivateKey(lr.EncryptedPrivateKey, kek)
	if err != nil {
		return nil, VaultState{}, err
	}
	symKey, err := provider.UnwrapSymmetricKey(lr.EncryptedSymmetricKey, priv)
	if err != nil {
		return nil, VaultState{}, err
	}

	raw, err := provider.DecryptSymmetric(symKey, lr.EncryptedVaultState)
	if err != nil {
		return nil, VaultState{}, err
	}
	var state VaultState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, VaultState{}, vaulterr.New(vaulterr.KindInitialization, "malformed vault state", err)
	}

	keys := &crypto.KeyMaterial{
		Salt:                  salt,
		PrivateKey:            priv,
		PublicKey:             &priv.PublicKey,
		SymmetricKey:          symKey,
		EncryptedPrivateKey:   lr.EncryptedPrivateKey,
		EncryptedSymmetricKey: lr.EncryptedSymmetricKey,
	}
	return keys, state, nil
}

// Keys returns the current KeyMaterial.
func (s *Store) Keys() *crypto.KeyMaterial {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys
}

// GetLockedRepresentation assembles the full sealed form, encrypting the
// current vault state under the store's own symmetric key.
func (s *Store) GetLockedRepresentation() (LockedRepresentation, error) {
	blob, err := s.GetEncryptedVaultState(nil, "")
	if err != nil {
		return LockedRepresentation{}, err
	}

	s.mu.Lock()
	keys := s.keys
	s.mu.Unlock()

	return LockedRepresentation{
		LibVersion:            LibVersion,
		StorageVersion:        StorageVersion,
		EncryptedPrivateKey:   keys.EncryptedPrivateKey,
		EncryptedSymmetricKey: keys.EncryptedSymmetricKey,
		Salt:                  base64.StdEncoding.EncodeToString(keys.Salt),
		EncryptedVaultState:   blob,
	}, nil
}

// GetEncryptedVaultState serializes the sync-facing bundle and
// symmetrically encrypts it, either under the supplied key (pairing's
// initialVault, resilver's vault message) or under the store's own
// symmetric key (ordinary persistence). When forDeviceID is non-empty the
// outgoing snapshot is addressed to that device rather than self.
func (s *Store) GetEncryptedVaultState(key []byte, forDeviceID string) (string, error) {
	state := s.state.VaultState()
	if forDeviceID != "" {
		state.DeviceID = forDeviceID
	}

	raw, err := json.Marshal(state)
	if err != nil {
		return "", vaulterr.New(vaulterr.KindInitialization, "failed to marshal vault state", err)
	}

	useKey := key
	if useKey == nil {
		s.mu.Lock()
		useKey = s.keys.SymmetricKey
		s.mu.Unlock()
	}
	return s.provider.EncryptSymmetric(useKey, raw)
}

// Save persists the current state via the host callback. Concurrent Save
// calls collapse onto a single in-flight save; if a further Save is
// requested while one is already running, exactly one more save is issued
// once it completes, rather than one per caller.
func (s *Store) Save() error {
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()

	_, err, _ := s.group.Do("save", s.runSave)
	return err
}

func (s *Store) runSave() (interface{}, error) {
	s.mu.Lock()
	s.dirty = false
	s.mu.Unlock()

	lr, err := s.GetLockedRepresentation()
	if err != nil {
		return nil, err
	}
	if err := s.save(lr); err != nil {
		return nil, vaulterr.New(vaulterr.KindInitialization, "save callback failed", err)
	}

	s.mu.Lock()
	again := s.dirty
	s.mu.Unlock()
	if again {
		return s.runSave()
	}
	return nil, nil
}

// ChangePassphrase verifies the old passphrase via trial-decrypt, checks
// the new one against scorer (if supplied), and re-wraps the same private
// and symmetric key under a freshly derived KEK. Entries themselves are
// never re-encrypted, since they're sealed under the symmetric key, which
// this operation does not change.
func (s *Store) ChangePassphrase(oldPassword, newPassword string, scorer StrengthScorer) error {
	if scorer != nil && scorer.Score(newPassword) < minPassphraseScore {
		return vaulterr.New(vaulterr.KindInitialization, "new passphrase is too weak", nil)
	}

	s.mu.Lock()
	keys := s.keys
	s.mu.Unlock()

	oldKEK, err := s.provider.DeriveKEK(oldPassword, keys.Salt)
	if err != nil {
		return err
	}
	if _, err := s.provider.UnwrapPrivateKey(keys.EncryptedPrivateKey, oldKEK); err != nil {
		return vaulterr.New(vaulterr.KindAuthentication, "old passphrase is incorrect", err)
	}

	newSalt, err := s.provider.RandomBytes(16)
	if err != nil {
		return err
	}
	newKEK, err := s.provider.DeriveKEK(newPassword, newSalt)
	if err != nil {
		return err
	}

	newEncryptedPriv, err := s.provider.WrapPrivateKey(keys.PrivateKey, newKEK)
	if err != nil {
		return err
	}
	newEncryptedSym, err := s.provider.Encrypt(keys.PublicKey, keys.SymmetricKey)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.keys = &crypto.KeyMaterial{
		Salt:                  newSalt,
		PrivateKey:            keys.PrivateKey,
		PublicKey:             keys.PublicKey,
		SymmetricKey:          keys.SymmetricKey,
		EncryptedPrivateKey:   newEncryptedPriv,
		EncryptedSymmetricKey: newEncryptedSym,
	}
	s.mu.Unlock()

	logger.Info("passphrase changed")
	return s.Save()
}
