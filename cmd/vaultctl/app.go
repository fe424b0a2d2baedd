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

package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	vaultsync "github.com/vaultsync/vaultsync"
	"github.com/vaultsync/vaultsync/config"
	"github.com/vaultsync/vaultsync/crypto"
	"github.com/vaultsync/vaultsync/persistence"
)

// loadConfig reads path if present, falling back to vaultsync's own
// defaults so a first run never needs a config file on disk.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return config.LoadFromFile(path)
}

// readPassword returns VAULTCTL_PASSWORD if set, otherwise reads a single
// line from stdin. Every other dependency this CLI needs already lives
// somewhere in the corpus; a terminal-masking library does not, so a plain
// stdin read is the deliberate stdlib fallback here.
func readPassword(prompt string) (string, error) {
	if pw := os.Getenv("VAULTCTL_PASSWORD"); pw != "" {
		return pw, nil
	}
	fmt.Fprint(os.Stderr, prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// fileBackend reads and writes a vaultsync.LockedRepresentation to path as
// indented JSON, giving vaultctl a durable single-file vault store.
func fileBackend(path string) (func() (persistence.LockedRepresentation, bool, error), vaultsync.SaveFunc) {
	load := func() (persistence.LockedRepresentation, bool, error) {
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			return persistence.LockedRepresentation{}, false, nil
		}
		if err != nil {
			return persistence.LockedRepresentation{}, false, err
		}
		var lr persistence.LockedRepresentation
		if err := json.Unmarshal(data, &lr); err != nil {
			return persistence.LockedRepresentation{}, false, fmt.Errorf("corrupt vault file %s: %w", path, err)
		}
		return lr, true, nil
	}

	save := func(lr persistence.LockedRepresentation) error {
		data, err := json.MarshalIndent(lr, "", "  ")
		if err != nil {
			return err
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return err
			}
		}
		return os.WriteFile(path, data, 0600)
	}

	return load, save
}

// newProvider builds a crypto.Provider from the config's Argon2 cost
// parameters, reconciling config.Argon2Config's field names (chosen to
// read well in YAML) against crypto.Argon2Params's (chosen to name what
// they actually are).
func newProvider(cfg config.Argon2Config) crypto.Provider {
	return crypto.NewProviderWithParams(crypto.Argon2Params{
		Parallelism: cfg.Parallelism,
		Iterations:  cfg.TimeCost,
		MemoryKiB:   cfg.MemoryKiB,
	})
}

// openVault unlocks the vault described by appCfg and the global
// device identity flags, and returns it already unlocked.
func openVault(password string) (*vaultsync.Vault, error) {
	load, save := fileBackend(appCfg.Storage.Path)

	vcfg := vaultsync.Config{
		DeviceID:           deviceID,
		DeviceType:         deviceType,
		FriendlyName:       friendlyName,
		ServerURL:          appCfg.Relay.URL,
		AllowInsecureRelay: appCfg.Relay.AllowInsecureWS,
		ReconnectInterval:  appCfg.Relay.ReconnectInterval,
	}

	v := vaultsync.New(vcfg, newProvider(appCfg.Argon2), load, save)
	if err := v.Unlock(password); err != nil {
		return nil, err
	}
	return v, nil
}

// withVault opens the vault, runs fn, and locks it again regardless of
// fn's outcome. Every subcommand that touches vault state goes through
// this so none of them forgets to lock on the way out.
func withVault(fn func(v *vaultsync.Vault) error) error {
	password, err := readPassword("Vault passphrase: ")
	if err != nil {
		return err
	}

	v, err := openVault(password)
	if err != nil {
		return fmt.Errorf("failed to unlock vault: %w", err)
	}
	defer v.Lock()

	return fn(v)
}
