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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, uint32(256), cfg.Argon2.TimeCost)
	assert.Equal(t, uint32(512*1024), cfg.Argon2.MemoryKiB)
	assert.Equal(t, uint8(1), cfg.Argon2.Parallelism)
	assert.Equal(t, 5*time.Second, cfg.Relay.ReconnectInterval)
	assert.Equal(t, ".vaultsync/vault.json", cfg.Storage.Path)
}

func TestLoadFromFileSubstitutesEnv(t *testing.T) {
	os.Setenv("VAULTSYNC_TEST_RELAY_URL", "wss://relay.example.com/ws")
	defer os.Unsetenv("VAULTSYNC_TEST_RELAY_URL")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "relay:\n  url: \"${VAULTSYNC_TEST_RELAY_URL}\"\n  allow_insecure_ws: false\nlogging:\n  level: \"${VAULTSYNC_TEST_LOG_LEVEL:debug}\"\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "wss://relay.example.com/ws", cfg.Relay.URL)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, uint32(256), cfg.Argon2.TimeCost, "defaults still applied after load")
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := Default()
	cfg.Relay.URL = "wss://relay.internal/ws"
	require.NoError(t, SaveToFile(cfg, path))

	reloaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Relay.URL, reloaded.Relay.URL)
}
