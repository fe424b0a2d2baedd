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
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vaultsync/vaultsync/config"
	"github.com/vaultsync/vaultsync/internal/logger"
)

var (
	configPath   string
	deviceID     string
	deviceType   string
	friendlyName string

	appCfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "vaultctl",
	Short: "vaultctl manages a client-side encrypted TOTP vault",
	Long: `vaultctl drives a vaultsync.Vault from the command line: unlocking the
locked representation on disk, adding and generating codes for TOTP
entries, and running the J-PAKE pairing and sync relay flows needed to
bring a second device into an existing vault.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is not an error; it just means nothing to load.
		_ = godotenv.Load()

		cfg, err := loadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		appCfg = cfg

		lvl := logger.InfoLevel
		if parsed, ok := parseLevel(cfg.Logging.Level); ok {
			lvl = parsed
		}
		l := logger.NewLogger(os.Stderr, lvl)
		l.SetPrettyPrint(cfg.Logging.Pretty)
		logger.SetDefaultLogger(l)

		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "vaultctl.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&deviceID, "device-id", defaultDeviceID(), "this device's identity, fixed at vault creation")
	rootCmd.PersistentFlags().StringVar(&deviceType, "device-type", "cli", "this device's type as reported to peers")
	rootCmd.PersistentFlags().StringVar(&friendlyName, "friendly-name", defaultDeviceID(), "this device's display name, fixed at vault creation")
}

func defaultDeviceID() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "vaultctl"
}

func parseLevel(s string) (logger.Level, bool) {
	switch s {
	case "debug":
		return logger.DebugLevel, true
	case "info":
		return logger.InfoLevel, true
	case "warn":
		return logger.WarnLevel, true
	case "error":
		return logger.ErrorLevel, true
	default:
		return logger.InfoLevel, false
	}
}
