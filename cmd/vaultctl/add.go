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

	"github.com/spf13/cobra"

	vaultsync "github.com/vaultsync/vaultsync"
	"github.com/vaultsync/vaultsync/totp"
	"github.com/vaultsync/vaultsync/vault"
)

var (
	addPeriod    int
	addDigits    int
	addAlgorithm string
)

var addCmd = &cobra.Command{
	Use:   "add <name> <issuer> <secret>",
	Short: "Add a new TOTP entry",
	Example: `  # Add an entry for alice@example.com, synced to every paired device
  vaultctl add alice@example.com "Example Co" JBSWY3DPEHPK3PXP`,
	Args: cobra.ExactArgs(3),
	RunE: runAdd,
}

func init() {
	rootCmd.AddCommand(addCmd)

	addCmd.Flags().IntVar(&addPeriod, "period", 30, "OTP validity period in seconds")
	addCmd.Flags().IntVar(&addDigits, "digits", 6, "OTP digit count (6 or 8)")
	addCmd.Flags().StringVar(&addAlgorithm, "algorithm", "SHA1", "HMAC algorithm (SHA1, SHA256, SHA512)")
}

func runAdd(cmd *cobra.Command, args []string) error {
	name, issuer, secret := args[0], args[1], args[2]

	return withVault(func(v *vaultsync.Vault) error {
		entry, err := v.AddEntry(name, issuer, vault.Payload{
			Secret:    secret,
			Period:    addPeriod,
			Digits:    addDigits,
			Algorithm: totp.Algorithm(addAlgorithm),
		})
		if err != nil {
			return fmt.Errorf("failed to add entry: %w", err)
		}
		fmt.Printf("Added entry %s (%s / %s)\n", entry.ID, entry.Name, entry.Issuer)
		return nil
	})
}
