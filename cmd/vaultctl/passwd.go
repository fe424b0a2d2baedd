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
)

var passwdCmd = &cobra.Command{
	Use:     "passwd",
	Short:   "Change the vault's passphrase",
	Example: `  vaultctl passwd`,
	RunE:    runPasswd,
}

func init() {
	rootCmd.AddCommand(passwdCmd)
}

func runPasswd(cmd *cobra.Command, args []string) error {
	oldPassword, err := readPassword("Current passphrase: ")
	if err != nil {
		return err
	}
	newPassword, err := readPassword("New passphrase: ")
	if err != nil {
		return err
	}

	v, err := openVault(oldPassword)
	if err != nil {
		return fmt.Errorf("failed to unlock vault: %w", err)
	}
	defer v.Lock()

	// No strength-scoring library lives anywhere in this tree's dependency
	// set; a nil scorer skips that check entirely rather than hand-rolling
	// one, per persistence.Store.ChangePassphrase's own documented contract.
	if err := v.ChangePassphrase(oldPassword, newPassword, nil); err != nil {
		return fmt.Errorf("failed to change passphrase: %w", err)
	}
	fmt.Println("Passphrase changed")
	return nil
}
