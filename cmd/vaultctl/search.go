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

var searchCmd = &cobra.Command{
	Use:     "search <query>",
	Short:   "Find entries by name or issuer",
	Example: `  vaultctl search example`,
	Args:    cobra.ExactArgs(1),
	RunE:    runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := args[0]
	return withVault(func(v *vaultsync.Vault) error {
		entries, err := v.Search(query)
		if err != nil {
			return fmt.Errorf("failed to search entries: %w", err)
		}
		printEntries(entries)
		return nil
	})
}
