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

var resilverCmd = &cobra.Command{
	Use:   "resilver [deviceIDs...]",
	Short: "Ask peers for a fresh full-vault copy",
	Long:  `Request a resilver from the named peer devices, or every paired peer if none are given.`,
	Example: `  vaultctl resilver
  vaultctl resilver device-2 device-3`,
	RunE: runResilver,
}

func init() {
	rootCmd.AddCommand(resilverCmd)
}

func runResilver(cmd *cobra.Command, args []string) error {
	return withVault(func(v *vaultsync.Vault) error {
		if err := v.RequestResilver(args); err != nil {
			return fmt.Errorf("failed to request resilver: %w", err)
		}
		fmt.Println("Resilver requested")
		return nil
	})
}
