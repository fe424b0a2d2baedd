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
	"time"

	"github.com/spf13/cobra"

	vaultsync "github.com/vaultsync/vaultsync"
)

var tokenCmd = &cobra.Command{
	Use:     "token <id>",
	Short:   "Generate the current OTP for an entry",
	Example: `  vaultctl token 1f9a3b2c-...`,
	Args:    cobra.ExactArgs(1),
	RunE:    runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	id := args[0]
	return withVault(func(v *vaultsync.Vault) error {
		tok, err := v.GenerateToken(id)
		if err != nil {
			return fmt.Errorf("failed to generate token: %w", err)
		}
		remaining := time.Duration(tok.ValidTill-time.Now().UnixMilli()) * time.Millisecond
		fmt.Printf("%s (valid for %s)\n", tok.OTP, remaining.Round(time.Second))
		return nil
	})
}
