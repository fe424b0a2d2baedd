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
	"text/tabwriter"

	"github.com/spf13/cobra"

	vaultsync "github.com/vaultsync/vaultsync"
	"github.com/vaultsync/vaultsync/vault"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List every entry in the vault",
	Example: `  vaultctl list`,
	RunE:    runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	return withVault(func(v *vaultsync.Vault) error {
		entries, err := v.List()
		if err != nil {
			return fmt.Errorf("failed to list entries: %w", err)
		}
		printEntries(entries)
		return nil
	})
}

func printEntries(entries []vault.Entry) {
	if len(entries) == 0 {
		fmt.Println("No entries in vault")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tNAME\tISSUER\tPERIOD\tDIGITS\tALGORITHM\n")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n", e.ID, e.Name, e.Issuer, e.Payload.Period, e.Payload.Digits, e.Payload.Algorithm)
	}
	w.Flush()
}
