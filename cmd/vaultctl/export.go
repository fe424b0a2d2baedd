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

	"github.com/spf13/cobra"

	vaultsync "github.com/vaultsync/vaultsync"
	"github.com/vaultsync/vaultsync/exportimport"
	"github.com/vaultsync/vaultsync/vault"
	"github.com/vaultsync/vaultsync/vaulterr"
)

var exportURIEntryID string

var exportCmd = &cobra.Command{
	Use:   "export <path>",
	Short: "Write every entry's plaintext payload to a JSON file",
	Long: `Exports the full decrypted vault contents as a JSON array. The resulting
file is unencrypted; treat it the way you'd treat the secrets themselves.
With --uri, exports a single entry as an otpauth:// URI instead.`,
	Example: `  vaultctl export vault-backup.json
  vaultctl export --uri <id> alice.otpauth.txt`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVar(&exportURIEntryID, "uri", "", "export a single entry (by id) as an otpauth:// URI instead of the full JSON backup")
}

func runExport(cmd *cobra.Command, args []string) error {
	path := args[0]
	return withVault(func(v *vaultsync.Vault) error {
		entries, err := v.List()
		if err != nil {
			return fmt.Errorf("failed to list entries: %w", err)
		}

		if exportURIEntryID != "" {
			return exportSingleURI(entries, exportURIEntryID, path)
		}

		data, err := exportimport.ExportJSON(entries)
		if err != nil {
			return fmt.Errorf("failed to export entries: %w", err)
		}
		if err := os.WriteFile(path, data, 0600); err != nil {
			return fmt.Errorf("failed to write export file: %w", err)
		}
		fmt.Printf("Exported %d entries to %s\n", len(entries), path)
		return nil
	})
}

func exportSingleURI(entries []vault.Entry, id, path string) error {
	var target *vault.Entry
	for i := range entries {
		if entries[i].ID == id {
			target = &entries[i]
			break
		}
	}
	if target == nil {
		return vaulterr.New(vaulterr.KindExportImport, "no entry with that id", nil)
	}

	uri, err := exportimport.EncodeURI(*target)
	if err != nil {
		return fmt.Errorf("failed to encode otpauth uri: %w", err)
	}
	if err := os.WriteFile(path, []byte(uri+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	fmt.Printf("Exported entry %s to %s\n", id, path)
	return nil
}
