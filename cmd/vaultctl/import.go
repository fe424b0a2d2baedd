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
	"strings"

	"github.com/spf13/cobra"

	vaultsync "github.com/vaultsync/vaultsync"
	"github.com/vaultsync/vaultsync/exportimport"
	"github.com/vaultsync/vaultsync/vault"
)

var importURI bool

var importCmd = &cobra.Command{
	Use:   "import <path>",
	Short: "Add every entry from a previously exported file",
	Long: `Imports entries from a JSON backup produced by "export", or, with
--uri, a file of otpauth:// URIs (one per line).`,
	Example: `  vaultctl import vault-backup.json
  vaultctl import --uri alice.otpauth.txt`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().BoolVar(&importURI, "uri", false, "parse the file as otpauth:// URIs, one per line, instead of a JSON backup")
}

func runImport(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read import file: %w", err)
	}

	entries, err := parseImport(data)
	if err != nil {
		return err
	}

	return withVault(func(v *vaultsync.Vault) error {
		imported := 0
		for _, e := range entries {
			if _, err := v.AddEntry(e.Name, e.Issuer, e.Payload); err != nil {
				return fmt.Errorf("failed to import entry %q: %w", e.Name, err)
			}
			imported++
		}
		fmt.Printf("Imported %d entries\n", imported)
		return nil
	})
}

func parseImport(data []byte) ([]vault.Entry, error) {
	if !importURI {
		entries, err := exportimport.ImportJSON(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse import file: %w", err)
		}
		return entries, nil
	}

	var entries []vault.Entry
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		entry, err := exportimport.DecodeURI(line)
		if err != nil {
			return nil, fmt.Errorf("failed to parse otpauth uri: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
