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

package exportimport

import (
	"encoding/json"
	"strconv"

	"github.com/vaultsync/vaultsync/vault"
	"github.com/vaultsync/vaultsync/vaulterr"
)

// ExportJSON renders entries as a plain JSON array. Hosts that wrap
// exports in OpenPGP or an HTML printable page apply that layer on top of
// this output; it is out of scope here.
func ExportJSON(entries []vault.Entry) ([]byte, error) {
	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, vaulterr.New(vaulterr.KindExportImport, "failed to marshal entries", err)
	}
	return raw, nil
}

// ImportJSON parses a JSON array of entries, validating each one's payload
// before returning it.
func ImportJSON(data []byte) ([]vault.Entry, error) {
	var entries []vault.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, vaulterr.New(vaulterr.KindExportImport, "failed to parse entries", err)
	}
	for i, e := range entries {
		if err := e.Payload.Validate(); err != nil {
			return nil, vaulterr.New(vaulterr.KindExportImport,
				"entry at index "+strconv.Itoa(i)+" failed validation", err)
		}
	}
	return entries, nil
}
