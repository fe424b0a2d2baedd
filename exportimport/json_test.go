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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultsync/vaultsync/vault"
)

func TestExportImportJSONRoundTrip(t *testing.T) {
	entries := []vault.Entry{testEntry()}

	raw, err := ExportJSON(entries)
	require.NoError(t, err)

	imported, err := ImportJSON(raw)
	require.NoError(t, err)
	require.Len(t, imported, 1)
	assert.Equal(t, entries[0].Name, imported[0].Name)
	assert.Equal(t, entries[0].Payload.Secret, imported[0].Payload.Secret)
}

func TestImportJSONRejectsInvalidEntry(t *testing.T) {
	_, err := ImportJSON([]byte(`[{"ID":"e1","Name":"x","Type":"TOTP","Payload":{"Secret":"","Period":30,"Digits":6}}]`))
	require.Error(t, err)
}

func TestImportJSONRejectsMalformedJSON(t *testing.T) {
	_, err := ImportJSON([]byte(`not json`))
	require.Error(t, err)
}
