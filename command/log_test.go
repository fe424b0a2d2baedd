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

package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultsync/vaultsync/device"
	"github.com/vaultsync/vaultsync/totp"
	"github.com/vaultsync/vaultsync/vault"
)

func testEntry(id string) vault.Entry {
	return vault.Entry{
		ID:     id,
		Name:   "Test",
		Issuer: "Test Issuer",
		Type:   vault.TypeTOTP,
		Payload: vault.Payload{
			Secret:    "TESTSECRET",
			Period:    30,
			Digits:    6,
			Algorithm: totp.SHA1,
		},
	}
}

func newTestLog() *Log {
	return NewLog(vault.NewStore(), device.NewList(), "self-device")
}

func TestApplyLocalAddThenUndo(t *testing.T) {
	l := newTestLog()

	add := &Command{ID: "c1", Kind: KindAddEntry, AddEntry: &AddEntryPayload{Entry: testEntry("e1")}}
	require.NoError(t, l.ApplyLocal(add))

	_, err := l.state.Entries.Get("e1")
	require.NoError(t, err)

	undo, err := l.Undo("c2", 100)
	require.NoError(t, err)
	assert.Equal(t, KindDeleteEntry, undo.Kind)

	_, err = l.state.Entries.Get("e1")
	assert.Error(t, err)
}

func TestUndoRedoRoundTrip(t *testing.T) {
	l := newTestLog()
	require.NoError(t, l.ApplyLocal(&Command{ID: "c1", Kind: KindAddEntry, AddEntry: &AddEntryPayload{Entry: testEntry("e1")}}))

	_, err := l.Undo("c2", 100)
	require.NoError(t, err)
	_, err = l.state.Entries.Get("e1")
	assert.Error(t, err)

	_, err = l.Redo("c3", 200)
	require.NoError(t, err)
	_, err = l.state.Entries.Get("e1")
	assert.NoError(t, err)
}

func TestUndoUpdateRestoresPriorEntry(t *testing.T) {
	l := newTestLog()
	require.NoError(t, l.ApplyLocal(&Command{ID: "c1", Kind: KindAddEntry, AddEntry: &AddEntryPayload{Entry: testEntry("e1")}}))

	renamed := testEntry("e1")
	renamed.Name = "Renamed"
	require.NoError(t, l.ApplyLocal(&Command{ID: "c2", Kind: KindUpdateEntry, Timestamp: 50, UpdateEntry: &UpdateEntryPayload{Entry: renamed}}))

	got, err := l.state.Entries.Get("e1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)

	_, err = l.Undo("c3", 100)
	require.NoError(t, err)

	got, err = l.state.Entries.Get("e1")
	require.NoError(t, err)
	assert.Equal(t, "Test", got.Name)
}

func TestAddSyncDeviceHasNoUndo(t *testing.T) {
	l := newTestLog()
	d := device.Device{DeviceID: "peer-1"}
	require.NoError(t, l.ApplyLocal(&Command{ID: "c1", Kind: KindAddSyncDevice, AddSyncDevice: &AddSyncDevicePayload{Device: d}}))

	_, err := l.Undo("c2", 100)
	assert.Error(t, err)
}

func TestEnqueueRemoteRejectsDuplicateID(t *testing.T) {
	l := newTestLog()
	c := &Command{ID: "dup", Kind: KindAddEntry, AddEntry: &AddEntryPayload{Entry: testEntry("e1")}}
	require.NoError(t, l.EnqueueRemote(c))
	applied := l.DrainRemote()
	require.Len(t, applied, 1)

	err := l.EnqueueRemote(&Command{ID: "dup", Kind: KindAddEntry, AddEntry: &AddEntryPayload{Entry: testEntry("e2")}})
	assert.Error(t, err)
}

func TestDrainRemoteAppliesInTimestampIDOrder(t *testing.T) {
	l := newTestLog()

	require.NoError(t, l.EnqueueRemote(&Command{ID: "b", Timestamp: 5, Kind: KindAddEntry, AddEntry: &AddEntryPayload{Entry: testEntry("e-b")}}))
	require.NoError(t, l.EnqueueRemote(&Command{ID: "a", Timestamp: 5, Kind: KindAddEntry, AddEntry: &AddEntryPayload{Entry: testEntry("e-a")}}))
	require.NoError(t, l.EnqueueRemote(&Command{ID: "c", Timestamp: 1, Kind: KindAddEntry, AddEntry: &AddEntryPayload{Entry: testEntry("e-c")}}))

	applied := l.DrainRemote()
	require.Len(t, applied, 3)
	assert.Equal(t, "c", applied[0].ID)
	assert.Equal(t, "a", applied[1].ID)
	assert.Equal(t, "b", applied[2].ID)
}

func TestFanoutCalledOnLocalApply(t *testing.T) {
	l := newTestLog()
	var seen []*Command
	l.SetFanoutHandler(func(c *Command) { seen = append(seen, c) })

	require.NoError(t, l.ApplyLocal(&Command{ID: "c1", Kind: KindAddEntry, AddEntry: &AddEntryPayload{Entry: testEntry("e1")}}))
	require.Len(t, seen, 1)
	assert.Equal(t, "c1", seen[0].ID)
}
