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

// Package command implements the vault's replicated command log. Command
// variants are a closed tagged union dispatched by a switch on Kind, rather
// than interface-per-type polymorphism: each Command carries exactly one
// populated payload field selected by Kind.
package command

import (
	"github.com/vaultsync/vaultsync/device"
	"github.com/vaultsync/vaultsync/vault"
	"github.com/vaultsync/vaultsync/vaulterr"
)

// Kind tags which payload field of a Command is populated.
type Kind string

const (
	KindAddEntry         Kind = "AddEntry"
	KindUpdateEntry      Kind = "UpdateEntry"
	KindDeleteEntry      Kind = "DeleteEntry"
	KindAddSyncDevice    Kind = "AddSyncDevice"
	KindChangeDeviceInfo Kind = "ChangeDeviceInfo"
)

// Origin distinguishes a locally-originated command from one received over
// sync, since only local commands may be undone.
type Origin int

const (
	OriginLocal Origin = iota
	OriginRemote
)

// SchemaVersion is stamped on every command for forward compatibility.
const SchemaVersion = 1

// AddEntryPayload carries a new Entry to insert.
type AddEntryPayload struct {
	Entry vault.Entry
}

// UpdateEntryPayload carries the replacement Entry.
type UpdateEntryPayload struct {
	Entry vault.Entry
}

// DeleteEntryPayload names the entry to remove.
type DeleteEntryPayload struct {
	EntryID string
}

// AddSyncDevicePayload carries a new peer device to register.
type AddSyncDevicePayload struct {
	Device device.Device
}

// ChangeDeviceInfoPayload carries a device's mutable attributes.
type ChangeDeviceInfoPayload struct {
	DeviceID     string
	DeviceType   string
	FriendlyName string
}

// Command is an immutable operation record.
type Command struct {
	ID            string
	Kind          Kind
	Timestamp     int64
	SchemaVersion int
	Origin        Origin

	AddEntry         *AddEntryPayload
	UpdateEntry      *UpdateEntryPayload
	DeleteEntry      *DeleteEntryPayload
	AddSyncDevice    *AddSyncDevicePayload
	ChangeDeviceInfo *ChangeDeviceInfoPayload
}

// State is the mutable state a command executes against.
type State struct {
	Entries *vault.Store
	Devices *device.List
}

// Validate performs a structural check before Execute is attempted.
func (c *Command) Validate() error {
	switch c.Kind {
	case KindAddEntry:
		if c.AddEntry == nil {
			return vaulterr.New(vaulterr.KindInvalidCommand, "AddEntry command missing payload", nil)
		}
		return c.AddEntry.Entry.Payload.Validate()
	case KindUpdateEntry:
		if c.UpdateEntry == nil {
			return vaulterr.New(vaulterr.KindInvalidCommand, "UpdateEntry command missing payload", nil)
		}
		return c.UpdateEntry.Entry.Payload.Validate()
	case KindDeleteEntry:
		if c.DeleteEntry == nil || c.DeleteEntry.EntryID == "" {
			return vaulterr.New(vaulterr.KindInvalidCommand, "DeleteEntry command missing entry id", nil)
		}
		return nil
	case KindAddSyncDevice:
		if c.AddSyncDevice == nil {
			return vaulterr.New(vaulterr.KindInvalidCommand, "AddSyncDevice command missing payload", nil)
		}
		return c.AddSyncDevice.Device.Validate()
	case KindChangeDeviceInfo:
		if c.ChangeDeviceInfo == nil || c.ChangeDeviceInfo.DeviceID == "" {
			return vaulterr.New(vaulterr.KindInvalidCommand, "ChangeDeviceInfo command missing device id", nil)
		}
		return nil
	default:
		return vaulterr.New(vaulterr.KindInvalidCommand, "unknown command kind: "+string(c.Kind), nil)
	}
}

// Result carries whatever prior state Execute displaced, so the caller can
// later build an undo command without re-reading the store (the entry may
// already be gone, e.g. after a delete).
type Result struct {
	// PriorEntry is the entry that existed before an UpdateEntry, or the
	// entry removed by a DeleteEntry. Zero value for all other kinds.
	PriorEntry    vault.Entry
	HasPriorEntry bool
}

// Execute applies the command to state. Callers must call Validate first.
func (c *Command) Execute(state *State) (Result, error) {
	switch c.Kind {
	case KindAddEntry:
		return Result{}, state.Entries.Add(c.AddEntry.Entry)
	case KindUpdateEntry:
		prior, err := state.Entries.Update(c.UpdateEntry.Entry, c.Timestamp)
		if err != nil {
			return Result{}, err
		}
		return Result{PriorEntry: prior, HasPriorEntry: true}, nil
	case KindDeleteEntry:
		removed, err := state.Entries.Delete(c.DeleteEntry.EntryID)
		if err != nil {
			return Result{}, err
		}
		return Result{PriorEntry: removed, HasPriorEntry: true}, nil
	case KindAddSyncDevice:
		return Result{}, state.Devices.Add(c.AddSyncDevice.Device)
	case KindChangeDeviceInfo:
		return Result{}, state.Devices.Update(c.ChangeDeviceInfo.DeviceID, c.ChangeDeviceInfo.DeviceType, c.ChangeDeviceInfo.FriendlyName)
	default:
		return Result{}, vaulterr.New(vaulterr.KindInvalidCommand, "unknown command kind: "+string(c.Kind), nil)
	}
}

// CreateUndoCommand returns the inverse of an executed local command, given
// the Result captured at execution time.
//
// AddSyncDevice and ChangeDeviceInfo have no undo: a device that has
// already completed (or is mid) a J-PAKE exchange and received a copy of
// the sync key cannot be un-paired by a local undo alone, since the peer
// must be told. Callers get InvalidCommand and should use a removal flow
// instead.
func CreateUndoCommand(executed *Command, result Result, newID string, nowMs int64) (*Command, error) {
	switch executed.Kind {
	case KindAddEntry:
		return &Command{
			ID:            newID,
			Kind:          KindDeleteEntry,
			Timestamp:     nowMs,
			SchemaVersion: SchemaVersion,
			Origin:        OriginLocal,
			DeleteEntry:   &DeleteEntryPayload{EntryID: executed.AddEntry.Entry.ID},
		}, nil

	case KindUpdateEntry:
		if !result.HasPriorEntry {
			return nil, vaulterr.New(vaulterr.KindInvalidCommand, "no captured prior entry for update undo", nil)
		}
		return &Command{
			ID:            newID,
			Kind:          KindUpdateEntry,
			Timestamp:     nowMs,
			SchemaVersion: SchemaVersion,
			Origin:        OriginLocal,
			UpdateEntry:   &UpdateEntryPayload{Entry: result.PriorEntry},
		}, nil

	case KindDeleteEntry:
		if !result.HasPriorEntry {
			return nil, vaulterr.New(vaulterr.KindInvalidCommand, "no captured prior entry for delete undo", nil)
		}
		return &Command{
			ID:            newID,
			Kind:          KindAddEntry,
			Timestamp:     nowMs,
			SchemaVersion: SchemaVersion,
			Origin:        OriginLocal,
			AddEntry:      &AddEntryPayload{Entry: result.PriorEntry},
		}, nil

	case KindAddSyncDevice, KindChangeDeviceInfo:
		return nil, vaulterr.New(vaulterr.KindInvalidCommand, string(executed.Kind)+" has no undo", nil)

	default:
		return nil, vaulterr.New(vaulterr.KindInvalidCommand, "unknown command kind: "+string(executed.Kind), nil)
	}
}
