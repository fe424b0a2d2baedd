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

package vaultsync

import (
	"time"

	"github.com/vaultsync/vaultsync/command"
	"github.com/vaultsync/vaultsync/vault"
)

// AddEntry creates a new TOTP entry and fans it out to every paired peer.
func (v *Vault) AddEntry(name, issuer string, payload vault.Payload) (vault.Entry, error) {
	var result vault.Entry
	err := v.do(func() error {
		e := vault.Entry{
			ID:      v.newID(),
			Name:    name,
			Issuer:  issuer,
			Type:    vault.TypeTOTP,
			Payload: payload,
			AddedAt: time.Now().UnixMilli(),
		}
		cmd := &command.Command{
			ID:            v.newID(),
			Kind:          command.KindAddEntry,
			Timestamp:     e.AddedAt,
			SchemaVersion: command.SchemaVersion,
			AddEntry:      &command.AddEntryPayload{Entry: e},
		}
		if err := v.log.ApplyLocal(cmd); err != nil {
			return err
		}
		result = e
		return nil
	})
	return result, err
}

// UpdateEntry replaces an existing entry with e, payload (and so its
// secret) included; only the stored AddedAt is kept.
func (v *Vault) UpdateEntry(e vault.Entry) (vault.Entry, error) {
	var result vault.Entry
	err := v.do(func() error {
		now := time.Now().UnixMilli()
		cmd := &command.Command{
			ID:            v.newID(),
			Kind:          command.KindUpdateEntry,
			Timestamp:     now,
			SchemaVersion: command.SchemaVersion,
			UpdateEntry:   &command.UpdateEntryPayload{Entry: e},
		}
		if err := v.log.ApplyLocal(cmd); err != nil {
			return err
		}
		updated, err := v.entries.Get(e.ID)
		if err != nil {
			return err
		}
		result = updated
		return nil
	})
	return result, err
}

// DeleteEntry removes an entry by id.
func (v *Vault) DeleteEntry(id string) error {
	return v.do(func() error {
		cmd := &command.Command{
			ID:            v.newID(),
			Kind:          command.KindDeleteEntry,
			Timestamp:     time.Now().UnixMilli(),
			SchemaVersion: command.SchemaVersion,
			DeleteEntry:   &command.DeleteEntryPayload{EntryID: id},
		}
		return v.log.ApplyLocal(cmd)
	})
}

// GenerateToken computes the current OTP for an entry.
func (v *Vault) GenerateToken(id string) (vault.Token, error) {
	var tok vault.Token
	err := v.do(func() error {
		t, err := v.entries.GenerateToken(id, time.Now().UnixMilli())
		if err != nil {
			return err
		}
		tok = t
		return nil
	})
	return tok, err
}

// Search returns entries whose name or issuer contains query, case
// insensitively.
func (v *Vault) Search(query string) ([]vault.Entry, error) {
	var results []vault.Entry
	err := v.do(func() error {
		results = v.entries.Search(query)
		return nil
	})
	return results, err
}

// List returns every entry in the vault.
func (v *Vault) List() ([]vault.Entry, error) {
	var results []vault.Entry
	err := v.do(func() error {
		results = v.entries.List()
		return nil
	})
	return results, err
}

// Undo reverts the most recently applied local command, fanning the
// inverse out the same way any other local command would. Not part of the
// facade's originally enumerated public surface, but command.Log carries
// full undo/redo support and there is no reason to wall it off here.
func (v *Vault) Undo() (*command.Command, error) {
	var undone *command.Command
	err := v.do(func() error {
		c, err := v.log.Undo(v.newID(), time.Now().UnixMilli())
		if err != nil {
			return err
		}
		undone = c
		return nil
	})
	return undone, err
}

// Redo re-applies the most recently undone command.
func (v *Vault) Redo() (*command.Command, error) {
	var redone *command.Command
	err := v.do(func() error {
		c, err := v.log.Redo(v.newID(), time.Now().UnixMilli())
		if err != nil {
			return err
		}
		redone = c
		return nil
	})
	return redone, err
}
