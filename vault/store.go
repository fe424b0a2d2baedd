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

package vault

import (
	"strings"

	"github.com/vaultsync/vaultsync/totp"
	"github.com/vaultsync/vaultsync/vaulterr"
)

// Token is a generated one-time password with its validity window.
type Token struct {
	OTP       string
	ValidFrom int64
	ValidTill int64
}

// Store holds EntryId -> Entry, preserving insertion order for
// deterministic iteration. It is not safe for concurrent use by itself;
// callers (the command log's single processing goroutine) serialize
// access.
type Store struct {
	order     []string
	entries   map[string]Entry
	generator totp.Generator
}

// NewStore returns an empty Store using the default RFC 6238 generator.
func NewStore() *Store {
	return &Store{
		entries:   make(map[string]Entry),
		generator: totp.NewGenerator(),
	}
}

// SetGenerator overrides the TOTP generator, e.g. with a fixed-clock fake
// in tests.
func (s *Store) SetGenerator(g totp.Generator) {
	s.generator = g
}

// Add inserts a new Entry. Returns InvalidCommand if the id already exists
// or the payload fails validation.
func (s *Store) Add(e Entry) error {
	if _, exists := s.entries[e.ID]; exists {
		return vaulterr.New(vaulterr.KindInvalidCommand, "entry id already exists: "+e.ID, nil)
	}
	if err := e.Payload.Validate(); err != nil {
		return err
	}

	s.entries[e.ID] = e.Clone()
	s.order = append(s.order, e.ID)
	return nil
}

// Get returns a copy of the entry with the given id.
func (s *Store) Get(id string) (Entry, error) {
	e, ok := s.entries[id]
	if !ok {
		return Entry{}, vaulterr.New(vaulterr.KindEntryNotFound, "no entry with id "+id, nil)
	}
	return e.Clone(), nil
}

// Update replaces the stored entry with e (id must already exist), setting
// UpdatedAt to updatedAtMs.
func (s *Store) Update(e Entry, updatedAtMs int64) (Entry, error) {
	prior, ok := s.entries[e.ID]
	if !ok {
		return Entry{}, vaulterr.New(vaulterr.KindEntryNotFound, "no entry with id "+e.ID, nil)
	}
	if err := e.Payload.Validate(); err != nil {
		return Entry{}, err
	}

	e.AddedAt = prior.AddedAt
	u := updatedAtMs
	e.UpdatedAt = &u

	s.entries[e.ID] = e.Clone()
	return prior.Clone(), nil
}

// Delete removes an entry and returns the removed copy (for undo).
func (s *Store) Delete(id string) (Entry, error) {
	e, ok := s.entries[id]
	if !ok {
		return Entry{}, vaulterr.New(vaulterr.KindEntryNotFound, "no entry with id "+id, nil)
	}

	delete(s.entries, id)
	for i, candidate := range s.order {
		if candidate == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return e.Clone(), nil
}

// List returns every entry in insertion order.
func (s *Store) List() []Entry {
	out := make([]Entry, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.entries[id].Clone())
	}
	return out
}

// Search returns entries whose name or issuer contains query, matched
// case-insensitively, in insertion order.
func (s *Store) Search(query string) []Entry {
	q := strings.ToLower(query)
	var out []Entry
	for _, id := range s.order {
		e := s.entries[id]
		if strings.Contains(strings.ToLower(e.Name), q) || strings.Contains(strings.ToLower(e.Issuer), q) {
			out = append(out, e.Clone())
		}
	}
	return out
}

// GenerateToken produces the current TOTP for the entry with the given id
// at the given time.
func (s *Store) GenerateToken(id string, nowMs int64) (Token, error) {
	e, ok := s.entries[id]
	if !ok {
		return Token{}, vaulterr.New(vaulterr.KindEntryNotFound, "no entry with id "+id, nil)
	}

	code, err := s.generator.Generate(totp.Params{
		Secret:    e.Payload.Secret,
		Period:    e.Payload.Period,
		Digits:    e.Payload.Digits,
		Algorithm: e.Payload.Algorithm,
	}, nowMs)
	if err != nil {
		return Token{}, err
	}

	return Token{OTP: code.OTP, ValidFrom: code.ValidFrom, ValidTill: code.ValidTill}, nil
}

// Len returns the number of entries currently held.
func (s *Store) Len() int {
	return len(s.order)
}
