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

// Package vaulterr defines the stable, kind-tagged error values shared by
// every vaultsync package, so a caller can errors.As a single type
// regardless of which internal package raised the failure.
package vaulterr

import (
	"errors"
	"fmt"
)

// Kind is a stable error category name surfaced to hosts.
type Kind string

const (
	KindInitialization Kind = "Initialization"
	KindAuthentication Kind = "Authentication"
	KindCrypto         Kind = "Crypto"
	KindEntryNotFound  Kind = "EntryNotFound"
	KindInvalidCommand Kind = "InvalidCommand"
	KindExportImport   Kind = "ExportImport"
	KindSync           Kind = "Sync"
)

// SubKind further refines KindSync per spec.
type SubKind string

const (
	SubKindNone               SubKind = ""
	SubKindNoServerConnection SubKind = "NoServerConnection"
	SubKindAddDeviceConflict  SubKind = "AddDeviceFlowConflict"
	SubKindWrongState         SubKind = "WrongState"
	SubKindReplay             SubKind = "Sync"
)

// Error is the single error type returned across package boundaries.
type Error struct {
	Kind    Kind
	SubKind SubKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.SubKind != SubKindNone {
		return fmt.Sprintf("%s/%s: %s", e.Kind, e.SubKind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a kind-tagged error with no subkind.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// Newf builds a kind-tagged error with a formatted message.
func Newf(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

// NewSync builds a Sync-kind error with a subkind.
func NewSync(sub SubKind, message string, cause error) *Error {
	return &Error{Kind: KindSync, SubKind: sub, Message: message, Err: cause}
}

// Is reports whether err (or anything it wraps) has the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsSub reports whether err has the given Kind and SubKind.
func IsSub(err error, kind Kind, sub SubKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind && e.SubKind == sub
	}
	return false
}
