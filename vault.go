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

// Package vaultsync wires crypto.Provider, persistence.Store, vault.Store,
// command.Log, pairing.Coordinator, resilver.Engine and transport.Sync
// together behind a single Vault handle: the library facade an embedding
// host (CLI, mobile shell, desktop app) actually talks to.
package vaultsync

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vaultsync/vaultsync/command"
	"github.com/vaultsync/vaultsync/crypto"
	"github.com/vaultsync/vaultsync/device"
	"github.com/vaultsync/vaultsync/internal/logger"
	"github.com/vaultsync/vaultsync/pairing"
	"github.com/vaultsync/vaultsync/persistence"
	"github.com/vaultsync/vaultsync/resilver"
	"github.com/vaultsync/vaultsync/transport"
	"github.com/vaultsync/vaultsync/vault"
	"github.com/vaultsync/vaultsync/vaulterr"
)

// Config is the host-supplied identity and relay configuration. DeviceID
// and FriendlyName seed a brand new vault; once one exists on disk its own
// persisted identity wins, since that's the identity peers already know.
type Config struct {
	DeviceID     string
	DeviceType   string
	FriendlyName string

	ServerURL          string
	AllowInsecureRelay bool
	ReconnectInterval  time.Duration
}

// SaveFunc persists a sealed LockedRepresentation, e.g. to disk or to
// platform-native secure storage.
type SaveFunc = persistence.SaveFunc

// Vault is the unlocked, running instance of a single device's vault. All
// mutating access runs through a single goroutine (see run/do/enqueue in
// this file), so a Vault is safe for concurrent use by multiple callers
// even though none of the packages it wires together are on their own.
type Vault struct {
	cfg      Config
	provider crypto.Provider
	load     func() (persistence.LockedRepresentation, bool, error)
	save     SaveFunc

	keys     *crypto.KeyMaterial
	entries  *vault.Store
	devices  *device.List
	log      *command.Log
	store    *persistence.Store
	sync     transport.Sync
	pairer   *pairing.Coordinator
	resilv   *resilver.Engine
	pending  []persistence.PendingOutboundCommand

	events chan Event

	// chanMu guards cmdCh/closeCh/doneCh, which Unlock/Lock replace
	// wholesale; everything else a Vault owns is only ever touched from
	// the single command goroutine and needs no lock.
	chanMu  sync.Mutex
	cmdCh   chan func()
	closeCh chan struct{}
	doneCh  chan struct{}
}

// New constructs a locked Vault around a host-supplied load/save pair.
// load returns the currently stored LockedRepresentation (if any) and
// whether one exists; save persists a freshly sealed one. Neither is
// called until Unlock.
func New(cfg Config, provider crypto.Provider, load func() (persistence.LockedRepresentation, bool, error), save SaveFunc) *Vault {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 5 * time.Second
	}
	return &Vault{
		cfg:      cfg,
		provider: provider,
		load:     load,
		save:     save,
		events:   make(chan Event, eventBufferSize),
	}
}

// eventBufferSize bounds the Events() channel. A slow or absent consumer
// must never stall the command goroutine, so when the buffer is full emit
// drops the new event (logging a warning) rather than blocking; a few hundred events
// comfortably covers a burst of local mutations plus inbound sync traffic
// between consumer reads.
const eventBufferSize = 256

// Unlock derives the vault's keys from password, loading existing state
// if present or minting a fresh vault otherwise, then starts the command
// goroutine and (if a relay URL is configured) the sync transport.
func (v *Vault) Unlock(password string) error {
	lr, exists, err := v.load()
	if err != nil {
		return vaulterr.New(vaulterr.KindInitialization, "failed to read locked representation", err)
	}

	var state persistence.VaultState
	if exists {
		keys, loaded, err := persistence.Load(v.provider, lr, password)
		if err != nil {
			return err
		}
		v.keys = keys
		state = loaded
	} else {
		keys, err := v.provider.CreateKeys(password)
		if err != nil {
			return err
		}
		v.keys = keys
		state = persistence.VaultState{
			DeviceID:     v.cfg.DeviceID,
			FriendlyName: v.cfg.FriendlyName,
			Sync:         persistence.SyncSection{ServerURL: v.cfg.ServerURL},
		}
	}

	v.cfg.DeviceID = state.DeviceID
	v.cfg.FriendlyName = state.FriendlyName
	if state.Sync.ServerURL != "" {
		v.cfg.ServerURL = state.Sync.ServerURL
	}
	v.pending = state.Sync.Pending

	v.entries = vault.NewStore()
	for _, e := range state.Vault {
		if err := v.entries.Add(e); err != nil {
			return vaulterr.New(vaulterr.KindInitialization, "corrupt vault entry on load", err)
		}
	}

	v.devices = device.NewList()
	for _, d := range state.Sync.Devices {
		if d.DeviceID == v.cfg.DeviceID {
			continue
		}
		if err := v.devices.Add(d); err != nil {
			return vaulterr.New(vaulterr.KindInitialization, "corrupt sync device on load", err)
		}
	}

	v.log = command.NewLog(v.entries, v.devices, v.cfg.DeviceID)
	v.log.SetFanoutHandler(v.fanout)
	v.store = persistence.NewStore(v.provider, v.keys, v, v.save)

	if !exists {
		// A brand new vault's identity and keys must be durable immediately,
		// not only after the first mutation: otherwise a restart before any
		// AddEntry/ChangePassphrase call would find nothing saved and mint
		// an entirely new, unrelated vault on top of it.
		if err := v.store.Save(); err != nil {
			return err
		}
	}

	v.chanMu.Lock()
	v.closeCh = make(chan struct{})
	v.doneCh = make(chan struct{})
	v.cmdCh = make(chan func(), 64)
	cmdCh, closeCh, doneCh := v.cmdCh, v.closeCh, v.doneCh
	v.chanMu.Unlock()
	go v.run(cmdCh, closeCh, doneCh)

	if v.cfg.ServerURL != "" {
		var opts []transport.Option
		opts = append(opts, transport.WithReconnectInterval(v.cfg.ReconnectInterval))
		if v.cfg.AllowInsecureRelay {
			opts = append(opts, transport.WithAllowInsecure())
		}
		wsConn, err := transport.NewWebsocketTransport(v.cfg.ServerURL, v.cfg.DeviceID, v.handleInbound, v.onTransportEvent, opts...)
		if err != nil {
			return err
		}
		v.sync = wsConn
		v.pairer = pairing.New(v.provider, v.sync, v, v.onPairingEvent)
		v.resilv = resilver.New(v.provider, v.sync, v)
		wsConn.Connect()
	} else {
		v.sync = noopSync{}
		v.pairer = pairing.New(v.provider, v.sync, v, v.onPairingEvent)
		v.resilv = resilver.New(v.provider, v.sync, v)
	}

	v.emit(EventLoadedFromLockedRepresentation, nil)
	return nil
}

// Lock stops the command goroutine, tears down the sync transport and
// discards every in-memory secret. The sealed state was already kept
// current on disk by Save, so Lock itself performs no I/O.
func (v *Vault) Lock() error {
	v.chanMu.Lock()
	closeCh, doneCh := v.closeCh, v.doneCh
	v.chanMu.Unlock()
	if closeCh == nil {
		return nil
	}
	close(closeCh)
	<-doneCh

	if v.sync != nil {
		_ = v.sync.Close()
	}

	v.keys = nil
	v.entries = nil
	v.devices = nil
	v.log = nil
	v.store = nil
	v.sync = nil
	v.pairer = nil
	v.resilv = nil
	v.pending = nil

	v.chanMu.Lock()
	v.cmdCh = nil
	v.closeCh = nil
	v.doneCh = nil
	v.chanMu.Unlock()
	return nil
}

// run is the single goroutine every mutating operation funnels through,
// serializing access to entries/devices/log/store the same way
// vault.Store's own doc comment assumes a single caller.
func (v *Vault) run(cmdCh chan func(), closeCh, doneCh chan struct{}) {
	defer close(doneCh)
	for {
		select {
		case fn := <-cmdCh:
			fn()
		case <-closeCh:
			return
		}
	}
}

// do enqueues fn on the command goroutine and blocks for its result. Used
// by every public mutating/reading method so callers never touch vault
// state directly from their own goroutine.
func (v *Vault) do(fn func() error) error {
	v.chanMu.Lock()
	cmdCh, closeCh := v.cmdCh, v.closeCh
	v.chanMu.Unlock()
	if cmdCh == nil {
		return vaulterr.New(vaulterr.KindInitialization, "vault is locked", nil)
	}

	resCh := make(chan error, 1)
	wrapped := func() { resCh <- fn() }

	select {
	case cmdCh <- wrapped:
	case <-closeCh:
		return vaulterr.New(vaulterr.KindInitialization, "vault is locked", nil)
	}

	select {
	case err := <-resCh:
		return err
	case <-closeCh:
		return vaulterr.New(vaulterr.KindInitialization, "vault is locked", nil)
	}
}

// enqueue schedules fn on the command goroutine without waiting for it,
// used by transport and pairing/resilver callbacks that fire from other
// goroutines and have no result a caller is blocked on.
func (v *Vault) enqueue(fn func()) {
	v.chanMu.Lock()
	cmdCh, closeCh := v.cmdCh, v.closeCh
	v.chanMu.Unlock()
	if cmdCh == nil {
		return
	}
	select {
	case cmdCh <- fn:
	case <-closeCh:
	}
}

func (v *Vault) handleInbound(msgType transport.Type, data []byte) {
	v.enqueue(func() { v.dispatchInbound(msgType, data) })
}

// Connected reports whether the sync transport currently has a live
// connection to the relay. Always false for a vault opened without a
// relay URL, and for a locked vault.
func (v *Vault) Connected() bool {
	var connected bool
	_ = v.do(func() error {
		if v.sync != nil {
			connected = v.sync.Connected()
		}
		return nil
	})
	return connected
}

func (v *Vault) logWarn(msg string, err error) {
	logger.Warn(msg, logger.Error(err))
}

// newID mints an identifier for a new entry, device or command.
func (v *Vault) newID() string {
	return uuid.NewString()
}
