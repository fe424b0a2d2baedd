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
	"container/heap"
	"sync"
	"time"

	"github.com/vaultsync/vaultsync/device"
	"github.com/vaultsync/vaultsync/internal/metrics"
	"github.com/vaultsync/vaultsync/vault"
	"github.com/vaultsync/vaultsync/vaulterr"
)

// dedupRetention bounds how long a processed remote command id is kept for
// replay rejection before it is garbage collected. Commands arrive close to
// when they are generated (the relay does not queue indefinitely), so an
// hour comfortably covers reconnect/resilver replays without the dedup set
// growing without bound across a long-lived process.
const dedupRetention = time.Hour

// remoteItem is one entry in the remote priority queue, ordered so the
// oldest (Timestamp, ID) pair pops first; this makes apply order
// deterministic across devices regardless of arrival order, which is what
// lets independently-replayed logs converge to the same state.
type remoteItem struct {
	cmd   *Command
	index int
}

type remoteQueue []*remoteItem

func (q remoteQueue) Len() int { return len(q) }

func (q remoteQueue) Less(i, j int) bool {
	if q[i].cmd.Timestamp != q[j].cmd.Timestamp {
		return q[i].cmd.Timestamp < q[j].cmd.Timestamp
	}
	return q[i].cmd.ID < q[j].cmd.ID
}

func (q remoteQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *remoteQueue) Push(x any) {
	item := x.(*remoteItem)
	item.index = len(*q)
	*q = append(*q, item)
}

func (q *remoteQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*q = old[:n-1]
	return item
}

// FanoutFunc is invoked with every locally-applied command so the caller
// (the pairing/transport layer) can forward it to sync peers.
type FanoutFunc func(*Command)

// Log is the replicated, undo-capable command log backing a vault. It
// serializes all mutation through a single mutex rather than exposing the
// store/device list directly, since interleaving a local Execute with a
// remote Execute mid-undo would let the undo stack reference state that no
// longer exists.
type Log struct {
	mu sync.Mutex

	state *State

	selfDeviceID string
	fanout       FanoutFunc

	undoStack []undoEntry
	redoStack []undoEntry

	processed   map[string]time.Time
	remote      remoteQueue
	lastGC      time.Time
}

type undoEntry struct {
	executed *Command
	result   Result
}

// NewLog constructs an empty Log over the given store and device list.
func NewLog(entries *vault.Store, devices *device.List, selfDeviceID string) *Log {
	return &Log{
		state:        &State{Entries: entries, Devices: devices},
		selfDeviceID: selfDeviceID,
		processed:    make(map[string]time.Time),
	}
}

// SetFanoutHandler registers the callback invoked for every locally applied
// command, used to push it out to sync peers.
func (l *Log) SetFanoutHandler(f FanoutFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fanout = f
}

// ApplyLocal validates, executes, and records a command originated on this
// device, pushing it onto the undo stack and handing it to the fanout
// callback if one is registered. A successful local command clears the
// redo stack, matching ordinary editor undo/redo semantics: redoing after a
// fresh edit would silently resurrect a change the user never asked for.
func (l *Log) ApplyLocal(c *Command) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	c.Origin = OriginLocal
	if c.SchemaVersion == 0 {
		c.SchemaVersion = SchemaVersion
	}

	if err := c.Validate(); err != nil {
		metrics.CommandsProcessed.WithLabelValues(string(c.Kind), "invalid").Inc()
		return err
	}

	result, err := c.Execute(l.state)
	if err != nil {
		metrics.CommandsProcessed.WithLabelValues(string(c.Kind), "error").Inc()
		return err
	}

	l.undoStack = append(l.undoStack, undoEntry{executed: c, result: result})
	l.redoStack = nil
	l.markProcessed(c.ID)
	metrics.CommandsProcessed.WithLabelValues(string(c.Kind), "applied").Inc()

	if l.fanout != nil {
		l.fanout(c)
	}
	return nil
}

// EnqueueRemote admits a command received from a sync peer into the remote
// priority queue, rejecting ids already seen so replayed or duplicated
// relay deliveries cannot be applied twice.
func (l *Log) EnqueueRemote(c *Command) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.gcProcessed()

	if _, seen := l.processed[c.ID]; seen {
		metrics.CommandsProcessed.WithLabelValues(string(c.Kind), "duplicate").Inc()
		return vaulterr.New(vaulterr.KindInvalidCommand, "command already processed: "+c.ID, nil)
	}
	c.Origin = OriginRemote
	heap.Push(&l.remote, &remoteItem{cmd: c})
	return nil
}

// DrainRemote applies every currently-queued remote command in
// (Timestamp, ID) order and returns the ones successfully applied. Remote
// commands are never undoable and never touch the undo/redo stacks: only
// the device that originated a change owns its undo history.
func (l *Log) DrainRemote() []*Command {
	l.mu.Lock()
	defer l.mu.Unlock()

	var applied []*Command
	for l.remote.Len() > 0 {
		item := heap.Pop(&l.remote).(*remoteItem)
		c := item.cmd

		if err := c.Validate(); err != nil {
			metrics.CommandsProcessed.WithLabelValues(string(c.Kind), "invalid").Inc()
			continue
		}
		if _, err := c.Execute(l.state); err != nil {
			metrics.CommandsProcessed.WithLabelValues(string(c.Kind), "error").Inc()
			continue
		}

		l.markProcessed(c.ID)
		metrics.CommandsProcessed.WithLabelValues(string(c.Kind), "applied").Inc()
		applied = append(applied, c)
	}
	return applied
}

// Undo reverts the most recently applied local command, refanning out its
// inverse so peers converge to the same state. AddSyncDevice and
// ChangeDeviceInfo commands are not undoable; Undo returns InvalidCommand
// and leaves the stack untouched in that case.
func (l *Log) Undo(newID string, nowMs int64) (*Command, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.undoStack) == 0 {
		return nil, vaulterr.New(vaulterr.KindInvalidCommand, "nothing to undo", nil)
	}
	top := l.undoStack[len(l.undoStack)-1]

	inverse, err := CreateUndoCommand(top.executed, top.result, newID, nowMs)
	if err != nil {
		return nil, err
	}

	result, err := inverse.Execute(l.state)
	if err != nil {
		return nil, err
	}

	l.undoStack = l.undoStack[:len(l.undoStack)-1]
	l.redoStack = append(l.redoStack, undoEntry{executed: top.executed, result: result})
	l.markProcessed(inverse.ID)

	if l.fanout != nil {
		l.fanout(inverse)
	}
	return inverse, nil
}

// Redo re-applies the most recently undone command.
func (l *Log) Redo(newID string, nowMs int64) (*Command, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.redoStack) == 0 {
		return nil, vaulterr.New(vaulterr.KindInvalidCommand, "nothing to redo", nil)
	}
	top := l.redoStack[len(l.redoStack)-1]

	redone := *top.executed
	redone.ID = newID
	redone.Timestamp = nowMs

	result, err := redone.Execute(l.state)
	if err != nil {
		return nil, err
	}

	l.redoStack = l.redoStack[:len(l.redoStack)-1]
	l.undoStack = append(l.undoStack, undoEntry{executed: &redone, result: result})
	l.markProcessed(redone.ID)

	if l.fanout != nil {
		l.fanout(&redone)
	}
	return &redone, nil
}

func (l *Log) markProcessed(id string) {
	l.processed[id] = time.Now()
}

func (l *Log) gcProcessed() {
	now := time.Now()
	if now.Sub(l.lastGC) < dedupRetention {
		return
	}
	l.lastGC = now
	for id, seenAt := range l.processed {
		if now.Sub(seenAt) > dedupRetention {
			delete(l.processed, id)
		}
	}
}
