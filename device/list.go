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

package device

import "github.com/vaultsync/vaultsync/vaulterr"

// List is the synchronized set of devices participating in a vault's sync
// group, preserving insertion order.
type List struct {
	order   []string
	devices map[string]Device
}

// NewList returns an empty device list.
func NewList() *List {
	return &List{devices: make(map[string]Device)}
}

// Add registers a new device. Returns InvalidCommand if the id is already
// present.
func (l *List) Add(d Device) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if _, exists := l.devices[d.DeviceID]; exists {
		return vaulterr.New(vaulterr.KindInvalidCommand, "device already registered: "+d.DeviceID, nil)
	}
	l.devices[d.DeviceID] = d
	l.order = append(l.order, d.DeviceID)
	return nil
}

// Get returns the device with the given id.
func (l *List) Get(id string) (Device, error) {
	d, ok := l.devices[id]
	if !ok {
		return Device{}, vaulterr.New(vaulterr.KindEntryNotFound, "no device with id "+id, nil)
	}
	return d, nil
}

// Update replaces the device type/friendly name of an existing device.
func (l *List) Update(id, deviceType, friendlyName string) error {
	d, ok := l.devices[id]
	if !ok {
		return vaulterr.New(vaulterr.KindEntryNotFound, "no device with id "+id, nil)
	}
	updated := d
	updated.DeviceType = deviceType
	updated.FriendlyName = friendlyName
	if err := updated.Validate(); err != nil {
		return err
	}
	l.devices[id] = updated
	return nil
}

// Remove deletes a device from the list.
func (l *List) Remove(id string) error {
	if _, ok := l.devices[id]; !ok {
		return vaulterr.New(vaulterr.KindEntryNotFound, "no device with id "+id, nil)
	}
	delete(l.devices, id)
	for i, candidate := range l.order {
		if candidate == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return nil
}

// List returns every device in insertion order.
func (l *List) List() []Device {
	out := make([]Device, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.devices[id])
	}
	return out
}

// Peers returns every device except selfID, used for fanout.
func (l *List) Peers(selfID string) []Device {
	var out []Device
	for _, id := range l.order {
		if id != selfID {
			out = append(out, l.devices[id])
		}
	}
	return out
}

// Exists reports whether a device is already registered.
func (l *List) Exists(id string) bool {
	_, ok := l.devices[id]
	return ok
}
