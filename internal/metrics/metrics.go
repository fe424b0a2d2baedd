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

// Package metrics exposes Prometheus instrumentation for the vault's crypto,
// pairing, sync transport and resilver subsystems. Hosts that do not care
// about metrics can simply never call Handler(); collection always happens
// against a private registry, never the default global one.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "vaultsync"

// Registry is a private Prometheus registry so importing this package never
// pollutes prometheus.DefaultRegisterer for a host embedding the library.
var Registry = prometheus.NewRegistry()
