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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// KeyDerivations counts Argon2id KEK derivations, labeled by purpose
// ("passphrase_unlock", "sync_key").
var KeyDerivations = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "crypto",
	Name:      "key_derivations_total",
	Help:      "Number of Argon2id key derivations performed.",
}, []string{"purpose"})

// KeyDerivationDuration tracks the wall time of Argon2id derivations, which
// is expected to sit near a second given the configured memory/time cost.
var KeyDerivationDuration = promauto.With(Registry).NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "crypto",
	Name:      "key_derivation_seconds",
	Help:      "Duration of Argon2id key derivation calls.",
	Buckets:   []float64{.1, .25, .5, 1, 2, 4, 8},
}, []string{"purpose"})

// SymmetricOps counts AES-256-CBC encrypt/decrypt operations.
var SymmetricOps = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "crypto",
	Name:      "symmetric_ops_total",
	Help:      "Number of AES-256-CBC operations performed.",
}, []string{"op", "result"})

// AsymmetricOps counts RSA-OAEP wrap/unwrap operations.
var AsymmetricOps = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "crypto",
	Name:      "asymmetric_ops_total",
	Help:      "Number of RSA-OAEP wrap/unwrap operations performed.",
}, []string{"op", "result"})
