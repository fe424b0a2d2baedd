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

// PairingAttempts counts J-PAKE pairing attempts by role and outcome.
var PairingAttempts = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "pairing",
	Name:      "attempts_total",
	Help:      "Number of J-PAKE pairing attempts.",
}, []string{"role", "outcome"})

// PairingDuration tracks time from Init to KeyDerived.
var PairingDuration = promauto.With(Registry).NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "pairing",
	Name:      "duration_seconds",
	Help:      "Duration of a completed J-PAKE pairing exchange.",
	Buckets:   prometheus.DefBuckets,
})

// SchnorrProofFailures counts ZKP verification rejections, which should stay
// at zero outside of an active attack or OTP typo.
var SchnorrProofFailures = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "pairing",
	Name:      "schnorr_proof_failures_total",
	Help:      "Number of Schnorr zero-knowledge proof verification failures.",
})
