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

// TransportReconnects counts websocket reconnect attempts by outcome.
var TransportReconnects = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "transport",
	Name:      "reconnects_total",
	Help:      "Number of sync transport reconnect attempts.",
}, []string{"outcome"})

// MessagesSent counts outbound wire messages by type.
var MessagesSent = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "transport",
	Name:      "messages_sent_total",
	Help:      "Number of wire messages sent to the relay.",
}, []string{"type"})

// MessagesReceived counts inbound wire messages by type.
var MessagesReceived = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "transport",
	Name:      "messages_received_total",
	Help:      "Number of wire messages received from the relay.",
}, []string{"type"})

// ReplayAttacksDetected counts messages rejected as replays.
var ReplayAttacksDetected = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "transport",
	Name:      "replay_attacks_detected_total",
	Help:      "Number of inbound vault messages rejected as replays.",
})

// CommandsProcessed counts command-log entries processed by outcome.
var CommandsProcessed = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "command",
	Name:      "processed_total",
	Help:      "Number of commands applied to the command log.",
}, []string{"variant", "outcome"})

// ResilverRequests counts resilver broadcasts by outcome.
var ResilverRequests = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "resilver",
	Name:      "requests_total",
	Help:      "Number of resilver requests issued or honored.",
}, []string{"role", "outcome"})
