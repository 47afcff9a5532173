// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package debugserver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scriptdbg_connections_active",
		Help: "Number of currently attached debug clients.",
	})

	metricRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scriptdbg_requests_total",
		Help: "Debug protocol requests processed, by protocol.",
	}, []string{"protocol"})

	metricBroadcastsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scriptdbg_broadcasts_total",
		Help: "Messages broadcast to all attached clients.",
	})

	metricFramingErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scriptdbg_framing_errors_total",
		Help: "Byte streams rejected by a framing strategy.",
	})

	metricPausesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scriptdbg_pauses_total",
		Help: "Times the interpreter entered the paused state.",
	})
)
