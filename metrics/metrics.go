// go-venus
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-venus.
//
// go-venus is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-venus is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-venus; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

// Package metrics exposes engine counters to Prometheus. A nil *Engine is
// valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "venus"

// NewRegistry creates a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the HTTP handler serving reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Engine holds the protocol engine metrics.
type Engine struct {
	FramesSent     *prometheus.CounterVec // labels: variant
	FramesRouted   *prometheus.CounterVec // labels: route
	DecodeErrors   *prometheus.CounterVec // labels: kind
	AckWaits       *prometheus.CounterVec // labels: cmd, result
	CommandResends prometheus.Counter
	ChunkRetries   prometheus.Counter
	OTASessions    *prometheus.CounterVec // labels: result
	OTAState       prometheus.Gauge       // ordinal of the current OTA state
	OTABytes       prometheus.Counter
	OTADuration    prometheus.Histogram
}

// NewEngine registers and returns the engine metrics.
func NewEngine(reg prometheus.Registerer) *Engine {
	m := &Engine{
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Frames written to the transport.",
		}, []string{"variant"}),
		FramesRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_routed_total",
			Help:      "Inbound notifications by routing outcome.",
		}, []string{"route"}),
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Inbound frames rejected by the codec.",
		}, []string{"kind"}),
		AckWaits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ack_waits_total",
			Help:      "Completed ack waits by command and result.",
		}, []string{"cmd", "result"}),
		CommandResends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_resends_total",
			Help:      "Generic commands resent after going unanswered.",
		}),
		ChunkRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ota_chunk_retries_total",
			Help:      "Firmware chunks retried after a failed attempt.",
		}),
		OTASessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ota_sessions_total",
			Help:      "Finished firmware update sessions.",
		}, []string{"result"}),
		OTAState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ota_state",
			Help:      "Current OTA state ordinal (0 = idle).",
		}),
		OTABytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ota_bytes_total",
			Help:      "Firmware bytes acknowledged by the device.",
		}),
		OTADuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ota_session_seconds",
			Help:      "Firmware update session duration.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
	reg.MustRegister(
		m.FramesSent, m.FramesRouted, m.DecodeErrors, m.AckWaits, m.CommandResends,
		m.ChunkRetries, m.OTASessions, m.OTAState, m.OTABytes, m.OTADuration,
	)
	return m
}

// FrameSent counts an outbound frame.
func (m *Engine) FrameSent(variant string) {
	if m == nil {
		return
	}
	m.FramesSent.WithLabelValues(variant).Inc()
}

// FrameRouted counts an inbound notification by where it went.
func (m *Engine) FrameRouted(route string) {
	if m == nil {
		return
	}
	m.FramesRouted.WithLabelValues(route).Inc()
}

// DecodeError counts a rejected inbound frame.
func (m *Engine) DecodeError(kind string) {
	if m == nil {
		return
	}
	m.DecodeErrors.WithLabelValues(kind).Inc()
}

// AckWait counts a finished ack wait.
func (m *Engine) AckWait(cmd, result string) {
	if m == nil {
		return
	}
	m.AckWaits.WithLabelValues(cmd, result).Inc()
}

// CommandResent counts a generic command resend.
func (m *Engine) CommandResent() {
	if m == nil {
		return
	}
	m.CommandResends.Inc()
}

// ChunkRetried counts a chunk retry.
func (m *Engine) ChunkRetried() {
	if m == nil {
		return
	}
	m.ChunkRetries.Inc()
}

// SessionFinished records a finished OTA session.
func (m *Engine) SessionFinished(result string, seconds float64) {
	if m == nil {
		return
	}
	m.OTASessions.WithLabelValues(result).Inc()
	m.OTADuration.Observe(seconds)
}

// SetState records the current OTA state ordinal.
func (m *Engine) SetState(ordinal int) {
	if m == nil {
		return
	}
	m.OTAState.Set(float64(ordinal))
}

// AddBytes adds acknowledged firmware bytes.
func (m *Engine) AddBytes(n int) {
	if m == nil {
		return
	}
	m.OTABytes.Add(float64(n))
}
