// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codeassist",
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Total number of inference client operations",
		},
		[]string{"op", "mode", "outcome"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "codeassist",
			Subsystem: "client",
			Name:      "request_duration_seconds",
			Help:      "Duration of inference client operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op", "mode"},
	)

	streamChunksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codeassist",
			Subsystem: "client",
			Name:      "stream_chunks_total",
			Help:      "Total number of chunks delivered to stream callbacks",
		},
		[]string{"mode"},
	)

	streamLinesSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codeassist",
			Subsystem: "client",
			Name:      "stream_lines_skipped_total",
			Help:      "Total number of unparseable stream lines that were skipped",
		},
		[]string{"mode"},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal, requestDuration, streamChunksTotal, streamLinesSkippedTotal)
}

// observe records one finished operation.
func observe(op string, mode BackendMode, start time.Time, err error) {
	requestsTotal.WithLabelValues(op, mode.String(), outcome(err)).Inc()
	requestDuration.WithLabelValues(op, mode.String()).Observe(time.Since(start).Seconds())
}

// observeStream records decoder counters for one stream.
func observeStream(mode BackendMode, chunks, skipped int) {
	streamChunksTotal.WithLabelValues(mode.String()).Add(float64(chunks))
	streamLinesSkippedTotal.WithLabelValues(mode.String()).Add(float64(skipped))
}
