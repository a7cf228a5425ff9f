// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserve_CountsByOutcome(t *testing.T) {
	okBefore := testutil.ToFloat64(requestsTotal.WithLabelValues("metrics_test", "local", "ok"))
	errBefore := testutil.ToFloat64(requestsTotal.WithLabelValues("metrics_test", "local", "malformed_response"))

	observe("metrics_test", ModeLocal, time.Now(), nil)
	observe("metrics_test", ModeLocal, time.Now(), &ClientError{Type: ErrTypeMalformedResponse})
	observe("metrics_test", ModeLocal, time.Now(), &ClientError{Type: ErrTypeMalformedResponse})

	assert.Equal(t, okBefore+1, testutil.ToFloat64(requestsTotal.WithLabelValues("metrics_test", "local", "ok")))
	assert.Equal(t, errBefore+2, testutil.ToFloat64(requestsTotal.WithLabelValues("metrics_test", "local", "malformed_response")))
}

func TestObserveStream(t *testing.T) {
	chunks := testutil.ToFloat64(streamChunksTotal.WithLabelValues("third_party"))
	skipped := testutil.ToFloat64(streamLinesSkippedTotal.WithLabelValues("third_party"))

	observeStream(ModeThirdParty, 3, 1)

	assert.Equal(t, chunks+3, testutil.ToFloat64(streamChunksTotal.WithLabelValues("third_party")))
	assert.Equal(t, skipped+1, testutil.ToFloat64(streamLinesSkippedTotal.WithLabelValues("third_party")))
}
