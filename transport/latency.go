// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"sync/atomic"
	"time"
)

// latencySamples is the number of round trips averaged before the
// published latency changes.
const latencySamples = 30

// latencyWindow batches round-trip samples and publishes their mean
// every latencySamples samples. add is called only by the worker; the
// published value may be read from any goroutine.
type latencyWindow struct {
	count     int
	total     time.Duration
	published atomic.Int64
}

// add records one sample. When the batch completes it publishes the
// mean, starts a new batch, and returns the mean with true.
func (w *latencyWindow) add(sample time.Duration) (time.Duration, bool) {
	w.count++
	w.total += sample
	if w.count < latencySamples {
		return 0, false
	}
	mean := w.total / time.Duration(w.count)
	w.published.Store(mean.Milliseconds())
	w.count, w.total = 0, 0
	return mean, true
}

func (w *latencyWindow) milliseconds() int {
	return int(w.published.Load())
}
