// Copyright 2022 The codesjoy Authors.
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

// Package metrics holds the dispatcher's process-wide counters: cancels,
// deadline rejections, backpressure rejections, and the current in-flight
// count. They are the only legitimate global mutable state at this layer,
// and are exposed both for GetStats and, optionally, as OpenTelemetry
// observable instruments.
package metrics

import (
	"context"
	"sync/atomic"

	otelmetric "go.opentelemetry.io/otel/metric"
)

// Counters are atomic so the dispatcher, GetStats fast-path, and any
// OpenTelemetry callback can read/update them without additional locking.
type Counters struct {
	Cancels      atomic.Uint64
	Deadlines    atomic.Uint64
	Backpressure atomic.Uint64
	InFlight     atomic.Int64
}

// New allocates a zeroed Counters.
func New() *Counters {
	return &Counters{}
}

// Snapshot reads each counter atomically, returning the fields GetStats
// reports. The four loads are independent, so the result is not a single
// consistent snapshot across fields.
func (c *Counters) Snapshot() (cancels, deadlines, backpressure, inFlight uint64) {
	return c.Cancels.Load(), c.Deadlines.Load(), c.Backpressure.Load(), uint64(c.InFlight.Load())
}

// RegisterObservers publishes Counters as OpenTelemetry observable counters
// and an observable gauge on meter, so the daemon's counters show up
// wherever the configured MeterProvider exports to. Registration failures
// are non-fatal to the caller: the returned error is informational since
// GetStats still works from the atomics directly.
func RegisterObservers(meter otelmetric.Meter, c *Counters) error {
	cancels, err := meter.Int64ObservableCounter("corvid.dispatch.cancels",
		otelmetric.WithDescription("requests whose target was cancelled"))
	if err != nil {
		return err
	}
	deadlines, err := meter.Int64ObservableCounter("corvid.dispatch.deadline_rejections",
		otelmetric.WithDescription("requests resolved as Deadline, at admission or while running"))
	if err != nil {
		return err
	}
	backpressure, err := meter.Int64ObservableCounter("corvid.dispatch.backpressure_rejections",
		otelmetric.WithDescription("requests rejected because max_in_flight was reached"))
	if err != nil {
		return err
	}
	inFlight, err := meter.Int64ObservableGauge("corvid.dispatch.in_flight",
		otelmetric.WithDescription("requests currently admitted and not yet resolved"))
	if err != nil {
		return err
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o otelmetric.Observer) error {
		cv, dv, bv, iv := c.Snapshot()
		o.ObserveInt64(cancels, int64(cv))
		o.ObserveInt64(deadlines, int64(dv))
		o.ObserveInt64(backpressure, int64(bv))
		o.ObserveInt64(inFlight, int64(iv))
		return nil
	}, cancels, deadlines, backpressure, inFlight)
	return err
}
