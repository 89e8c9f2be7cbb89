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

package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestSnapshotReflectsCounters(t *testing.T) {
	c := New()
	c.Cancels.Add(1)
	c.Deadlines.Add(2)
	c.Backpressure.Add(3)
	c.InFlight.Add(4)

	cancels, deadlines, backpressure, inFlight := c.Snapshot()
	assert.Equal(t, uint64(1), cancels)
	assert.Equal(t, uint64(2), deadlines)
	assert.Equal(t, uint64(3), backpressure)
	assert.Equal(t, uint64(4), inFlight)
}

func TestSnapshotHandlesInFlightDecrementingBelowPriorPeak(t *testing.T) {
	c := New()
	c.InFlight.Add(5)
	c.InFlight.Add(-3)

	_, _, _, inFlight := c.Snapshot()
	assert.Equal(t, uint64(2), inFlight)
}

func TestRegisterObserversSucceedsAgainstNoopMeter(t *testing.T) {
	c := New()
	meter := noop.NewMeterProvider().Meter("corvid_test")
	require.NoError(t, RegisterObservers(meter, c))
}
