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

// Package dispatch decides whether to accept, reject, or act on each
// decoded envelope and routes the outcome back to the connection's writer.
// One Dispatcher is created per connection; it owns that connection's
// in-flight table exclusively.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/corvid-ide/corvid/handler"
	"github.com/corvid-ide/corvid/internal/xgo"
	"github.com/corvid-ide/corvid/metrics"
	"github.com/corvid-ide/corvid/status"
	"github.com/corvid-ide/corvid/wire"
)

// Dispatcher admits, rejects, or cancels requests for a single connection.
type Dispatcher struct {
	handler     handler.Handler
	counters    *metrics.Counters
	maxInFlight int
	out         chan<- wire.Envelope

	mu       sync.Mutex
	inflight map[uint64]context.CancelFunc
	wg       sync.WaitGroup
}

// New builds a Dispatcher that calls h for admitted work, tracks outcomes in
// counters, rejects beyond maxInFlight concurrent admissions, and writes
// every response envelope to out.
func New(h handler.Handler, counters *metrics.Counters, maxInFlight int, out chan<- wire.Envelope) *Dispatcher {
	return &Dispatcher{
		handler:     h,
		counters:    counters,
		maxInFlight: maxInFlight,
		out:         out,
		inflight:    make(map[uint64]context.CancelFunc),
	}
}

// Dispatch routes one decoded envelope: the Cancel and GetStats fast-paths
// are handled inline; everything else goes through admission.
func (d *Dispatcher) Dispatch(env wire.Envelope) {
	switch p := env.Payload.(type) {
	case wire.Cancel:
		d.handleCancel(env.RequestID, p.TargetID)
	case wire.GetStats:
		d.handleGetStats(env.RequestID)
	default:
		d.admit(env)
	}
}

// CancelAll signals every in-flight worker on this connection to stop. It is
// called when the connection is torn down, since nothing will read their
// responses anymore.
func (d *Dispatcher) CancelAll() {
	d.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(d.inflight))
	for _, c := range d.inflight {
		cancels = append(cancels, c)
	}
	d.mu.Unlock()
	for _, c := range cancels {
		c()
	}
}

// Wait blocks until every admitted worker has finished, or until deadline
// elapses first. It is used to give in-flight work a grace period during
// graceful shutdown.
func (d *Dispatcher) Wait(deadline time.Duration) {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(deadline):
	}
}

func (d *Dispatcher) handleCancel(requestID, targetID uint64) {
	d.mu.Lock()
	cancel, ok := d.inflight[targetID]
	d.mu.Unlock()
	if ok {
		cancel()
		d.counters.Cancels.Add(1)
	}
	// Acknowledge the Cancel itself unconditionally; targeting an unknown id
	// is a no-op, not an error.
	d.enqueue(wire.New(requestID, 0, wire.Pong{}))
}

func (d *Dispatcher) handleGetStats(requestID uint64) {
	stats := d.handler.GetStats(context.Background())
	d.enqueue(wire.New(requestID, 0, stats))
}

func (d *Dispatcher) admit(env wire.Envelope) {
	now := uint64(time.Now().UnixMilli())
	if env.DeadlineMillis != 0 && now >= env.DeadlineMillis {
		d.counters.Deadlines.Add(1)
		d.respondError(env.RequestID, status.Deadline, "deadline already passed at admission")
		return
	}

	d.mu.Lock()
	if len(d.inflight) >= d.maxInFlight {
		d.mu.Unlock()
		d.counters.Backpressure.Add(1)
		d.respondError(env.RequestID, status.Backpressure, "max_in_flight reached")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.inflight[env.RequestID] = cancel
	d.mu.Unlock()
	d.counters.InFlight.Add(1)

	var deadlineCh <-chan time.Time
	var timer *time.Timer
	if env.DeadlineMillis != 0 {
		timer = time.NewTimer(time.Until(time.UnixMilli(int64(env.DeadlineMillis))))
		deadlineCh = timer.C
	}

	d.wg.Add(1)
	xgo.Go(func() {
		defer d.wg.Done()
		d.runWorker(ctx, cancel, env, deadlineCh, timer)
	})
}

func (d *Dispatcher) runWorker(ctx context.Context, cancel context.CancelFunc, env wire.Envelope, deadlineCh <-chan time.Time, timer *time.Timer) {
	resultCh := make(chan wire.Payload, 1)
	go func() {
		resultCh <- d.invoke(ctx, env.Payload)
	}()

	var outcome wire.Payload
	select {
	case outcome = <-resultCh:
	case <-deadlineCh:
		// The deadline is authoritative regardless of whether the handler
		// ever notices ctx: resolve now and let the worker's eventual result
		// be discarded when resultCh is never read again.
		cancel()
		d.counters.Deadlines.Add(1)
		outcome = wire.Error{Kind: status.Deadline, Message: "deadline exceeded"}
	}
	if timer != nil {
		timer.Stop()
	}

	d.mu.Lock()
	delete(d.inflight, env.RequestID)
	d.mu.Unlock()
	d.counters.InFlight.Add(-1)
	cancel()

	d.enqueue(wire.New(env.RequestID, 0, outcome))
}

func (d *Dispatcher) invoke(ctx context.Context, p wire.Payload) (result wire.Payload) {
	defer func() {
		if r := recover(); r != nil {
			result = wire.Error{Kind: status.Internal, Message: fmt.Sprintf("panic: %v", r)}
		}
	}()

	switch req := p.(type) {
	case wire.Ping:
		if err := d.handler.Ping(ctx); err != nil {
			return errPayload(err)
		}
		return wire.Pong{}
	case wire.OpenBuffer:
		id, err := d.handler.OpenBuffer(ctx, req.Path)
		if err != nil {
			return errPayload(err)
		}
		return wire.BufferOpened{ID: id}
	case wire.SaveBuffer:
		if err := d.handler.SaveBuffer(ctx, req.ID, req.Contents); err != nil {
			return errPayload(err)
		}
		return wire.BufferSaved{}
	case wire.CloseBuffer:
		if err := d.handler.CloseBuffer(ctx, req.ID); err != nil {
			return errPayload(err)
		}
		return wire.BufferClosed{}
	case wire.Search:
		items, truncated, err := d.handler.Search(ctx, req.Root, req.Pattern, req.MaxResults)
		if err != nil {
			return errPayload(err)
		}
		return wire.SearchResults{Items: items, Truncated: truncated}
	default:
		return wire.Error{Kind: status.Internal, Message: fmt.Sprintf("unsupported request %T", p)}
	}
}

func errPayload(err error) wire.Payload {
	se := status.Of(err)
	return wire.Error{Kind: se.Kind, Message: se.Message}
}

func (d *Dispatcher) respondError(requestID uint64, kind status.Kind, msg string) {
	d.enqueue(wire.New(requestID, 0, wire.Error{Kind: kind, Message: msg}))
}

func (d *Dispatcher) enqueue(env wire.Envelope) {
	d.out <- env
}
