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

// Package daemon accepts client connections and, per connection, runs a
// reader task, a writer task, and the dispatcher that joins them.
package daemon

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corvid-ide/corvid/dispatch"
	"github.com/corvid-ide/corvid/frame"
	"github.com/corvid-ide/corvid/handler"
	"github.com/corvid-ide/corvid/internal/xgo"
	"github.com/corvid-ide/corvid/metrics"
	"github.com/corvid-ide/corvid/wire"
)

// outboundQueueDepth is the default bound on a connection's writer queue.
const outboundQueueDepth = 64

// shutdownGrace bounds how long a connection's in-flight workers get to
// finish after the connection starts tearing down.
const shutdownGrace = 2 * time.Second

// Server accepts connections on a single endpoint and dispatches each
// frame it reads to a per-connection Dispatcher.
type Server struct {
	handler       handler.Handler
	counters      *metrics.Counters
	maxFrameBytes uint32
	maxInFlight   atomic.Int64

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closing  atomic.Bool
}

// New builds a Server. maxFrameBytes and maxInFlight are applied to every
// connection this Server accepts.
func New(h handler.Handler, counters *metrics.Counters, maxFrameBytes uint32, maxInFlight int) *Server {
	s := &Server{
		handler:       h,
		counters:      counters,
		maxFrameBytes: maxFrameBytes,
		conns:         make(map[net.Conn]struct{}),
	}
	s.maxInFlight.Store(int64(maxInFlight))
	return s
}

// SetMaxInFlight updates the admission cap applied to connections accepted
// from this point on; connections already running keep the cap they started with.
func (s *Server) SetMaxInFlight(n int) {
	s.maxInFlight.Store(int64(n))
}

// ListenAndServe binds addr, closes ready (if non-nil) once the socket is
// accepting, and serves connections until ctx is cancelled. On ctx
// cancellation it closes the listener and returns nil without waiting for
// connections already accepted. Those connections are not closed by it: each
// is served until its peer disconnects, and only then are its in-flight
// workers cancelled and given shutdownGrace to finish.
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready chan<- struct{}) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	if ready != nil {
		close(ready)
	}

	xgo.Go(func() {
		<-ctx.Done()
		s.closing.Store(true)
		_ = ln.Close()
	})

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closing.Load() {
				return nil
			}
			return err
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		xgo.Go(func() { s.handleConn(conn) })
	}
}

// Addr returns the bound address, valid once ListenAndServe has started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) handleConn(conn net.Conn) {
	defer func() {
		_ = conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	out := make(chan wire.Envelope, outboundQueueDepth)
	disp := dispatch.New(s.handler, s.counters, int(s.maxInFlight.Load()), out)

	var writerDone sync.WaitGroup
	writerDone.Add(1)
	xgo.Go(func() {
		defer writerDone.Done()
		s.writeLoop(conn, out)
	})

	s.readLoop(conn, disp)

	disp.CancelAll()
	disp.Wait(shutdownGrace)
	close(out)
	writerDone.Wait()
}

func (s *Server) readLoop(conn net.Conn, disp *dispatch.Dispatcher) {
	for {
		env, err := frame.Decode(conn, s.maxFrameBytes)
		if err != nil {
			if !s.closing.Load() && !errors.Is(err, net.ErrClosed) {
				slog.Debug("connection closed", slog.Any("error", err))
			}
			return
		}
		disp.Dispatch(env)
	}
}

func (s *Server) writeLoop(conn net.Conn, out <-chan wire.Envelope) {
	for env := range out {
		b, err := frame.Encode(env, s.maxFrameBytes)
		if err != nil {
			slog.Error("fault to encode response envelope", slog.Uint64("request_id", env.RequestID), slog.Any("error", err))
			continue
		}
		if _, err := conn.Write(b); err != nil {
			return
		}
	}
}
