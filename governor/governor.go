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

// Package governor runs a small HTTP debug server alongside the daemon:
// liveness/readiness probes and a JSON view of the dispatcher counters. It
// is separate from the frame protocol so an operator can curl it without
// speaking the wire format.
package governor

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"

	"github.com/corvid-ide/corvid/metrics"
)

// Server is the governor's HTTP listener.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	ready      atomic.Bool
}

// New builds a governor Server bound to addr, reporting counters and
// honoring SetReady for /readyz.
func New(addr string, counters *metrics.Counters) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	s := &Server{listener: ln}
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if !s.ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		cancels, deadlines, backpressure, inFlight := counters.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]uint64{
			"cancels":      cancels,
			"deadlines":    deadlines,
			"backpressure": backpressure,
			"in_flight":    inFlight,
		})
	})

	s.httpServer = &http.Server{Handler: r}
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// SetReady flips the /readyz response; the daemon calls this once the frame
// endpoint itself is accepting connections.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Serve blocks, serving HTTP until Stop is called.
func (s *Server) Serve() error {
	err := s.httpServer.Serve(s.listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts the governor server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
