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

// Package autostart is the client-side supervisor that spawns the daemon
// binary when the endpoint is unreachable and waits for it to become ready.
package autostart

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/corvid-ide/corvid/config"
	"github.com/corvid-ide/corvid/status"
	"github.com/corvid-ide/corvid/transport"
)

// State is a point in the supervisor's connection lifecycle.
type State int32

const (
	// Disconnected is the initial state: no connection attempted yet.
	Disconnected State = iota
	// Spawning means the daemon binary is being started.
	Spawning
	// WaitingReady means the daemon binary is running and being polled for readiness.
	WaitingReady
	// Connected means a handshake succeeded.
	Connected
	// Failed is terminal: no connection was made, because auto-start is
	// disabled, the spawn failed, ctx ended, or the daemon never became ready
	// within the connection timeout.
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Spawning:
		return "Spawning"
	case WaitingReady:
		return "WaitingReady"
	case Connected:
		return "Connected"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Supervisor connects to a daemon, auto-starting it on first use if
// settings.AutoStart is set and the endpoint refuses connection.
type Supervisor struct {
	settings *config.Settings
	state    atomic.Int32
}

// New builds a Supervisor bound to settings.
func New(settings *config.Settings) *Supervisor {
	return &Supervisor{settings: settings}
}

// State returns the supervisor's current lifecycle state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Connect dials the configured endpoint, auto-starting the daemon binary if
// the first attempt is refused and settings.AutoStart is true.
func (s *Supervisor) Connect(ctx context.Context) (*transport.Client, error) {
	s.state.Store(int32(Disconnected))
	timeout := time.Duration(s.settings.ConnectionTimeoutMillis) * time.Millisecond
	maxFrame := uint32(s.settings.MaxFrameBytes)

	cli, err := transport.Dial(ctx, s.settings.Endpoint, maxFrame, timeout)
	if err == nil {
		s.state.Store(int32(Connected))
		return cli, nil
	}
	if !s.settings.AutoStart {
		s.state.Store(int32(Failed))
		return nil, status.New(status.Transport, "daemon not running and auto_start is disabled")
	}
	return s.spawnAndWait(ctx)
}

func (s *Supervisor) spawnAndWait(ctx context.Context) (*transport.Client, error) {
	s.state.Store(int32(Spawning))
	cmd := exec.Command(s.settings.DaemonBinary)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		s.state.Store(int32(Failed))
		return nil, status.New(status.Transport, fmt.Sprintf("spawn daemon: %v", err))
	}

	s.state.Store(int32(WaitingReady))
	timeout := time.Duration(s.settings.ConnectionTimeoutMillis) * time.Millisecond
	pollInterval := time.Duration(s.settings.PollIntervalMillis) * time.Millisecond
	maxFrame := uint32(s.settings.MaxFrameBytes)
	deadline := time.Now().Add(timeout)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			s.state.Store(int32(Failed))
			_ = cmd.Process.Kill()
			return nil, status.New(status.Transport, "daemon_not_ready")
		}

		attemptCtx, cancel := context.WithTimeout(ctx, remaining)
		cli, err := transport.Dial(attemptCtx, s.settings.Endpoint, maxFrame, remaining)
		cancel()
		if err == nil {
			s.state.Store(int32(Connected))
			return cli, nil
		}

		select {
		case <-time.After(pollInterval):
		case <-ctx.Done():
			s.state.Store(int32(Failed))
			_ = cmd.Process.Kill()
			return nil, status.New(status.Transport, ctx.Err().Error())
		}
	}
}
