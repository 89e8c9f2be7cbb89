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

// Package app wires the daemon's lifecycle together: bind the frame
// endpoint and the governor HTTP endpoint, run both until a shutdown
// signal, then stop accepting connections and shut the governor down within
// a bounded grace period.
package app

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/corvid-ide/corvid/config"
	"github.com/corvid-ide/corvid/daemon"
	"github.com/corvid-ide/corvid/governor"
	"github.com/corvid-ide/corvid/handler"
	"github.com/corvid-ide/corvid/internal/defers"
	"github.com/corvid-ide/corvid/internal/instance"
	"github.com/corvid-ide/corvid/internal/xgo"
	"github.com/corvid-ide/corvid/metrics"
)

// Stage names a point in the shutdown sequence where hooks may run.
type Stage uint32

const (
	_ Stage = iota
	// StageBeforeStart runs right before the daemon starts accepting connections.
	StageBeforeStart
	// StageBeforeStop runs right after a shutdown signal is observed, before anything stops.
	StageBeforeStop
	// StageAfterStop runs once every server has stopped.
	StageAfterStop
	stageMax
)

const defaultShutdownTimeout = 30 * time.Second

var shutdownSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

// App is a daemon process: the frame endpoint, the governor HTTP endpoint,
// and the shared handler/counters they both serve from.
type App struct {
	settings        *config.Settings
	counters        *metrics.Counters
	handler         handler.Handler
	daemonServer    *daemon.Server
	governorServer  *governor.Server
	shutdownTimeout time.Duration
	hooks           map[Stage]*defers.Defer
	watcher         *config.Watcher

	stopOnce sync.Once
	cancel   context.CancelFunc
}

// Option customizes an App at construction time.
type Option func(*App) error

// WithShutdownTimeout overrides the default 30s grace period given to the
// governor server during Stop, and the delay before a signal-triggered
// shutdown forces the process to exit.
func WithShutdownTimeout(d time.Duration) Option {
	return func(a *App) error {
		a.shutdownTimeout = d
		return nil
	}
}

// WithBeforeStartHook registers fns to run just before the daemon starts serving.
func WithBeforeStartHook(fns ...func() error) Option {
	return func(a *App) error {
		a.hooks[StageBeforeStart].Register(fns...)
		return nil
	}
}

// WithBeforeStopHook registers fns to run as soon as a shutdown is observed.
func WithBeforeStopHook(fns ...func() error) Option {
	return func(a *App) error {
		a.hooks[StageBeforeStop].Register(fns...)
		return nil
	}
}

// WithAfterStopHook registers fns to run once every server has stopped.
func WithAfterStopHook(fns ...func() error) Option {
	return func(a *App) error {
		a.hooks[StageAfterStop].Register(fns...)
		return nil
	}
}

// WithGovernorAddr enables the governor HTTP debug server at addr.
func WithGovernorAddr(addr string) Option {
	return func(a *App) error {
		svr, err := governor.New(addr, a.counters)
		if err != nil {
			return err
		}
		a.governorServer = svr
		return nil
	}
}

// WithHandler overrides the handler.Local default, e.g. to restrict
// SaveBuffer to a set of permitted roots.
func WithHandler(h handler.Handler) Option {
	return func(a *App) error {
		a.handler = h
		a.daemonServer = daemon.New(h, a.counters, uint32(a.settings.MaxFrameBytes), a.settings.MaxInFlight)
		return nil
	}
}

// WithConfigWatch hot-reloads settings from path: on every change, the
// daemon's admission cap is updated to match the reloaded MaxInFlight.
// Other fields (endpoint, frame size) require a restart to take effect.
func WithConfigWatch(path string) Option {
	return func(a *App) error {
		w, err := config.Watch(path)
		if err != nil {
			return err
		}
		a.watcher = w
		xgo.Go(func() {
			for s := range w.Changes {
				slog.Info("settings reloaded", slog.String("path", path), slog.Int("max_in_flight", s.MaxInFlight))
				a.daemonServer.SetMaxInFlight(s.MaxInFlight)
			}
		})
		return nil
	}
}

// New builds an App from settings. version is recorded in the process
// instance identity.
func New(version string, settings *config.Settings, opts ...Option) (*App, error) {
	instance.Init("corvidd", version)
	counters := metrics.New()
	h := handler.NewLocal(counters)

	a := &App{
		settings:        settings,
		counters:        counters,
		handler:         h,
		daemonServer:    daemon.New(h, counters, uint32(settings.MaxFrameBytes), settings.MaxInFlight),
		shutdownTimeout: defaultShutdownTimeout,
		hooks:           map[Stage]*defers.Defer{},
	}
	for s := Stage(1); s < stageMax; s++ {
		a.hooks[s] = defers.NewDefer()
	}
	for _, o := range opts {
		if err := o(a); err != nil {
			return nil, err
		}
	}

	meter := otel.GetMeterProvider().Meter("github.com/corvid-ide/corvid")
	if err := metrics.RegisterObservers(meter, counters); err != nil {
		slog.Warn("failed to register OpenTelemetry observers", slog.Any("error", err))
	}
	return a, nil
}

// Counters exposes the shared dispatcher counters, e.g. for tests asserting on them.
func (a *App) Counters() *metrics.Counters {
	return a.counters
}

// Run serves the frame endpoint (and the governor endpoint, if configured)
// until a SIGINT/SIGTERM is received, then stops gracefully. It returns
// once every server has stopped.
func (a *App) Run() error {
	a.runHooks(StageBeforeStart)

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.waitSignals()

	ready := make(chan struct{})
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return a.daemonServer.ListenAndServe(egCtx, a.settings.Endpoint, ready)
	})

	if a.governorServer != nil {
		xgo.Go(func() {
			select {
			case <-ready:
				a.governorServer.SetReady(true)
			case <-egCtx.Done():
			}
		})
		eg.Go(func() error {
			return a.governorServer.Serve()
		})
		eg.Go(func() error {
			<-egCtx.Done()
			stopCtx, stopCancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
			defer stopCancel()
			return a.governorServer.Stop(stopCtx)
		})
	}

	err := eg.Wait()
	if a.watcher != nil {
		_ = a.watcher.Close()
	}
	a.runHooks(StageAfterStop)
	if err != nil {
		slog.Error("daemon stopped with error", slog.Any("error", err))
	}
	return err
}

// Stop triggers the same shutdown Run would perform on a signal. Safe to
// call multiple times and from any goroutine.
func (a *App) Stop() {
	a.stopOnce.Do(func() {
		a.runHooks(StageBeforeStop)
		if a.cancel != nil {
			a.cancel()
		}
	})
}

func (a *App) runHooks(s Stage) {
	if h, ok := a.hooks[s]; ok {
		h.Done()
	}
}

func (a *App) waitSignals() {
	sig := make(chan os.Signal, 2)
	signal.Notify(sig, shutdownSignals...)
	xgo.Go(func() {
		s := <-sig
		xgo.Go(func() {
			<-time.After(a.shutdownTimeout)
			if signo, ok := s.(syscall.Signal); ok {
				os.Exit(128 + int(signo))
			}
			os.Exit(1)
		})
		slog.Info("received shutdown signal", slog.String("signal", s.String()))
		a.Stop()
	})
}
