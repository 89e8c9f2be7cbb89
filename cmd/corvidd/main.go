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

package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/corvid-ide/corvid/app"
	"github.com/corvid-ide/corvid/config"
	"github.com/corvid-ide/corvid/logger"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath   = flag.String("config", "", "path to a corvid.toml settings file")
		governorAddr = flag.String("governor", "127.0.0.1:7421", "address for the debug HTTP server (empty disables it)")
		logLevel     = flag.String("log-level", "info", "debug, info, warn, or error")
		logFile      = flag.String("log-file", "", "path to a rotated JSON log file, in addition to the console")
	)
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "corvidd: invalid -log-level %q: %v\n", *logLevel, err)
		return 2
	}
	logger.Setup(logger.Config{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
		FilePath:  *logFile,
	})

	settings, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load settings", slog.Any("error", err))
		return 1
	}

	opts := []app.Option{}
	if *governorAddr != "" {
		opts = append(opts, app.WithGovernorAddr(*governorAddr))
	}
	if *configPath != "" {
		// A missing settings file means defaults; only watch a file that exists.
		if _, err := os.Stat(*configPath); err == nil {
			opts = append(opts, app.WithConfigWatch(*configPath))
		}
	}

	a, err := app.New(version, settings, opts...)
	if err != nil {
		slog.Error("failed to build daemon", slog.Any("error", err))
		return 1
	}

	slog.Info("corvidd starting", slog.String("endpoint", settings.Endpoint), slog.String("version", version))
	if err := a.Run(); err != nil {
		slog.Error("corvidd exited with error", slog.Any("error", err))
		return 1
	}
	slog.Info("corvidd stopped")
	return 0
}
