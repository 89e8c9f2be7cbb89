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

package logger

import (
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config is the small set of logging options the daemon and client accept.
type Config struct {
	Level     slog.Level
	AddSource bool
	AddTrace  bool
	// FilePath, if set, rotates logs through lumberjack in addition to stdout.
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Setup builds the process-wide logger from cfg and installs it as
// slog.Default, returning it for callers that want to hold their own
// reference instead of going through the package-level default.
func Setup(cfg Config) *slog.Logger {
	handlers := []slog.Handler{
		NewConsoleHandler(ConsoleConfig{
			Level:     cfg.Level,
			AddSource: cfg.AddSource,
			AddTrace:  cfg.AddTrace,
			Writer:    os.Stdout,
		}),
	}

	if cfg.FilePath != "" {
		w := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxBackups: orDefault(cfg.MaxBackups, 7),
			MaxAge:     orDefault(cfg.MaxAgeDays, 28),
			Compress:   true,
		}
		handlers = append(handlers, NewJSONHandler(JSONConfig{
			Level:     cfg.Level,
			AddSource: cfg.AddSource,
			AddTrace:  cfg.AddTrace,
			Writer:    w,
		}))
	}

	l := slog.New(Multi(handlers...))
	slog.SetDefault(l)
	return l
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
