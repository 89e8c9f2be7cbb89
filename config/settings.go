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

// Package config loads and hot-reloads the small, fixed set of settings the
// transport recognizes: endpoint, auto-start behavior, frame and
// concurrency limits, and timing.
package config

import (
	"fmt"
	"os"

	"github.com/creasty/defaults"
	"github.com/mitchellh/mapstructure"
	"github.com/pelletier/go-toml/v2"
)

// Settings holds every recognized configuration option.
type Settings struct {
	// Endpoint is the address of the local socket (loopback TCP, "host:port").
	Endpoint string `toml:"endpoint" mapstructure:"endpoint" default:"127.0.0.1:7420"`
	// AutoStart spawns the daemon binary when the endpoint refuses connection.
	AutoStart bool `toml:"auto_start" mapstructure:"auto_start" default:"true"`
	// DaemonBinary is the path spawned when AutoStart fires.
	DaemonBinary string `toml:"daemon_binary" mapstructure:"daemon_binary" default:"corvidd"`
	// ConnectionTimeoutMillis bounds connect + handshake + readiness wait.
	ConnectionTimeoutMillis int `toml:"connection_timeout_millis" mapstructure:"connection_timeout_millis" default:"5000"`
	// PollIntervalMillis is the readiness poll cadence during auto-start.
	PollIntervalMillis int `toml:"poll_interval_millis" mapstructure:"poll_interval_millis" default:"100"`
	// MaxFrameBytes is the per-frame payload cap, enforced symmetrically by both peers.
	MaxFrameBytes int `toml:"max_frame_bytes" mapstructure:"max_frame_bytes" default:"1048576"`
	// MaxInFlight is the admission cap per connection.
	MaxInFlight int `toml:"max_in_flight" mapstructure:"max_in_flight" default:"64"`
	// RequestDefaultDeadlineMillis is applied by the client when a caller sets no deadline; 0 means unbounded.
	RequestDefaultDeadlineMillis int `toml:"request_default_deadline_millis" mapstructure:"request_default_deadline_millis" default:"0"`
}

// Default returns Settings populated with their documented defaults.
func Default() *Settings {
	s := &Settings{}
	_ = defaults.Set(s)
	return s
}

// Load reads a TOML settings file at path, applying defaults for any field
// the file omits, then the MAX_IN_FLIGHT environment override. A missing
// file (or an empty path) is not an error: Load returns Default() with only
// the environment override applied.
func Load(path string) (*Settings, error) {
	s := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			var raw map[string]any
			if err := toml.Unmarshal(b, &raw); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
			if err := decodeInto(s, raw); err != nil {
				return nil, fmt.Errorf("config: decode %s: %w", path, err)
			}
		}
	}
	if err := applyEnvOverrides(s); err != nil {
		return nil, fmt.Errorf("config: env override: %w", err)
	}
	return s, nil
}

// applyEnvOverrides honors MAX_IN_FLIGHT, which test harnesses use to pin the
// daemon's admission cap without a settings file. It goes through the same
// weakly-typed mapstructure decode as the file source, so "64" (a string, as
// every environment variable is) lands on the int field correctly.
func applyEnvOverrides(s *Settings) error {
	v, ok := os.LookupEnv("MAX_IN_FLIGHT")
	if !ok {
		return nil
	}
	return decodeInto(s, map[string]any{"max_in_flight": v})
}

// decodeInto merges raw (keyed by the struct's "mapstructure"/"toml" tag
// names) onto an already-defaulted Settings, converting weakly-typed
// scalars (e.g. a string "64" onto an int field) as it goes.
func decodeInto(s *Settings, raw map[string]any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
		Result:           s,
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}
