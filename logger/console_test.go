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
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleHandlerWritesMessageAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := NewConsoleHandler(ConsoleConfig{Level: slog.LevelInfo, Writer: &buf})
	logger := slog.New(h)

	logger.Info("daemon listening", slog.String("endpoint", "127.0.0.1:7420"))

	out := buf.String()
	assert.Contains(t, out, "daemon listening")
	assert.Contains(t, out, `endpoint="127.0.0.1:7420"`)
}

func TestConsoleHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	h := NewConsoleHandler(ConsoleConfig{Level: slog.LevelWarn, Writer: &buf})
	logger := slog.New(h)

	logger.Info("should not appear")
	assert.Empty(t, buf.String())

	logger.Warn("should appear")
	assert.Contains(t, buf.String(), "should appear")
}

func TestConsoleHandlerFormatsErrorAttr(t *testing.T) {
	var buf bytes.Buffer
	h := NewConsoleHandler(ConsoleConfig{Level: slog.LevelError, Writer: &buf})
	logger := slog.New(h)

	logger.Error("fault to dial", slog.Any("error", errors.New("connection refused")))
	assert.Contains(t, buf.String(), `error="connection refused"`)
}

func TestConsoleHandlerWithAttrsAppendsToEveryRecord(t *testing.T) {
	var buf bytes.Buffer
	h := NewConsoleHandler(ConsoleConfig{Level: slog.LevelInfo, Writer: &buf})
	logger := slog.New(h).With(slog.String("component", "daemon"))

	logger.Info("ready")
	assert.Contains(t, buf.String(), `component="daemon"`)
}

func TestConsoleHandlerWithGroupPrefixesKeys(t *testing.T) {
	var buf bytes.Buffer
	h := NewConsoleHandler(ConsoleConfig{Level: slog.LevelInfo, Writer: &buf})
	logger := slog.New(h).WithGroup("conn")

	logger.Info("opened", slog.Int("id", 3))
	assert.Contains(t, buf.String(), "conn.id=3")
}

func TestJSONHandlerWritesParsableRecord(t *testing.T) {
	var buf bytes.Buffer
	h := NewJSONHandler(JSONConfig{Level: slog.LevelInfo, Writer: &buf})
	logger := slog.New(h)

	logger.Info("buffer saved", slog.Uint64("id", 7))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "buffer saved", decoded["msg"])
	assert.Equal(t, float64(7), decoded["id"])
}

func TestMultiFansOutToEveryEnabledHandler(t *testing.T) {
	var console, jsonBuf bytes.Buffer
	h := Multi(
		NewConsoleHandler(ConsoleConfig{Level: slog.LevelInfo, Writer: &console}),
		NewJSONHandler(JSONConfig{Level: slog.LevelWarn, Writer: &jsonBuf}),
	)
	logger := slog.New(h)

	logger.Info("info only reaches console")
	assert.Contains(t, console.String(), "info only reaches console")
	assert.Empty(t, jsonBuf.String())

	logger.Warn("warn reaches both")
	assert.Contains(t, console.String(), "warn reaches both")
	assert.Contains(t, jsonBuf.String(), "warn reaches both")
}
