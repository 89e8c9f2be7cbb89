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

// Package logger provides the slog.Handler implementations used by the
// daemon: a colorized console handler for interactive use
// and a JSON handler for file output, fanned out through a multi handler.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"slices"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/corvid-ide/corvid/logger/buffer"
	"github.com/corvid-ide/corvid/logger/xcolor"
)

var consoleLevelLabel = map[slog.Level]string{
	slog.LevelDebug: xcolor.Blue("DEBUG"),
	slog.LevelInfo:  xcolor.Green("INFO "),
	slog.LevelWarn:  xcolor.Yellow("WARN "),
	slog.LevelError: xcolor.Red("ERROR"),
}

// ConsoleConfig configures NewConsoleHandler.
type ConsoleConfig struct {
	Level     slog.Level
	AddSource bool
	AddTrace  bool
	Writer    io.Writer
}

type consoleHandler struct {
	cfg    ConsoleConfig
	attrs  []slog.Attr
	groups []string
}

// NewConsoleHandler builds a slog.Handler that writes one colorized,
// human-readable line per record to cfg.Writer.
func NewConsoleHandler(cfg ConsoleConfig) slog.Handler {
	return &consoleHandler{cfg: cfg}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.Level
}

func (h *consoleHandler) Handle(ctx context.Context, r slog.Record) error {
	buf := buffer.Get()
	defer buf.Free()

	buf.AppendString(r.Time.Format(time.RFC3339))
	buf.AppendString("  ")
	buf.AppendString(consoleLevelLabel[r.Level])
	if h.cfg.AddSource && r.PC != 0 {
		fs := runtime.CallersFrames([]uintptr{r.PC})
		f, _ := fs.Next()
		if f.File != "" {
			buf.AppendString("  ")
			buf.AppendString(f.File)
			buf.AppendByte(':')
			buf.AppendInt(int64(f.Line))
		}
	}
	buf.AppendString("  ")
	buf.AppendString(r.Message)

	attrs := slices.Clone(h.attrs)
	if h.cfg.AddTrace {
		if spanCtx := trace.SpanFromContext(ctx).SpanContext(); spanCtx.IsValid() {
			attrs = append(attrs, slog.String("trace_id", spanCtx.TraceID().String()), slog.String("span_id", spanCtx.SpanID().String()))
		}
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a)
		return true
	})

	if len(attrs) > 0 {
		buf.AppendString("  {")
		for i, a := range attrs {
			if i > 0 {
				buf.AppendString(", ")
			}
			writeGroupedKey(buf, h.groups, a.Key)
			buf.AppendByte('=')
			writeAttrValue(buf, a.Value)
		}
		buf.AppendByte('}')
	}
	buf.AppendByte('\n')

	_, err := h.cfg.Writer.Write(buf.Bytes())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(slices.Clone(h.attrs), attrs...)
	return &clone
}

func (h *consoleHandler) WithGroup(group string) slog.Handler {
	clone := *h
	clone.groups = append(slices.Clone(h.groups), group)
	return &clone
}

func writeGroupedKey(buf *buffer.Buffer, groups []string, key string) {
	for _, g := range groups {
		buf.AppendString(g)
		buf.AppendByte('.')
	}
	buf.AppendString(key)
}

func writeAttrValue(buf *buffer.Buffer, v slog.Value) {
	switch v.Kind() {
	case slog.KindString:
		buf.AppendString(strconv.Quote(v.String()))
	case slog.KindInt64:
		buf.AppendInt(v.Int64())
	case slog.KindUint64:
		buf.AppendUint(v.Uint64())
	case slog.KindFloat64:
		buf.AppendFloat(v.Float64(), 64)
	case slog.KindBool:
		buf.AppendBool(v.Bool())
	case slog.KindDuration:
		buf.AppendString(v.Duration().String())
	case slog.KindTime:
		buf.AppendTime(v.Time(), time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			buf.AppendString(strconv.Quote(err.Error()))
			return
		}
		buf.AppendString(strconv.Quote(fmt.Sprint(v.Any())))
	default:
		buf.AppendString(strconv.Quote(v.String()))
	}
}
