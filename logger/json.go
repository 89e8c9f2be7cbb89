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
	"context"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// JSONConfig configures NewJSONHandler.
type JSONConfig struct {
	Level     slog.Level
	AddSource bool
	AddTrace  bool
	Writer    io.Writer
}

// jsonHandler wraps the standard library's JSON handler to inject trace
// correlation ids; file-backed logs are meant to be machine-parsed, so
// there is no benefit to a bespoke encoder the way the console handler has one.
type jsonHandler struct {
	slog.Handler
	addTrace bool
}

// NewJSONHandler builds a slog.Handler that writes one JSON object per
// record to cfg.Writer, suitable for a rotated log file.
func NewJSONHandler(cfg JSONConfig) slog.Handler {
	inner := slog.NewJSONHandler(cfg.Writer, &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	})
	return &jsonHandler{Handler: inner, addTrace: cfg.AddTrace}
}

func (h *jsonHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.addTrace {
		if spanCtx := trace.SpanFromContext(ctx).SpanContext(); spanCtx.IsValid() {
			r.AddAttrs(slog.String("trace_id", spanCtx.TraceID().String()), slog.String("span_id", spanCtx.SpanID().String()))
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h *jsonHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &jsonHandler{Handler: h.Handler.WithAttrs(attrs), addTrace: h.addTrace}
}

func (h *jsonHandler) WithGroup(group string) slog.Handler {
	return &jsonHandler{Handler: h.Handler.WithGroup(group), addTrace: h.addTrace}
}
