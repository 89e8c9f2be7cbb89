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
	"errors"
	"log/slog"
	"slices"
)

type multiHandler struct {
	handlers []slog.Handler
}

// Multi fans a record out to every handler enabled for its level, e.g. a
// colorized console handler and a rotated JSON file handler at once.
func Multi(handlers ...slog.Handler) slog.Handler {
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, sub := range h.handlers {
		if sub.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, sub := range h.handlers {
		if sub.Enabled(ctx, record.Level) {
			if err := sub.Handle(ctx, record); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (h *multiHandler) WithGroup(group string) slog.Handler {
	clone := *h
	clone.handlers = slices.Clone(h.handlers)
	for i, sub := range h.handlers {
		clone.handlers[i] = sub.WithGroup(group)
	}
	return &clone
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.handlers = slices.Clone(h.handlers)
	for i, sub := range h.handlers {
		clone.handlers[i] = sub.WithAttrs(attrs)
	}
	return &clone
}
