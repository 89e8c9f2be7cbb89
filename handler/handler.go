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

// Package handler defines the in-process surface the dispatcher calls into.
// Everything behind this interface - the buffer store, the search walker -
// is free to block; the dispatcher only ever calls it from a worker task,
// never from the reader or writer.
package handler

import (
	"context"

	"github.com/corvid-ide/corvid/wire"
)

// Handler is the closed set of operations the dispatcher may invoke.
// Every method takes a context whose cancellation/deadline is the
// cooperative signal a long-running method (Search) must poll; the
// dispatcher itself enforces the hard cutoff independent of whether the
// handler notices.
type Handler interface {
	Ping(ctx context.Context) error
	OpenBuffer(ctx context.Context, path string) (id uint64, err error)
	SaveBuffer(ctx context.Context, id uint64, contents []byte) error
	CloseBuffer(ctx context.Context, id uint64) error
	Search(ctx context.Context, root, pattern string, maxResults uint32) (items []wire.SearchItem, truncated bool, err error)
	GetStats(ctx context.Context) wire.Stats
}
