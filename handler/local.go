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

package handler

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/corvid-ide/corvid/metrics"
	"github.com/corvid-ide/corvid/status"
	"github.com/corvid-ide/corvid/utils/xarray"
	"github.com/corvid-ide/corvid/wire"
)

// buffer is one opened file: its disk path and the in-memory contents the
// client has loaded. Mutation of a single buffer is serialized by the
// buffer's own lock; the IPC core does not reason about the contents beyond
// passing them through as an opaque payload.
type buffer struct {
	mu       sync.Mutex
	path     string
	contents []byte
}

// Local is the reference Handler: it keeps opened buffers in a process-local
// map and walks the filesystem directly for Search. A real editor wires a
// rope-backed buffer and a tree-sitter/tantivy-backed search here instead;
// this implementation is what the daemon's integration tests run against.
type Local struct {
	counters *metrics.Counters
	roots    []string

	nextID  atomic.Uint64
	mu      sync.Mutex
	buffers map[uint64]*buffer
}

// NewLocal constructs a Local handler. roots restricts where SaveBuffer may
// write; a buffer opened from outside every root still opens for reading,
// but a save to it is PermissionDenied. An empty roots list permits saving
// anywhere, matching an editor with no workspace restriction configured.
func NewLocal(counters *metrics.Counters, roots ...string) *Local {
	clean := make([]string, 0, len(roots))
	for _, r := range xarray.DelDupStable(roots) {
		abs, err := filepath.Abs(r)
		if err != nil {
			continue
		}
		clean = append(clean, abs)
	}
	return &Local{
		counters: counters,
		roots:    clean,
		buffers:  make(map[uint64]*buffer),
	}
}

// Ping is trivial: reaching this method at all proves the daemon is live.
func (l *Local) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return status.FromContextError(err)
	}
	return nil
}

// OpenBuffer loads path into memory and returns a new opaque id.
func (l *Local) OpenBuffer(ctx context.Context, path string) (uint64, error) {
	if path == "" {
		return 0, status.New(status.InvalidArgument, "empty path")
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		return 0, status.Newf(status.InvalidArgument, "open %s: %v", path, err)
	}

	id := l.nextID.Add(1)
	l.mu.Lock()
	l.buffers[id] = &buffer{path: path, contents: contents}
	l.mu.Unlock()
	return id, nil
}

// SaveBuffer writes contents to the buffer's path, refusing unknown ids and
// paths outside the permitted roots.
func (l *Local) SaveBuffer(ctx context.Context, id uint64, contents []byte) error {
	l.mu.Lock()
	b, ok := l.buffers[id]
	l.mu.Unlock()
	if !ok {
		return status.Newf(status.NotFound, "unknown buffer %d", id)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !l.permits(b.path) {
		return status.Newf(status.PermissionDenied, "%s is outside the permitted roots", b.path)
	}
	if err := os.WriteFile(b.path, contents, 0o644); err != nil {
		return status.Newf(status.Internal, "write %s: %v", b.path, err)
	}
	b.contents = contents
	return nil
}

// CloseBuffer drops a buffer; closing an unknown id is a no-op success.
func (l *Local) CloseBuffer(ctx context.Context, id uint64) error {
	l.mu.Lock()
	delete(l.buffers, id)
	l.mu.Unlock()
	return nil
}

// Search walks root, matching pattern against each file line by line,
// checking ctx for cancellation between files and periodically within a
// large file so a Cancel is seen promptly.
func (l *Local) Search(ctx context.Context, root, pattern string, maxResults uint32) ([]wire.SearchItem, bool, error) {
	if root == "" || pattern == "" {
		return nil, false, status.New(status.InvalidArgument, "root and pattern are required")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, false, status.Newf(status.InvalidArgument, "bad pattern: %v", err)
	}

	var items []wire.SearchItem
	truncated := false
	lines := 0

	walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // skip unreadable entries rather than aborting the whole search
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		f, ferr := os.Open(path)
		if ferr != nil {
			return nil
		}
		defer f.Close() //nolint:errcheck

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		lineNo := uint32(0)
		for scanner.Scan() {
			lineNo++
			lines++
			if lines%256 == 0 && ctx.Err() != nil {
				return ctx.Err()
			}
			text := scanner.Text()
			if !re.MatchString(text) {
				continue
			}
			if uint32(len(items)) >= maxResults {
				truncated = true
				return filepath.SkipAll
			}
			items = append(items, wire.SearchItem{Path: path, Line: lineNo, Text: strings.TrimRight(text, "\r")})
		}
		return nil
	})

	if walkErr != nil && walkErr != filepath.SkipAll {
		if serr := status.FromContextError(walkErr); serr != nil {
			return nil, false, serr
		}
		return nil, false, status.Newf(status.Internal, "search %s: %v", root, walkErr)
	}
	return items, truncated, nil
}

// GetStats snapshots the shared counters. The dispatcher's in_flight figure
// is part of Counters so the handler never needs direct access to the
// in-flight table itself.
func (l *Local) GetStats(ctx context.Context) wire.Stats {
	cancels, deadlines, backpressure, inFlight := l.counters.Snapshot()
	return wire.Stats{Cancels: cancels, Deadlines: deadlines, Backpressure: backpressure, InFlight: inFlight}
}

func (l *Local) permits(path string) bool {
	if len(l.roots) == 0 {
		return true
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, root := range l.roots {
		if abs == root || strings.HasPrefix(abs, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
