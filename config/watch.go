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

package config

import (
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/corvid-ide/corvid/internal/backoff"
	"github.com/corvid-ide/corvid/internal/xgo"
)

// Watcher reloads Settings from a file whenever it changes and delivers the
// new value on Changes. Editors rewrite config files by rename-into-place,
// so the watcher re-adds the inode on a Rename event with a backoff retry
// rather than assuming the original watch survives.
type Watcher struct {
	path    string
	exit    chan struct{}
	Changes chan *Settings
}

// Watch starts watching path for changes and returns a Watcher whose
// Changes channel receives a freshly loaded Settings after each write.
// Close stops the watcher and closes Changes.
func Watch(path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		_ = fw.Close()
		return nil, err
	}

	w := &Watcher{
		path:    path,
		exit:    make(chan struct{}),
		Changes: make(chan *Settings, 1),
	}
	xgo.Go(func() { w.run(fw) })
	return w, nil
}

func (w *Watcher) run(fw *fsnotify.Watcher) {
	defer close(w.Changes)
	defer fw.Close() //nolint:errcheck
	bo := backoff.Exponential{Config: backoff.Config{
		BaseDelay:  time.Second,
		Multiplier: 1.6,
		Jitter:     0.2,
		MaxDelay:   30 * time.Second,
	}}
	for {
		select {
		case <-w.exit:
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Rename != 0 {
				w.reAddWithRetry(fw, bo)
			}
			s, err := Load(w.path)
			if err != nil {
				slog.Error("fault to reload settings", slog.String("path", w.path), slog.Any("error", err))
				continue
			}
			select {
			case w.Changes <- s:
			case <-w.exit:
				return
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			slog.Error("settings watch error", slog.Any("error", err))
		}
	}
}

func (w *Watcher) reAddWithRetry(fw *fsnotify.Watcher, bo backoff.Exponential) {
	t := time.NewTimer(time.Millisecond)
	defer t.Stop()
	retries := 0
	for {
		select {
		case <-w.exit:
			return
		case <-t.C:
			if _, err := os.Stat(w.path); err == nil || !errors.Is(err, os.ErrNotExist) {
				if err := fw.Add(w.path); err == nil {
					return
				}
			}
			retries++
			t.Reset(bo.Backoff(retries))
		}
	}
}

// Close stops the watcher goroutine.
func (w *Watcher) Close() error {
	close(w.exit)
	return nil
}
