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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchDeliversReloadOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corvid.toml")
	require.NoError(t, os.WriteFile(path, []byte("max_in_flight = 10\n"), 0o644))

	w, err := Watch(path)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("max_in_flight = 20\n"), 0o644))

	select {
	case s := <-w.Changes:
		require.NotNil(t, s)
		assert.Equal(t, 20, s.MaxInFlight)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a reload after writing the settings file")
	}
}

func TestWatchSurvivesRenameIntoPlace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corvid.toml")
	require.NoError(t, os.WriteFile(path, []byte("max_in_flight = 10\n"), 0o644))

	w, err := Watch(path)
	require.NoError(t, err)
	defer w.Close()

	// Simulate an editor's atomic save: write a temp file, then rename it
	// over the watched path. fsnotify reports this as a Rename of the
	// original inode; the watcher must re-add the new one under that name.
	tmp := filepath.Join(dir, "corvid.toml.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("max_in_flight = 30\n"), 0o644))
	require.NoError(t, os.Rename(tmp, path))

	select {
	case s := <-w.Changes:
		require.NotNil(t, s)
		assert.Equal(t, 30, s.MaxInFlight)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a reload after rename-into-place")
	}
}

func TestCloseStopsDeliveringChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corvid.toml")
	require.NoError(t, os.WriteFile(path, []byte("max_in_flight = 10\n"), 0o644))

	w, err := Watch(path)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	select {
	case _, ok := <-w.Changes:
		assert.False(t, ok, "Changes should be closed once the watcher stops")
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Changes to close")
	}
}
