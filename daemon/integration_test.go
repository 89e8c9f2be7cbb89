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

package daemon

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvid-ide/corvid/frame"
	"github.com/corvid-ide/corvid/handler"
	"github.com/corvid-ide/corvid/metrics"
	"github.com/corvid-ide/corvid/status"
	"github.com/corvid-ide/corvid/transport"
	"github.com/corvid-ide/corvid/wire"
)

// startServer brings up a Server on an ephemeral loopback port and returns
// its address plus a func to tear it down.
func startServer(t *testing.T, h handler.Handler, maxInFlight int) (string, func()) {
	t.Helper()
	counters := metrics.New()
	s := New(h, counters, frame.DefaultMaxFrameBytes, maxInFlight)

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	errCh := make(chan error, 1)
	go func() { errCh <- s.ListenAndServe(ctx, "127.0.0.1:0", ready) }()

	select {
	case <-ready:
	case err := <-errCh:
		t.Fatalf("server failed to start: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server to start listening")
	}

	return s.Addr().String(), func() {
		cancel()
		select {
		case <-errCh:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for server shutdown")
		}
	}
}

func TestPingPongOverRealTCP(t *testing.T) {
	addr, stop := startServer(t, handler.NewLocal(metrics.New()), 8)
	defer stop()

	c, err := transport.Dial(context.Background(), addr, frame.DefaultMaxFrameBytes, time.Second)
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.Call(context.Background(), wire.Ping{}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, wire.Pong{}, resp)
}

func TestOpenSaveOverRealTCP(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.txt")
	require.NoError(t, os.WriteFile(path, []byte("before"), 0o644))

	addr, stop := startServer(t, handler.NewLocal(metrics.New()), 8)
	defer stop()

	c, err := transport.Dial(context.Background(), addr, frame.DefaultMaxFrameBytes, time.Second)
	require.NoError(t, err)
	defer c.Close()

	opened, err := c.Call(context.Background(), wire.OpenBuffer{Path: path}, time.Second)
	require.NoError(t, err)
	bo, ok := opened.(wire.BufferOpened)
	require.True(t, ok)

	saved, err := c.Call(context.Background(), wire.SaveBuffer{ID: bo.ID, Contents: []byte("after")}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, wire.BufferSaved{}, saved)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.Equal([]byte("after"), got))
}

func TestCancelLongSearchOverRealTCP(t *testing.T) {
	h := &blockingHandler{
		Handler: handler.NewLocal(metrics.New()),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	addr, stop := startServer(t, h, 8)
	defer stop()

	c, err := transport.Dial(context.Background(), addr, frame.DefaultMaxFrameBytes, time.Second)
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, callErr := c.Call(ctx, wire.Search{Root: "/tmp", Pattern: "needle", MaxResults: 1000000}, 0)
		require.Error(t, callErr)
		var se *status.Error
		require.True(t, status.As(callErr, &se))
		assert.Equal(t, status.Cancelled, se.Kind)
	}()

	select {
	case <-h.started:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for search to be admitted")
	}
	cancel()
	<-done
}

func TestDeadlineRejectionOverRealTCP(t *testing.T) {
	addr, stop := startServer(t, handler.NewLocal(metrics.New()), 8)
	defer stop()

	c, err := transport.Dial(context.Background(), addr, frame.DefaultMaxFrameBytes, time.Second)
	require.NoError(t, err)
	defer c.Close()

	// A deadline of 1 microsecond is certain to have already elapsed by the
	// time the frame crosses the loopback socket and reaches admission.
	_, err = c.Call(context.Background(), wire.Ping{}, time.Microsecond)
	require.Error(t, err)
	var se *status.Error
	require.True(t, status.As(err, &se))
	assert.Equal(t, status.Deadline, se.Kind)
}

// blockingHandler blocks Search until release is closed, so a test can
// deterministically occupy the single admission slot on a connection.
type blockingHandler struct {
	handler.Handler
	started chan struct{}
	release chan struct{}
}

func (b *blockingHandler) Search(ctx context.Context, root, pattern string, maxResults uint32) ([]wire.SearchItem, bool, error) {
	close(b.started)
	select {
	case <-b.release:
		return nil, false, nil
	case <-ctx.Done():
		return nil, false, status.FromContextError(ctx.Err())
	}
}

func TestBackpressureRejectionOverRealTCP(t *testing.T) {
	h := &blockingHandler{
		Handler: handler.NewLocal(metrics.New()),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	addr, stop := startServer(t, h, 1)
	defer stop()

	c1, err := transport.Dial(context.Background(), addr, frame.DefaultMaxFrameBytes, time.Second)
	require.NoError(t, err)
	defer c1.Close()

	blockCtx, blockCancel := context.WithCancel(context.Background())
	defer blockCancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c1.Call(blockCtx, wire.Search{Root: "/tmp", Pattern: "x", MaxResults: 10}, 0)
	}()

	select {
	case <-h.started:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the blocking search to be admitted")
	}

	_, err = c1.Call(context.Background(), wire.Ping{}, time.Second)
	require.Error(t, err)
	var se *status.Error
	require.True(t, status.As(err, &se))
	assert.Equal(t, status.Backpressure, se.Kind)

	close(h.release)
	<-done
}

func TestOversizeFrameRejectedLocallyConnectionStaysUsable(t *testing.T) {
	addr, stop := startServer(t, handler.NewLocal(metrics.New()), 8)
	defer stop()

	c, err := transport.Dial(context.Background(), addr, 64, time.Second)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Call(context.Background(), wire.SaveBuffer{ID: 1, Contents: bytes.Repeat([]byte{0x41}, 4096)}, time.Second)
	require.Error(t, err)

	resp, err := c.Call(context.Background(), wire.Ping{}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, wire.Pong{}, resp)
}
