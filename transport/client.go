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

// Package transport is the client side of the protocol: one reader task
// demultiplexing responses by request id, one writer task serializing
// frames onto the socket, and a pending table of one-shot completions.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corvid-ide/corvid/frame"
	"github.com/corvid-ide/corvid/internal/xgo"
	"github.com/corvid-ide/corvid/status"
	"github.com/corvid-ide/corvid/wire"
)

// outboundQueueDepth bounds the client's pending-write queue.
const outboundQueueDepth = 64

// Client is a single connection to a daemon. All exported methods are safe
// for concurrent use by multiple callers.
type Client struct {
	conn          net.Conn
	maxFrameBytes uint32
	requestID     atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan wire.Envelope
	closed  atomic.Bool

	sendMu sync.Mutex
	out    chan []byte
}

// Dial connects to addr, then performs the mandatory Ping/Pong handshake
// within connectionTimeout. On any failure the connection is closed and a
// Transport error is returned.
func Dial(ctx context.Context, addr string, maxFrameBytes uint32, connectionTimeout time.Duration) (*Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, status.New(status.Transport, err.Error())
	}

	c := &Client{
		conn:          conn,
		maxFrameBytes: maxFrameBytes,
		pending:       make(map[uint64]chan wire.Envelope),
		out:           make(chan []byte, outboundQueueDepth),
	}
	xgo.Go(c.readLoop)
	xgo.Go(c.writeLoop)

	hctx, hcancel := context.WithTimeout(ctx, connectionTimeout)
	defer hcancel()
	if _, err := c.Call(hctx, wire.Ping{}, 0); err != nil {
		_ = c.Close()
		return nil, status.New(status.Transport, fmt.Sprintf("handshake: %v", err))
	}
	return c, nil
}

// Call sends payload as a new request, waits for its response (or deadline,
// or ctx cancellation), and returns the resolved payload or an error. A
// deadline of 0 means no deadline is attached to the wire request.
func (c *Client) Call(ctx context.Context, payload wire.Payload, deadline time.Duration) (wire.Payload, error) {
	id := c.requestID.Add(1)
	var deadlineMillis uint64
	if deadline > 0 {
		deadlineMillis = uint64(time.Now().Add(deadline).UnixMilli())
	}

	ch := make(chan wire.Envelope, 1)
	if c.closed.Load() {
		return nil, status.New(status.Transport, "closed")
	}
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.send(wire.New(id, deadlineMillis, payload)); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, err
	}

	select {
	case resp := <-ch:
		return resolve(resp)
	case <-ctx.Done():
		cancelID := c.requestID.Add(1)
		if err := c.send(wire.New(cancelID, 0, wire.Cancel{TargetID: id})); err != nil {
			slog.Warn("fault to send cancel for caller-cancelled call", slog.Uint64("target_id", id), slog.Any("error", err))
		}
		resp := <-ch
		return resolve(resp)
	}
}

func resolve(env wire.Envelope) (wire.Payload, error) {
	if e, ok := env.Payload.(wire.Error); ok {
		return nil, status.New(e.Kind, e.Message)
	}
	return env.Payload, nil
}

// Close shuts the connection down and fails every still-pending call with
// Error{Transport}.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := c.conn.Close()
	c.sendMu.Lock()
	close(c.out)
	c.sendMu.Unlock()
	c.failAll()
	return err
}

func (c *Client) failAll() {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[uint64]chan wire.Envelope)
	c.mu.Unlock()
	for id, ch := range pending {
		ch <- wire.New(id, 0, wire.Error{Kind: status.Transport, Message: "closed"})
	}
}

func (c *Client) send(env wire.Envelope) error {
	b, err := frame.Encode(env, c.maxFrameBytes)
	if err != nil {
		return err
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed.Load() {
		return status.New(status.Transport, "closed")
	}
	c.out <- b
	return nil
}

func (c *Client) readLoop() {
	for {
		env, err := frame.Decode(c.conn, c.maxFrameBytes)
		if err != nil {
			_ = c.Close()
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[env.RequestID]
		if ok {
			delete(c.pending, env.RequestID)
		}
		c.mu.Unlock()
		if ok {
			ch <- env
		}
	}
}

func (c *Client) writeLoop() {
	for b := range c.out {
		if _, err := c.conn.Write(b); err != nil {
			_ = c.Close()
			return
		}
	}
}
