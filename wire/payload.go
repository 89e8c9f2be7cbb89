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

// Package wire defines the envelope and the tagged request/response union
// carried inside every frame, plus the codec between an Envelope and the
// bytes a frame carries as its payload.
package wire

import "github.com/corvid-ide/corvid/status"

// Payload is the closed set of request and response variants an envelope may
// carry. It is a tagged union dispatched by a type switch, not a deep
// interface hierarchy: see tag() for the wire discriminant of each variant.
type Payload interface {
	tag() payloadTag
}

type payloadTag uint8

const (
	tagPing payloadTag = iota
	tagOpenBuffer
	tagSaveBuffer
	tagCloseBuffer
	tagSearch
	tagCancel
	tagGetStats
	tagPong
	tagBufferOpened
	tagBufferSaved
	tagBufferClosed
	tagSearchResults
	tagStats
	tagError
)

// --- requests ---

// Ping asks the peer to reply Pong; used for both the handshake and liveness checks.
type Ping struct{}

func (Ping) tag() payloadTag { return tagPing }

// OpenBuffer requests the handler load Path into a buffer and return its id.
type OpenBuffer struct {
	Path string
}

func (OpenBuffer) tag() payloadTag { return tagOpenBuffer }

// SaveBuffer requests the handler persist Contents under the buffer identified by ID.
type SaveBuffer struct {
	ID       uint64
	Contents []byte
}

func (SaveBuffer) tag() payloadTag { return tagSaveBuffer }

// CloseBuffer requests the handler drop the buffer identified by ID.
type CloseBuffer struct {
	ID uint64
}

func (CloseBuffer) tag() payloadTag { return tagCloseBuffer }

// Search requests a line-pattern search under Root, capped at MaxResults matches.
type Search struct {
	Root       string
	Pattern    string
	MaxResults uint32
}

func (Search) tag() payloadTag { return tagSearch }

// Cancel requests cooperative cancellation of the in-flight request TargetID.
type Cancel struct {
	TargetID uint64
}

func (Cancel) tag() payloadTag { return tagCancel }

// GetStats requests a snapshot of the dispatcher's counters.
type GetStats struct{}

func (GetStats) tag() payloadTag { return tagGetStats }

// --- responses ---

// Pong answers Ping, and also serves as the Cancel acknowledgement.
type Pong struct{}

func (Pong) tag() payloadTag { return tagPong }

// BufferOpened answers OpenBuffer with the newly allocated buffer id.
type BufferOpened struct {
	ID uint64
}

func (BufferOpened) tag() payloadTag { return tagBufferOpened }

// BufferSaved answers a successful SaveBuffer.
type BufferSaved struct{}

func (BufferSaved) tag() payloadTag { return tagBufferSaved }

// BufferClosed answers CloseBuffer, including when the id was already unknown.
type BufferClosed struct{}

func (BufferClosed) tag() payloadTag { return tagBufferClosed }

// SearchItem is one match line returned by Search.
type SearchItem struct {
	Path string
	Line uint32
	Text string
}

// SearchResults answers Search with the matches found, capped at MaxResults.
type SearchResults struct {
	Items     []SearchItem
	Truncated bool
}

func (SearchResults) tag() payloadTag { return tagSearchResults }

// Stats answers GetStats with a snapshot of the dispatcher counters.
type Stats struct {
	Cancels      uint64
	Deadlines    uint64
	Backpressure uint64
	InFlight     uint64
}

func (Stats) tag() payloadTag { return tagStats }

// Error answers any request the dispatcher or handler could not satisfy.
type Error struct {
	Kind    status.Kind
	Message string
}

func (Error) tag() payloadTag { return tagError }
