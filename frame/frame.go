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

// Package frame encodes and decodes a single framed message on a byte
// stream: MAGIC(4) | VERSION(1) | FLAGS(1) | LENGTH(4, big-endian) | CRC32(4)
// | PAYLOAD(LENGTH bytes). It enforces a maximum payload length and verifies
// the CRC32 (IEEE polynomial) computed over the payload alone.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/corvid-ide/corvid/wire"
)

const (
	// HeaderSize is the fixed byte length of MAGIC+VERSION+FLAGS+LENGTH+CRC32.
	HeaderSize = 4 + 1 + 1 + 4 + 4
	// DefaultMaxFrameBytes is the default per-frame payload cap.
	DefaultMaxFrameBytes = 1 << 20
)

var magic = [4]byte{'C', 'R', 'V', 'D'}

const version byte = 1

// Sentinel errors distinguishing the ways a frame can be rejected. Each wraps
// a short message so callers can log the specific reason while still
// matching with errors.Is.
var (
	ErrFrameTooLarge = errors.New("frame: payload exceeds limit")
	ErrBadMagic      = errors.New("frame: bad magic")
	ErrBadVersion    = errors.New("frame: unsupported version")
	ErrBadChecksum   = errors.New("frame: checksum mismatch")
	ErrBadPayload    = wire.ErrBadPayload
)

// Encode serializes env and wraps it in a frame header, rejecting with
// ErrFrameTooLarge if the serialized payload exceeds limit.
func Encode(env wire.Envelope, limit uint32) ([]byte, error) {
	payload, err := wire.Encode(env)
	if err != nil {
		return nil, err
	}
	if uint32(len(payload)) > limit {
		return nil, fmt.Errorf("%w: %d bytes > limit %d", ErrFrameTooLarge, len(payload), limit)
	}

	out := make([]byte, HeaderSize+len(payload))
	copy(out[0:4], magic[:])
	out[4] = version
	out[5] = 0 // FLAGS: reserved zero
	binary.BigEndian.PutUint32(out[6:10], uint32(len(payload)))
	binary.BigEndian.PutUint32(out[10:14], crc32.ChecksumIEEE(payload))
	copy(out[HeaderSize:], payload)
	return out, nil
}

// Decode reads exactly one frame from r: a 14-byte header followed by
// LENGTH payload bytes. It enforces limit against LENGTH before reading the
// payload, so an oversized claimed length never causes an unbounded read.
func Decode(r io.Reader, limit uint32) (wire.Envelope, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return wire.Envelope{}, err
	}
	if header[0] != magic[0] || header[1] != magic[1] || header[2] != magic[2] || header[3] != magic[3] {
		return wire.Envelope{}, ErrBadMagic
	}
	if header[4] != version {
		return wire.Envelope{}, ErrBadVersion
	}
	length := binary.BigEndian.Uint32(header[6:10])
	wantCRC := binary.BigEndian.Uint32(header[10:14])
	if length > limit {
		return wire.Envelope{}, fmt.Errorf("%w: %d bytes > limit %d", ErrFrameTooLarge, length, limit)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return wire.Envelope{}, err
	}
	if crc32.ChecksumIEEE(payload) != wantCRC {
		return wire.Envelope{}, ErrBadChecksum
	}

	env, err := wire.Decode(payload)
	if err != nil {
		return wire.Envelope{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return env, nil
}
