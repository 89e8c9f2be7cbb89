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

package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvid-ide/corvid/wire"
)

var errBoundedReaderExhausted = errors.New("frame_test: bounded reader exhausted")

func TestEncodeDecodeRoundTrip(t *testing.T) {
	env := wire.New(42, 0, wire.OpenBuffer{Path: "/tmp/t.txt"})

	b, err := Encode(env, DefaultMaxFrameBytes)
	require.NoError(t, err)
	assert.Len(t, b, HeaderSize+len(mustEncodePayloadLen(t, env)))

	got, err := Decode(bytes.NewReader(b), DefaultMaxFrameBytes)
	require.NoError(t, err)
	assert.Equal(t, env, got)
}

func TestDecodeRejectsCorruptedChecksum(t *testing.T) {
	env := wire.New(1, 0, wire.Ping{})
	b, err := Encode(env, DefaultMaxFrameBytes)
	require.NoError(t, err)

	// Flip the first payload byte (the top byte of request_id), right after
	// the 14-byte header, without fixing up the CRC.
	b[HeaderSize] ^= 0xFF

	_, err = Decode(bytes.NewReader(b), DefaultMaxFrameBytes)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadChecksum))
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	env := wire.New(1, 0, wire.Ping{})
	b, err := Encode(env, DefaultMaxFrameBytes)
	require.NoError(t, err)
	b[0] = 'X'

	_, err = Decode(bytes.NewReader(b), DefaultMaxFrameBytes)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadMagic))
}

func TestDecodeRejectsBadVersion(t *testing.T) {
	env := wire.New(1, 0, wire.Ping{})
	b, err := Encode(env, DefaultMaxFrameBytes)
	require.NoError(t, err)
	b[4] = 99

	_, err = Decode(bytes.NewReader(b), DefaultMaxFrameBytes)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadVersion))
}

func TestEncodeRejectsOversizePayload(t *testing.T) {
	env := wire.New(1, 0, wire.SaveBuffer{ID: 1, Contents: bytes.Repeat([]byte{0x41}, 1024)})

	_, err := Encode(env, 16)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFrameTooLarge))
}

func TestDecodeRejectsOversizeClaimedLengthWithoutReadingPayload(t *testing.T) {
	env := wire.New(1, 0, wire.SaveBuffer{ID: 1, Contents: bytes.Repeat([]byte{0x41}, 1024)})
	b, err := Encode(env, DefaultMaxFrameBytes)
	require.NoError(t, err)

	// A reader that errors on any read past the header proves decode never
	// attempts to consume the oversized payload once LENGTH fails the check.
	r := &boundedReader{data: b, limit: HeaderSize}
	_, err = Decode(r, 16)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFrameTooLarge))
}

func TestDecodeRejectsMalformedPayloadAsBadPayload(t *testing.T) {
	env := wire.New(1, 0, wire.Ping{})
	b, err := Encode(env, DefaultMaxFrameBytes)
	require.NoError(t, err)

	// Corrupt the tag byte (after the header and the two 8-byte uint64
	// fields) to an unknown value but fix up the CRC so the corruption is
	// only caught at payload decode time.
	b[HeaderSize+16] = 0xFE
	fixChecksum(b)

	_, err = Decode(bytes.NewReader(b), DefaultMaxFrameBytes)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadPayload))
}

func TestDecodeEOFMidHeaderIsTransportClassError(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte{'C', 'R'}), DefaultMaxFrameBytes)
	require.Error(t, err)
}

func mustEncodePayloadLen(t *testing.T, env wire.Envelope) []byte {
	t.Helper()
	b, err := wire.Encode(env)
	require.NoError(t, err)
	return b
}

func fixChecksum(b []byte) {
	payload := b[HeaderSize:]
	binary.BigEndian.PutUint32(b[10:14], crc32.ChecksumIEEE(payload))
}

type boundedReader struct {
	data  []byte
	limit int
	pos   int
}

func (r *boundedReader) Read(p []byte) (int, error) {
	if r.pos >= r.limit {
		return 0, errBoundedReaderExhausted
	}
	n := copy(p, r.data[r.pos:min(r.limit, len(r.data))])
	r.pos += n
	if n == 0 {
		return 0, errBoundedReaderExhausted
	}
	return n, nil
}
