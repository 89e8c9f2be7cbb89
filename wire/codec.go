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

package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/corvid-ide/corvid/status"
)

// ErrBadPayload is returned when a byte slice does not deserialize into a
// well-formed envelope, or deserializes with trailing bytes left over.
var ErrBadPayload = errors.New("wire: malformed payload")

// Encode serializes an envelope into the compact binary form a frame carries
// as its payload. Field order is fixed: request_id, deadline_millis, then the
// tagged payload. Numeric fields are big-endian; the exact layout is an
// implementation detail but is stable across releases of this package.
func Encode(env Envelope) ([]byte, error) {
	var buf []byte
	buf = appendUint64(buf, env.RequestID)
	buf = appendUint64(buf, env.DeadlineMillis)
	buf = append(buf, byte(env.Payload.tag()))

	var err error
	switch p := env.Payload.(type) {
	case Ping:
	case OpenBuffer:
		buf = appendString(buf, p.Path)
	case SaveBuffer:
		buf = appendUint64(buf, p.ID)
		buf = appendBytes(buf, p.Contents)
	case CloseBuffer:
		buf = appendUint64(buf, p.ID)
	case Search:
		buf = appendString(buf, p.Root)
		buf = appendString(buf, p.Pattern)
		buf = appendUint32(buf, p.MaxResults)
	case Cancel:
		buf = appendUint64(buf, p.TargetID)
	case GetStats:
	case Pong:
	case BufferOpened:
		buf = appendUint64(buf, p.ID)
	case BufferSaved:
	case BufferClosed:
	case SearchResults:
		buf = appendUint32(buf, uint32(len(p.Items)))
		for _, it := range p.Items {
			buf = appendString(buf, it.Path)
			buf = appendUint32(buf, it.Line)
			buf = appendString(buf, it.Text)
		}
		buf = appendBool(buf, p.Truncated)
	case Stats:
		buf = appendUint64(buf, p.Cancels)
		buf = appendUint64(buf, p.Deadlines)
		buf = appendUint64(buf, p.Backpressure)
		buf = appendUint64(buf, p.InFlight)
	case Error:
		buf = append(buf, byte(p.Kind))
		buf = appendString(buf, p.Message)
	default:
		err = fmt.Errorf("wire: unknown payload type %T", env.Payload)
	}
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// Decode deserializes bytes produced by Encode back into an envelope.
// Any leftover bytes after the last field of a recognized payload is decoded
// is treated as ErrBadPayload, matching the "exactly one envelope" invariant.
func Decode(b []byte) (Envelope, error) {
	r := &reader{buf: b}
	requestID, err := r.uint64()
	if err != nil {
		return Envelope{}, err
	}
	deadline, err := r.uint64()
	if err != nil {
		return Envelope{}, err
	}
	tagByte, err := r.byte()
	if err != nil {
		return Envelope{}, err
	}

	var payload Payload
	switch payloadTag(tagByte) {
	case tagPing:
		payload = Ping{}
	case tagOpenBuffer:
		path, derr := r.string()
		if derr != nil {
			return Envelope{}, derr
		}
		payload = OpenBuffer{Path: path}
	case tagSaveBuffer:
		id, derr := r.uint64()
		if derr != nil {
			return Envelope{}, derr
		}
		contents, derr := r.bytes()
		if derr != nil {
			return Envelope{}, derr
		}
		payload = SaveBuffer{ID: id, Contents: contents}
	case tagCloseBuffer:
		id, derr := r.uint64()
		if derr != nil {
			return Envelope{}, derr
		}
		payload = CloseBuffer{ID: id}
	case tagSearch:
		root, derr := r.string()
		if derr != nil {
			return Envelope{}, derr
		}
		pattern, derr := r.string()
		if derr != nil {
			return Envelope{}, derr
		}
		maxResults, derr := r.uint32()
		if derr != nil {
			return Envelope{}, derr
		}
		payload = Search{Root: root, Pattern: pattern, MaxResults: maxResults}
	case tagCancel:
		id, derr := r.uint64()
		if derr != nil {
			return Envelope{}, derr
		}
		payload = Cancel{TargetID: id}
	case tagGetStats:
		payload = GetStats{}
	case tagPong:
		payload = Pong{}
	case tagBufferOpened:
		id, derr := r.uint64()
		if derr != nil {
			return Envelope{}, derr
		}
		payload = BufferOpened{ID: id}
	case tagBufferSaved:
		payload = BufferSaved{}
	case tagBufferClosed:
		payload = BufferClosed{}
	case tagSearchResults:
		n, derr := r.uint32()
		if derr != nil {
			return Envelope{}, derr
		}
		items := make([]SearchItem, 0, n)
		for i := uint32(0); i < n; i++ {
			path, derr2 := r.string()
			if derr2 != nil {
				return Envelope{}, derr2
			}
			line, derr2 := r.uint32()
			if derr2 != nil {
				return Envelope{}, derr2
			}
			text, derr2 := r.string()
			if derr2 != nil {
				return Envelope{}, derr2
			}
			items = append(items, SearchItem{Path: path, Line: line, Text: text})
		}
		truncated, derr := r.boolean()
		if derr != nil {
			return Envelope{}, derr
		}
		payload = SearchResults{Items: items, Truncated: truncated}
	case tagStats:
		cancels, derr := r.uint64()
		if derr != nil {
			return Envelope{}, derr
		}
		deadlines, derr := r.uint64()
		if derr != nil {
			return Envelope{}, derr
		}
		backpressure, derr := r.uint64()
		if derr != nil {
			return Envelope{}, derr
		}
		inFlight, derr := r.uint64()
		if derr != nil {
			return Envelope{}, derr
		}
		payload = Stats{Cancels: cancels, Deadlines: deadlines, Backpressure: backpressure, InFlight: inFlight}
	case tagError:
		kindByte, derr := r.byte()
		if derr != nil {
			return Envelope{}, derr
		}
		msg, derr := r.string()
		if derr != nil {
			return Envelope{}, derr
		}
		payload = Error{Kind: status.Kind(kindByte), Message: msg}
	default:
		return Envelope{}, fmt.Errorf("%w: unknown payload tag %d", ErrBadPayload, tagByte)
	}

	if !r.exhausted() {
		return Envelope{}, fmt.Errorf("%w: trailing bytes", ErrBadPayload)
	}
	return Envelope{RequestID: requestID, DeadlineMillis: deadline, Payload: payload}, nil
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendBool(buf []byte, v bool) []byte {
	if v {
		return append(buf, 1)
	}
	return append(buf, 0)
}

func appendBytes(buf []byte, v []byte) []byte {
	buf = appendUint32(buf, uint32(len(v)))
	return append(buf, v...)
}

func appendString(buf []byte, v string) []byte {
	return appendBytes(buf, []byte(v))
}

type reader struct {
	buf []byte
	pos int
}

func (r *reader) exhausted() bool { return r.pos >= len(r.buf) }

func (r *reader) byte() (byte, error) {
	if r.pos+1 > len(r.buf) {
		return 0, fmt.Errorf("%w: unexpected end of payload", ErrBadPayload)
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) uint32() (uint32, error) {
	if r.pos+4 > len(r.buf) {
		return 0, fmt.Errorf("%w: unexpected end of payload", ErrBadPayload)
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *reader) uint64() (uint64, error) {
	if r.pos+8 > len(r.buf) {
		return 0, fmt.Errorf("%w: unexpected end of payload", ErrBadPayload)
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

func (r *reader) boolean() (bool, error) {
	b, err := r.byte()
	return b != 0, err
}

func (r *reader) bytes() ([]byte, error) {
	n, err := r.uint32()
	if err != nil {
		return nil, err
	}
	if r.pos+int(n) > len(r.buf) {
		return nil, fmt.Errorf("%w: unexpected end of payload", ErrBadPayload)
	}
	v := make([]byte, n)
	copy(v, r.buf[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return v, nil
}

func (r *reader) string() (string, error) {
	b, err := r.bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
