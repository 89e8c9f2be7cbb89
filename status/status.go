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

// Package status defines the error taxonomy carried in Error envelopes and
// maps it onto the standard gRPC status codes so the kinds line up with
// conventions the rest of the ecosystem already understands.
package status

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genproto/googleapis/rpc/code"
)

// Kind is the closed set of error kinds a handler or the dispatcher may
// surface to a caller.
type Kind uint8

const (
	// InvalidArgument marks a malformed request, e.g. an empty path or pattern.
	InvalidArgument Kind = iota
	// NotFound marks an unknown buffer id or unknown path at open.
	NotFound
	// PermissionDenied marks a save outside the permitted roots or an unreadable file.
	PermissionDenied
	// Cancelled marks a worker that returned because its cancellation token fired.
	Cancelled
	// Deadline marks a request the dispatcher resolved because its deadline expired.
	Deadline
	// Backpressure marks a request rejected at admission because the in-flight cap was reached.
	Backpressure
	// Transport marks a connection-level failure: bad frame, lost connection, handshake timeout.
	Transport
	// Internal marks an unexpected handler failure.
	Internal
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "InvalidArgument"
	case NotFound:
		return "NotFound"
	case PermissionDenied:
		return "PermissionDenied"
	case Cancelled:
		return "Cancelled"
	case Deadline:
		return "Deadline"
	case Backpressure:
		return "Backpressure"
	case Transport:
		return "Transport"
	case Internal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Code returns the gRPC status code this kind is conventionally reported as.
func (k Kind) Code() code.Code {
	switch k {
	case InvalidArgument:
		return code.Code_INVALID_ARGUMENT
	case NotFound:
		return code.Code_NOT_FOUND
	case PermissionDenied:
		return code.Code_PERMISSION_DENIED
	case Cancelled:
		return code.Code_CANCELLED
	case Deadline:
		return code.Code_DEADLINE_EXCEEDED
	case Backpressure:
		return code.Code_RESOURCE_EXHAUSTED
	case Transport:
		return code.Code_UNAVAILABLE
	case Internal:
		return code.Code_INTERNAL
	default:
		return code.Code_UNKNOWN
	}
}

// Error is a structured error carrying one of the taxonomy's kinds plus a
// human-readable message. It is what a handler returns and what the
// dispatcher folds into an Error envelope.
type Error struct {
	Kind    Kind
	Message string
}

// New builds an Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf builds an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// As reports whether target is an *Error, satisfying errors.As.
func As(err error, target **Error) bool {
	return errors.As(err, target)
}

// FromContextError maps ctx.Err() onto the taxonomy: Cancelled for
// context.Canceled, Deadline for context.DeadlineExceeded, Internal otherwise.
func FromContextError(err error) *Error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return New(Cancelled, "context canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return New(Deadline, "context deadline exceeded")
	default:
		return New(Internal, err.Error())
	}
}

// Of recovers an *Error from err, wrapping anything else as Internal.
func Of(err error) *Error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return New(Internal, err.Error())
}
