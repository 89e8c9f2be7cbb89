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

// Envelope is the logical on-wire message: a client-assigned correlation id,
// an optional wall-clock deadline, and a tagged payload.
type Envelope struct {
	RequestID      uint64
	DeadlineMillis uint64
	Payload        Payload
}

// New builds an envelope. DeadlineMillis of 0 means "no deadline."
func New(requestID uint64, deadlineMillis uint64, payload Payload) Envelope {
	return Envelope{RequestID: requestID, DeadlineMillis: deadlineMillis, Payload: payload}
}
