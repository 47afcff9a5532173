// Copyright 2025 Tom Barlow
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

// Package framing chunks a byte stream into logical protocol messages.
//
// A Strategy consumes bytes from a growable buffer and returns the next
// complete message, removing what it consumed. It returns the empty string
// while no complete message is available, so callers drain it in a loop: a
// single read may carry several messages.
package framing

import (
	"bytes"
	"errors"
)

// ErrFraming reports that the stream cannot be framed, e.g. malformed JSON.
var ErrFraming = errors.New("framing: malformed message stream")

// Strategy arranges a raw byte stream into logical messages.
type Strategy interface {
	// BufferMessage extracts the next complete message from raw, removing
	// the consumed bytes. It returns "" when no message is ready.
	BufferMessage(raw *bytes.Buffer) (string, error)

	// Reset clears any partial framing state.
	Reset()
}

// Outbound is implemented by strategies that transform messages before they
// go on the wire, e.g. wrapping them in an envelope.
type Outbound interface {
	// OutMessage returns the wire form of msg.
	OutMessage(msg string) string
}
