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

package framing

import (
	"bytes"
	"strings"
)

// Wire markers delimiting one envelope payload.
const (
	StartMagic = `[== "CMake Server" ==[`
	EndMagic   = `]== "CMake Server" ==]`
)

// Envelope frames messages delimited by magic marker lines. Bytes between an
// open and close marker form the payload; an open marker discards any
// partially accumulated payload.
type Envelope struct {
	request strings.Builder
}

// NewEnvelope returns an envelope framing strategy.
func NewEnvelope() *Envelope {
	return &Envelope{}
}

func (e *Envelope) BufferMessage(raw *bytes.Buffer) (string, error) {
	for {
		line, ok := cutLine(raw)
		if !ok {
			return "", nil
		}
		switch line {
		case StartMagic:
			e.request.Reset()
		case EndMagic:
			msg := e.request.String()
			e.request.Reset()
			return msg, nil
		default:
			e.request.WriteString(line)
			e.request.WriteString("\n")
		}
	}
}

func (e *Envelope) Reset() {
	e.request.Reset()
}

// OutMessage wraps msg in the envelope markers. Payloads are expected to end
// with a newline, which keeps the close marker on its own line.
func (e *Envelope) OutMessage(msg string) string {
	return "\n" + StartMagic + "\n" + msg + EndMagic + "\n"
}
