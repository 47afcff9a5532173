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

// Line frames newline-terminated messages. A trailing carriage return is
// stripped from lines longer than one byte, so both \n and \r\n terminated
// input work; a line consisting of a lone \r is returned unchanged.
type Line struct{}

// NewLine returns a line framing strategy.
func NewLine() *Line {
	return &Line{}
}

func (*Line) BufferMessage(raw *bytes.Buffer) (string, error) {
	data := raw.Bytes()
	needle := bytes.IndexByte(data, '\n')
	if needle < 0 {
		return "", nil
	}
	line := string(data[:needle])
	raw.Next(needle + 1)
	if ls := len(line); ls > 1 && line[ls-1] == '\r' {
		line = line[:ls-1]
	}
	return line, nil
}

func (*Line) Reset() {}

// cutLine extracts the next \n-terminated line from raw, stripping a
// trailing \r. Shared with the envelope strategy, which is line based.
func cutLine(raw *bytes.Buffer) (string, bool) {
	data := raw.Bytes()
	needle := bytes.IndexByte(data, '\n')
	if needle < 0 {
		return "", false
	}
	line := string(data[:needle])
	raw.Next(needle + 1)
	line = strings.TrimSuffix(line, "\r")
	return line, true
}
