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
	"fmt"

	"github.com/tidwall/gjson"
)

// JSON frames a stream of concatenated top-level JSON objects by tracking
// object depth. A message is complete when the depth returns to zero. The
// scanner accepts arbitrary fragmentation, down to single bytes per feed, and
// tolerates whitespace and commas between objects so the stream may look like
// the inside of one giant array.
type JSON struct {
	msg      bytes.Buffer
	depth    int
	inString bool
	escaped  bool
}

// NewJSON returns a balanced-brace JSON framing strategy.
func NewJSON() *JSON {
	return &JSON{}
}

func (j *JSON) BufferMessage(raw *bytes.Buffer) (string, error) {
	for raw.Len() > 0 {
		b, _ := raw.ReadByte()

		if j.depth == 0 {
			switch b {
			case '{':
				j.msg.Reset()
				j.msg.WriteByte(b)
				j.depth = 1
			case ' ', '\t', '\r', '\n', ',':
			default:
				return "", fmt.Errorf("%w: unexpected byte %q between objects", ErrFraming, b)
			}
			continue
		}

		j.msg.WriteByte(b)

		if j.inString {
			switch {
			case j.escaped:
				j.escaped = false
			case b == '\\':
				j.escaped = true
			case b == '"':
				j.inString = false
			}
			continue
		}

		switch b {
		case '"':
			j.inString = true
		case '{':
			j.depth++
		case '}':
			j.depth--
			if j.depth == 0 {
				msg := j.msg.String()
				j.msg.Reset()
				if !gjson.Valid(msg) {
					return "", fmt.Errorf("%w: %q is not a JSON object", ErrFraming, msg)
				}
				return msg, nil
			}
		}
	}
	return "", nil
}

func (j *JSON) Reset() {
	j.msg.Reset()
	j.depth = 0
	j.inString = false
	j.escaped = false
}
