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

package connection

import (
	"io"
	"log/slog"

	"github.com/tombee/scriptdbg/internal/framing"
)

// Stream wraps an arbitrary reader/writer pair as a connection. Hosts that
// embed the debugger behind their own transport use it directly, and so do
// the in-process tests.
type Stream struct {
	base
	r io.Reader
	w io.Writer
}

// NewStream creates a connection over the given streams. A nil reader makes
// a write-only connection.
func NewStream(r io.Reader, w io.Writer, strategy framing.Strategy, logger *slog.Logger) *Stream {
	s := &Stream{base: newBase(strategy, logger), r: r, w: w}
	s.self = s
	return s
}

func (s *Stream) OnServeStart() error {
	s.markConnected(s.w)
	if s.r != nil {
		go s.pump(s.r)
	}
	return nil
}

func (s *Stream) OnConnectionShuttingDown() {
	s.markDisconnected()
	if c, ok := s.r.(io.Closer); ok {
		c.Close()
	}
	if c, ok := s.w.(io.Closer); ok && any(s.w) != any(s.r) {
		c.Close()
	}
}
