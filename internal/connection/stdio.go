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
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/tombee/scriptdbg/internal/framing"
)

// Stdio attaches the debugger to the process's inherited standard streams.
// The input stream type decides the serving mode: terminals and pipes are
// read asynchronously, while a redirected regular file is read synchronously
// to completion and then signals a disconnect.
type Stdio struct {
	base
	in  *os.File
	out *os.File
}

// NewStdio creates a connection over os.Stdin / os.Stdout.
func NewStdio(strategy framing.Strategy, logger *slog.Logger) *Stdio {
	s := &Stdio{base: newBase(strategy, logger), in: os.Stdin, out: os.Stdout}
	s.self = s
	return s
}

func (s *Stdio) OnServeStart() error {
	info, err := s.in.Stat()
	if err != nil {
		return fmt.Errorf("connection: inspecting stdin: %w", err)
	}

	switch {
	case term.IsTerminal(int(s.in.Fd())):
		s.logger.Debug("stdio mode", "connection", s.ID(), "stream", "tty")
		s.markConnected(s.out)
		go s.pump(s.in)
	case info.Mode().IsRegular():
		// Scripted input: consume the whole file, then hang up.
		s.logger.Debug("stdio mode", "connection", s.ID(), "stream", "file")
		s.markConnected(s.out)
		data, err := io.ReadAll(s.in)
		if len(data) > 0 {
			s.ReadData(data)
		}
		if err != nil {
			s.logger.Debug("stdin read failed", "connection", s.ID(), "error", err)
		}
		s.markDisconnected()
	default:
		s.logger.Debug("stdio mode", "connection", s.ID(), "stream", "pipe")
		s.markConnected(s.out)
		go s.pump(s.in)
	}
	return nil
}

// OnConnectionShuttingDown detaches the peer; the inherited standard streams
// are left open.
func (s *Stdio) OnConnectionShuttingDown() {
	s.markDisconnected()
}
