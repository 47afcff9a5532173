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
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/tombee/scriptdbg/internal/framing"
)

// Pipe serves a single debug client on a named pipe, realized as a unix
// domain socket at the given path. All pipes but the first are accepted and
// closed right away.
type Pipe struct {
	base
	path string

	mu     sync.Mutex
	ln     net.Listener
	client net.Conn
	taken  bool
}

// NewPipe creates a pipe connection bound to path.
func NewPipe(path string, strategy framing.Strategy, logger *slog.Logger) *Pipe {
	p := &Pipe{base: newBase(strategy, logger), path: path}
	p.self = p
	return p
}

func (p *Pipe) OnServeStart() error {
	// A stale socket file from a crashed run would fail the bind.
	if err := os.Remove(p.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("connection: removing stale pipe %s: %w", p.path, err)
	}
	ln, err := net.Listen("unix", p.path)
	if err != nil {
		return fmt.Errorf("connection: listening on pipe %s: %w", p.path, err)
	}
	p.mu.Lock()
	p.ln = ln
	p.mu.Unlock()
	go p.accept(ln)
	return nil
}

func (p *Pipe) accept(ln net.Listener) {
	for {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		p.mu.Lock()
		if p.taken {
			p.mu.Unlock()
			c.Close()
			continue
		}
		p.taken = true
		p.client = c
		p.mu.Unlock()

		p.logger.Debug("pipe client attached", "connection", p.ID(), "path", p.path)
		p.markConnected(c)
		go func() {
			p.pump(c)
			c.Close()
		}()
	}
}

func (p *Pipe) OnConnectionShuttingDown() {
	p.markDisconnected()
	p.mu.Lock()
	ln, client := p.ln, p.client
	p.ln, p.client = nil, nil
	p.mu.Unlock()
	if client != nil {
		client.Close()
	}
	if ln != nil {
		ln.Close()
	}
	os.Remove(p.path)
}
