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
	"log/slog"
	"net"
	"sync"

	"github.com/tombee/scriptdbg/internal/framing"
)

// TCP serves a single debug client on 0.0.0.0:port. Once a client has
// attached, further connection attempts are accepted and immediately closed.
type TCP struct {
	base
	port int

	mu     sync.Mutex
	ln     net.Listener
	client net.Conn
	taken  bool
}

// NewTCP creates a TCP connection listening on the given port.
func NewTCP(port int, strategy framing.Strategy, logger *slog.Logger) *TCP {
	t := &TCP{base: newBase(strategy, logger), port: port}
	t.self = t
	return t
}

func (t *TCP) OnServeStart() error {
	ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", t.port))
	if err != nil {
		return fmt.Errorf("connection: listening on port %d: %w", t.port, err)
	}
	t.mu.Lock()
	t.ln = ln
	t.mu.Unlock()
	go t.accept(ln)
	return nil
}

// Addr returns the bound listen address, useful when port 0 was requested.
func (t *TCP) Addr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ln == nil {
		return nil
	}
	return t.ln.Addr()
}

func (t *TCP) accept(ln net.Listener) {
	for {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		t.mu.Lock()
		if t.taken {
			t.mu.Unlock()
			c.Close()
			continue
		}
		t.taken = true
		t.client = c
		t.mu.Unlock()

		t.logger.Debug("tcp client attached", "connection", t.ID(), "remote", c.RemoteAddr())
		t.markConnected(c)
		go func() {
			t.pump(c)
			c.Close()
		}()
	}
}

func (t *TCP) OnConnectionShuttingDown() {
	t.markDisconnected()
	t.mu.Lock()
	ln, client := t.ln, t.client
	t.ln, t.client = nil, nil
	t.mu.Unlock()
	if client != nil {
		client.Close()
	}
	if ln != nil {
		ln.Close()
	}
}
