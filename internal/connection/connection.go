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

// Package connection abstracts one duplex transport attached to a debug
// server: it receives raw bytes, frames them into logical requests, queues
// the requests for the server's reactor goroutine and accepts write
// requests. Transports are standard I/O, a unix socket acting as a named
// pipe, and TCP.
package connection

import (
	"bytes"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/tombee/scriptdbg/internal/framing"
)

// Server is the owner of a set of connections. Implementations dispatch the
// callbacks onto their reactor goroutine; the callbacks themselves must not
// block.
type Server interface {
	// OnConnected fires when a transport has a live peer.
	OnConnected(c Connection)

	// OnDisconnect fires when the peer goes away. The server removes the
	// connection from its active set.
	OnDisconnect(c Connection)

	// OnRequestReady fires after QueueRequest added at least one framed
	// request; the server schedules ProcessNextRequest on its reactor.
	OnRequestReady(c Connection)

	// OnFramingError fires when the framing strategy rejects the byte
	// stream. The connection survives; the strategy has been reset.
	OnFramingError(c Connection, err error)
}

// Connection is one duplex transport instance.
type Connection interface {
	// ID identifies the connection in logs.
	ID() string

	// OnServeStart binds, listens or otherwise brings the transport up.
	// Returned errors are fatal for serving.
	OnServeStart() error

	// OnConnectionShuttingDown closes the transport's streams. Idempotent.
	OnConnectionShuttingDown()

	// IsOpen reports whether a peer is attached and writable.
	IsOpen() bool

	// WriteData sends data to the peer, applying the strategy's outbound
	// transform when it defines one.
	WriteData(data string)

	// ReadData feeds received bytes into the framing strategy.
	ReadData(data []byte)

	// QueueRequest appends a framed request to the queue.
	QueueRequest(request string)

	// ProcessNextRequest pops the oldest queued request.
	ProcessNextRequest() (string, bool)

	// SetServer attaches the owning server. Must be called before
	// OnServeStart.
	SetServer(s Server)
}

// base carries the framing, queueing and write plumbing shared by every
// transport.
type base struct {
	id       string
	logger   *slog.Logger
	strategy framing.Strategy
	server   Server

	// self points at the embedding transport so server callbacks receive
	// the full Connection.
	self Connection

	mu    sync.Mutex
	raw   bytes.Buffer
	queue []string

	writeMu sync.Mutex
	writer  io.Writer

	open atomic.Bool
}

func newBase(strategy framing.Strategy, logger *slog.Logger) base {
	if logger == nil {
		logger = slog.Default()
	}
	return base{
		id:       uuid.NewString(),
		logger:   logger,
		strategy: strategy,
	}
}

func (b *base) ID() string { return b.id }

func (b *base) SetServer(s Server) { b.server = s }

func (b *base) IsOpen() bool { return b.open.Load() }

// markConnected attaches the peer's write side and tells the server.
func (b *base) markConnected(w io.Writer) {
	b.writeMu.Lock()
	b.writer = w
	b.writeMu.Unlock()
	b.open.Store(true)
	if b.server != nil {
		b.server.OnConnected(b.self)
	}
}

// markDisconnected drops the peer and tells the server.
func (b *base) markDisconnected() {
	if !b.open.Swap(false) {
		return
	}
	b.writeMu.Lock()
	b.writer = nil
	b.writeMu.Unlock()
	if b.server != nil {
		b.server.OnDisconnect(b.self)
	}
}

func (b *base) ReadData(data []byte) {
	b.mu.Lock()
	b.raw.Write(data)
	queued := false
	var ferr error
	for {
		msg, err := b.strategy.BufferMessage(&b.raw)
		if err != nil {
			b.strategy.Reset()
			b.raw.Reset()
			ferr = err
			break
		}
		if msg == "" {
			break
		}
		b.queue = append(b.queue, msg)
		queued = true
	}
	b.mu.Unlock()

	if ferr != nil && b.server != nil {
		b.server.OnFramingError(b.self, ferr)
	}
	if queued && b.server != nil {
		b.server.OnRequestReady(b.self)
	}
}

func (b *base) QueueRequest(request string) {
	b.mu.Lock()
	b.queue = append(b.queue, request)
	b.mu.Unlock()
	if b.server != nil {
		b.server.OnRequestReady(b.self)
	}
}

func (b *base) ProcessNextRequest() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return "", false
	}
	msg := b.queue[0]
	b.queue = b.queue[1:]
	return msg, true
}

func (b *base) WriteData(data string) {
	if out, ok := b.strategy.(framing.Outbound); ok {
		data = out.OutMessage(data)
	}
	b.writeMu.Lock()
	w := b.writer
	b.writeMu.Unlock()
	if w == nil {
		return
	}
	if _, err := io.WriteString(w, data); err != nil {
		b.logger.Debug("connection write failed", "connection", b.id, "error", err)
	}
}

// pump copies r into the framing layer until EOF or error, then reports the
// disconnect. Run on a dedicated goroutine per read stream.
func (b *base) pump(r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			b.ReadData(buf[:n])
		}
		if err != nil {
			if err != io.EOF {
				b.logger.Debug("connection read failed", "connection", b.id, "error", err)
			}
			b.markDisconnected()
			return
		}
	}
}
