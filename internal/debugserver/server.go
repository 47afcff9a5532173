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

// Package debugserver multiplexes remote debug clients onto a debugger
// engine. The server base owns a reactor goroutine that processes framed
// requests, drains the broadcast queue and reacts to the interrupt signal;
// the console and JSON protocol handlers build on it.
package debugserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/scriptdbg/internal/connection"
	"github.com/tombee/scriptdbg/internal/log"
	"github.com/tombee/scriptdbg/pkg/debugger"
)

var (
	// ErrAlreadyServing is returned when a second server starts while one
	// is live in this process.
	ErrAlreadyServing = errors.New("debugserver: a server is already serving")

	// ErrNotServing is returned by Shutdown when the server never started.
	ErrNotServing = errors.New("debugserver: server not serving")

	// ErrShutdownTimeout is returned when the reactor fails to drain in
	// time during shutdown.
	ErrShutdownTimeout = errors.New("debugserver: shutdown timeout exceeded")
)

// ServerState tracks the serve lifecycle.
type ServerState int32

const (
	StateInitialising ServerState = iota
	StateServing
	StateShuttingDown
	StateStopped
)

// serving enforces the one-serving-instance-per-process rule.
var serving atomic.Bool

// Handler receives each framed request on the reactor goroutine.
type Handler interface {
	ProcessRequest(c connection.Connection, request string)
}

// ConnectObserver is implemented by handlers that want to greet new clients,
// e.g. with a state push.
type ConnectObserver interface {
	OnClientConnected(c connection.Connection)
}

// FramingObserver is implemented by handlers that report framing errors to
// the client in-band.
type FramingObserver interface {
	OnClientFramingError(c connection.Connection, err error)
}

// Server is the protocol-agnostic base: it owns the reactor goroutine, the
// active connection set and the broadcast queue. Exactly one Server may be
// serving per process.
type Server struct {
	logger   *slog.Logger
	tracer   trace.Tracer
	protocol string
	dbg      *debugger.Debugger
	handler  Handler

	state atomic.Int32

	connMu sync.RWMutex
	conns  map[string]connection.Connection

	dispatch chan connection.Connection
	tasks    chan func()
	wake     *wakeHandle
	sig      *signalHandle

	broadcastMu    sync.Mutex
	broadcastQueue []string

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	done         chan struct{}
	shutdownErr  error
}

// NewServer creates a server base for the given engine, handler and initial
// connections. The protocol name labels logs, spans and metrics.
func NewServer(dbg *debugger.Debugger, handler Handler, protocol string, logger *slog.Logger, conns ...connection.Connection) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		logger:     logger.With("component", "debugserver", "protocol", protocol),
		tracer:     otel.Tracer("scriptdbg/debugserver"),
		protocol:   protocol,
		dbg:        dbg,
		handler:    handler,
		conns:      make(map[string]connection.Connection),
		dispatch:   make(chan connection.Connection, 128),
		tasks:      make(chan func(), 128),
		wake:       newWakeHandle(),
		sig:        newSignalHandle(os.Interrupt),
		shutdownCh: make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, c := range conns {
		c.SetServer(s)
		s.conns[c.ID()] = c
	}
	return s
}

// Debugger returns the engine this server drives.
func (s *Server) Debugger() *debugger.Debugger { return s.dbg }

// State returns the serve lifecycle state.
func (s *Server) State() ServerState { return ServerState(s.state.Load()) }

// Serve brings up every connection and starts the reactor. Transport errors
// abort serving and are returned.
func (s *Server) Serve() error {
	if !serving.CompareAndSwap(false, true) {
		return ErrAlreadyServing
	}
	if !s.state.CompareAndSwap(int32(StateInitialising), int32(StateServing)) {
		serving.Store(false)
		return fmt.Errorf("debugserver: serve from state %d", s.State())
	}

	s.connMu.RLock()
	conns := make([]connection.Connection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.connMu.RUnlock()

	for _, c := range conns {
		if err := c.OnServeStart(); err != nil {
			s.teardownConnections()
			s.state.Store(int32(StateStopped))
			serving.Store(false)
			return err
		}
	}

	go s.run()
	s.logger.Info("debug server serving")
	return nil
}

// Shutdown closes every connection, resumes a paused interpreter so no
// goroutine is left blocked on the condition variable, stops the reactor and
// waits for it to drain.
func (s *Server) Shutdown(ctx context.Context) error {
	if st := s.State(); st == StateInitialising || st == StateStopped {
		return ErrNotServing
	}
	s.shutdownOnce.Do(func() {
		s.state.Store(int32(StateShuttingDown))
		s.logger.Info("debug server shutting down")

		// A paused interpreter holds the master lock inside a condition
		// wait; resume it before tearing anything down.
		if pctx := s.dbg.PauseContext(); pctx.Valid() {
			pctx.Continue()
			pctx.Release()
		}

		s.teardownConnections()
		s.sig.Reset()
		s.wake.Reset()
		close(s.shutdownCh)

		select {
		case <-s.done:
		case <-ctx.Done():
			s.shutdownErr = ErrShutdownTimeout
		}

		s.state.Store(int32(StateStopped))
		serving.Store(false)
	})
	return s.shutdownErr
}

func (s *Server) teardownConnections() {
	s.connMu.Lock()
	conns := make([]connection.Connection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.connMu.Unlock()
	for _, c := range conns {
		c.OnConnectionShuttingDown()
	}
}

// Done is closed when the reactor has exited.
func (s *Server) Done() <-chan struct{} { return s.done }

// run is the reactor: every request, broadcast and signal is handled here,
// one at a time.
func (s *Server) run() {
	defer close(s.done)
	for {
		select {
		case <-s.shutdownCh:
			s.drainBroadcasts()
			return
		case c := <-s.dispatch:
			for {
				msg, ok := c.ProcessNextRequest()
				if !ok {
					break
				}
				s.process(c, msg)
			}
		case fn := <-s.tasks:
			fn()
		case <-s.wake.C():
			s.drainBroadcasts()
		case sig := <-s.sig.C():
			if sig == os.Interrupt {
				s.OnSignal(2)
			}
		}
	}
}

func (s *Server) process(c connection.Connection, msg string) {
	_, span := s.tracer.Start(context.Background(), "debugserver.process",
		trace.WithAttributes(
			attribute.String("protocol", s.protocol),
			attribute.String("connection", c.ID()),
		))
	defer span.End()
	defer log.TimedRequest(s.logger, log.ProtocolRequest{
		Protocol:   s.protocol,
		Connection: c.ID(),
		Bytes:      len(msg),
	})()

	metricRequestsTotal.WithLabelValues(s.protocol).Inc()
	s.handler.ProcessRequest(c, msg)
}

// OnSignal maps the interrupt signal to a debugger break; the process stays
// alive.
func (s *Server) OnSignal(signum int) {
	if signum == 2 {
		s.logger.Debug("interrupt received, arming break")
		s.dbg.Break()
	}
}

// post schedules fn on the reactor goroutine.
func (s *Server) post(fn func()) {
	select {
	case s.tasks <- fn:
	case <-s.shutdownCh:
	}
}

// Broadcast queues msg for delivery to every open connection and wakes the
// reactor. Safe from any goroutine, including listener callbacks on the
// interpreter goroutine; all broadcast paths funnel through this queue so
// their relative order is deterministic.
func (s *Server) Broadcast(msg string) {
	s.broadcastMu.Lock()
	s.broadcastQueue = append(s.broadcastQueue, msg)
	s.broadcastMu.Unlock()
	s.wake.Send()
}

func (s *Server) drainBroadcasts() {
	s.broadcastMu.Lock()
	queue := s.broadcastQueue
	s.broadcastQueue = nil
	s.broadcastMu.Unlock()

	for _, msg := range queue {
		metricBroadcastsTotal.Inc()
		s.connMu.RLock()
		for _, c := range s.conns {
			if c.IsOpen() {
				c.WriteData(msg)
			}
		}
		s.connMu.RUnlock()
	}
}

// Connections returns a snapshot of the active set.
func (s *Server) Connections() []connection.Connection {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	out := make([]connection.Connection, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c)
	}
	return out
}

// OnConnected implements connection.Server.
func (s *Server) OnConnected(c connection.Connection) {
	s.connMu.Lock()
	s.conns[c.ID()] = c
	s.connMu.Unlock()
	metricConnectionsActive.Inc()
	s.logger.Info("client connected", "connection", c.ID())

	if obs, ok := s.handler.(ConnectObserver); ok {
		s.post(func() { obs.OnClientConnected(c) })
	}
}

// OnDisconnect implements connection.Server.
func (s *Server) OnDisconnect(c connection.Connection) {
	s.connMu.Lock()
	delete(s.conns, c.ID())
	s.connMu.Unlock()
	metricConnectionsActive.Dec()
	s.logger.Info("client disconnected", "connection", c.ID())
}

// OnRequestReady implements connection.Server.
func (s *Server) OnRequestReady(c connection.Connection) {
	select {
	case s.dispatch <- c:
	case <-s.shutdownCh:
	}
}

// OnFramingError implements connection.Server.
func (s *Server) OnFramingError(c connection.Connection, err error) {
	metricFramingErrorsTotal.Inc()
	s.logger.Warn("framing error", "connection", c.ID(), "error", err)
	if obs, ok := s.handler.(FramingObserver); ok {
		s.post(func() { obs.OnClientFramingError(c, err) })
	}
}
