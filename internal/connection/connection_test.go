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
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/scriptdbg/internal/framing"
)

// recordingServer collects connection callbacks for assertions.
type recordingServer struct {
	mu           sync.Mutex
	connected    int
	disconnected int
	framingErrs  []error
	requests     []string
}

func (s *recordingServer) OnConnected(c Connection)    { s.mu.Lock(); s.connected++; s.mu.Unlock() }
func (s *recordingServer) OnDisconnect(c Connection)   { s.mu.Lock(); s.disconnected++; s.mu.Unlock() }
func (s *recordingServer) OnFramingError(c Connection, err error) {
	s.mu.Lock()
	s.framingErrs = append(s.framingErrs, err)
	s.mu.Unlock()
}

// OnRequestReady drains the queue inline, which is what the reactor would do.
func (s *recordingServer) OnRequestReady(c Connection) {
	for {
		msg, ok := c.ProcessNextRequest()
		if !ok {
			return
		}
		s.mu.Lock()
		s.requests = append(s.requests, msg)
		s.mu.Unlock()
	}
}

func (s *recordingServer) snapshot() (int, int, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected, s.disconnected, append([]string(nil), s.requests...)
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestStreamFramesRequests(t *testing.T) {
	srv := &recordingServer{}
	pr, pw := io.Pipe()
	out := &strings.Builder{}

	c := NewStream(pr, nopSyncWriter{out: out}, framing.NewLine(), nil)
	c.SetServer(srv)
	require.NoError(t, c.OnServeStart())

	pw.Write([]byte("first\nsec"))
	pw.Write([]byte("ond\n"))

	eventually(t, func() bool {
		_, _, reqs := srv.snapshot()
		return len(reqs) == 2
	}, "requests not framed")
	_, _, reqs := srv.snapshot()
	assert.Equal(t, []string{"first", "second"}, reqs)

	pw.Close()
	eventually(t, func() bool {
		_, disc, _ := srv.snapshot()
		return disc == 1
	}, "disconnect not reported")
	assert.False(t, c.IsOpen())
}

func TestStreamReportsFramingErrors(t *testing.T) {
	srv := &recordingServer{}
	pr, pw := io.Pipe()

	c := NewStream(pr, io.Discard, framing.NewJSON(), nil)
	c.SetServer(srv)
	require.NoError(t, c.OnServeStart())

	pw.Write([]byte("]"))
	eventually(t, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return len(srv.framingErrs) == 1
	}, "framing error not reported")
	srv.mu.Lock()
	assert.ErrorIs(t, srv.framingErrs[0], framing.ErrFraming)
	srv.mu.Unlock()
	pw.Close()
}

func TestStreamOutboundTransform(t *testing.T) {
	out := &strings.Builder{}
	c := NewStream(nil, nopSyncWriter{out: out}, framing.NewEnvelope(), nil)
	c.SetServer(&recordingServer{})
	require.NoError(t, c.OnServeStart())

	c.WriteData("payload\n")
	assert.Equal(t, "\n"+framing.StartMagic+"\npayload\n"+framing.EndMagic+"\n", out.String())
}

func TestTCPAcceptsSingleClient(t *testing.T) {
	srv := &recordingServer{}
	c := NewTCP(0, framing.NewLine(), nil)
	c.SetServer(srv)
	require.NoError(t, c.OnServeStart())
	defer c.OnConnectionShuttingDown()

	addr := c.Addr().String()

	first, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer first.Close()

	eventually(t, func() bool {
		conn, _, _ := srv.snapshot()
		return conn == 1
	}, "first client not connected")

	fmt.Fprintf(first, "hello\n")
	eventually(t, func() bool {
		_, _, reqs := srv.snapshot()
		return len(reqs) == 1 && reqs[0] == "hello"
	}, "request from first client not delivered")

	// A second client is turned away: its connection closes immediately.
	second, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer second.Close()
	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	_, err = second.Read(buf)
	assert.ErrorIs(t, err, io.EOF)

	conn, _, _ := srv.snapshot()
	assert.Equal(t, 1, conn)
}

func TestPipeAcceptsSingleClient(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dbg.sock")
	srv := &recordingServer{}
	c := NewPipe(path, framing.NewLine(), nil)
	c.SetServer(srv)
	require.NoError(t, c.OnServeStart())
	defer c.OnConnectionShuttingDown()

	first, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer first.Close()

	eventually(t, func() bool {
		conn, _, _ := srv.snapshot()
		return conn == 1
	}, "pipe client not connected")

	second, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer second.Close()
	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	_, err = second.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestPipeRebindsOverStaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dbg.sock")

	c1 := NewPipe(path, framing.NewLine(), nil)
	c1.SetServer(&recordingServer{})
	require.NoError(t, c1.OnServeStart())
	c1.OnConnectionShuttingDown()

	c2 := NewPipe(path, framing.NewLine(), nil)
	c2.SetServer(&recordingServer{})
	require.NoError(t, c2.OnServeStart())
	c2.OnConnectionShuttingDown()
}

func TestWriteBeforeConnectIsDropped(t *testing.T) {
	c := NewTCP(0, framing.NewLine(), nil)
	c.SetServer(&recordingServer{})
	// No peer yet; writing must not panic.
	c.WriteData("into the void\n")
	assert.False(t, c.IsOpen())
}

// nopSyncWriter adapts a strings.Builder to io.Writer for test connections.
type nopSyncWriter struct {
	out *strings.Builder
}

func (w nopSyncWriter) Write(p []byte) (int, error) {
	return w.out.Write(p)
}
