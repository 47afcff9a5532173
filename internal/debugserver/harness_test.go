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

package debugserver

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tombee/scriptdbg/internal/connection"
	"github.com/tombee/scriptdbg/internal/framing"
	"github.com/tombee/scriptdbg/internal/interp"
	"github.com/tombee/scriptdbg/pkg/debugger"
)

// safeBuffer is a goroutine-safe output sink for the test client.
type safeBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// harness wires a real interpreter, engine and protocol server to an
// in-memory client connection.
type harness struct {
	t       *testing.T
	dbg     *debugger.Debugger
	itp     *interp.Interpreter
	vars    *interp.Variables
	script  string
	out     *safeBuffer
	client  *io.PipeWriter
	runDone chan error
}

type shutdowner interface {
	Serve() error
	Shutdown(ctx context.Context) error
}

func newHarness(t *testing.T, scriptSrc string, build func(dbg *debugger.Debugger, conn connection.Connection) shutdowner, strategy framing.Strategy) *harness {
	t.Helper()

	h := &harness{t: t, out: &safeBuffer{}, runDone: make(chan error, 1)}
	h.vars = interp.NewVariables()
	h.itp = interp.New(h.vars, testLogger())
	h.dbg = debugger.New(h.itp, h.vars, testLogger())
	h.itp.SetHooks(interp.Hooks{PreRun: h.dbg.PreRunHook, Error: h.dbg.ErrorHook})

	h.script = filepath.Join(t.TempDir(), "script.cmake")
	require.NoError(t, os.WriteFile(h.script, []byte(scriptSrc), 0o644))

	pr, pw := io.Pipe()
	h.client = pw
	conn := connection.NewStream(pr, h.out, strategy, testLogger())

	srv := build(h.dbg, conn)
	require.NoError(t, srv.Serve())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		h.dbg.Close()
	})
	return h
}

func newConsoleHarness(t *testing.T, scriptSrc string) (*harness, *Console) {
	var console *Console
	h := newHarness(t, scriptSrc, func(dbg *debugger.Debugger, conn connection.Connection) shutdowner {
		console = NewConsole(dbg, true, testLogger(), conn)
		return console.Server
	}, framing.NewLine())
	return h, console
}

func newJSONHarness(t *testing.T, scriptSrc string) (*harness, *JSON) {
	var js *JSON
	h := newHarness(t, scriptSrc, func(dbg *debugger.Debugger, conn connection.Connection) shutdowner {
		js = NewJSON(dbg, testLogger(), conn)
		return js.Server
	}, framing.NewJSON())
	return h, js
}

// run starts the interpreter goroutine.
func (h *harness) run() {
	go func() {
		h.runDone <- h.itp.RunFile(h.script)
	}()
}

// send writes client input.
func (h *harness) send(s string) {
	h.t.Helper()
	_, err := h.client.Write([]byte(s))
	require.NoError(h.t, err)
}

// waitOutput blocks until the accumulated output contains want.
func (h *harness) waitOutput(want string) {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(h.out.String(), want) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	h.t.Fatalf("timed out waiting for %q in output:\n%s", want, h.out.String())
}

const (
	twoSeconds   = 2 * time.Second
	pollInterval = 5 * time.Millisecond
)

// timeout returns a channel firing after the default test deadline.
func (h *harness) timeout() <-chan time.Time {
	return time.After(2 * time.Second)
}

func testContext(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), 3*time.Second)
}

// waitRunDone waits for the interpreter goroutine to finish.
func (h *harness) waitRunDone() error {
	h.t.Helper()
	select {
	case err := <-h.runDone:
		return err
	case <-time.After(2 * time.Second):
		h.t.Fatal("timed out waiting for the interpreter to finish")
		return nil
	}
}
