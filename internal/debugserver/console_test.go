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
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const consoleScript = "set(FOO bar)\nset(BAZ qux)\nset(X 1)\nset(Y 2)\nset(Z 3)\n"

func TestConsoleBreakpointScenario(t *testing.T) {
	h, _ := newConsoleHarness(t, consoleScript)

	h.send("br script.cmake:3\n")
	h.waitOutput("Break at script.cmake:3\n")

	h.run()

	// Break-on-connection pause at the first statement.
	h.waitOutput(fmt.Sprintf("Paused at %s:1 (set)\n(debugger) > ", h.script))
	h.send("c\n")

	// The breakpoint announces itself, then the pause.
	h.waitOutput("# Breakpoint 1 hit\n")
	h.waitOutput(fmt.Sprintf("Paused at %s:3 (set)\n(debugger) > ", h.script))

	h.send("print FOO\n")
	h.waitOutput("$ FOO = bar\n")

	h.send("print NOPE\n")
	h.waitOutput("NOPE isn't set.\n")

	h.send("c\n")
	h.waitOutput("Running...\n")
	require.NoError(t, h.waitRunDone())
}

func TestConsoleWatchpointScenario(t *testing.T) {
	h, _ := newConsoleHarness(t, consoleScript)

	h.send("watch FOO\n")
	h.waitOutput("Set watchpoint on write 'FOO'\n")

	h.run()
	h.waitOutput("Paused at")
	h.send("c\n")

	// set(FOO bar) trips the write watch.
	h.waitOutput("Watchpoint 'FOO' hit -- 'bar' (MODIFIED_ACCESS)\n")

	h.send("c\n")
	require.NoError(t, h.waitRunDone())
}

func TestConsoleInfoBreakpoints(t *testing.T) {
	h, _ := newConsoleHarness(t, consoleScript)

	h.send("br CMakeLists.txt:5\n")
	h.waitOutput("Break at CMakeLists.txt:5\n")
	h.send("rwatch FOO\n")
	h.waitOutput("Set watchpoint on read 'FOO'\n")

	h.send("info br\n")
	h.waitOutput("1 \tbreakpoint \tCMakeLists.txt:5\n")
	h.waitOutput("2 \twatchpoint \tFOO \t(READ)\n")

	// Breakpoints list before watchpoints, ids share one space.
	out := h.out.String()
	assert.Less(t, strings.Index(out, "1 \tbreakpoint"), strings.Index(out, "2 \twatchpoint"))
}

func TestConsoleClear(t *testing.T) {
	h, c := newConsoleHarness(t, consoleScript)

	h.send("br CMakeLists.txt:5\n")
	h.waitOutput("Break at CMakeLists.txt:5\n")
	h.send("awatch FOO\n")
	h.waitOutput("Set watchpoint on read/write 'FOO'\n")

	h.send("clear 1\n")
	h.waitOutput("Cleared breakpoint 1\n")
	h.send("clear 2\n")
	h.waitOutput("Cleared watchpoint 2\n")
	h.send("clear 7\n")
	h.waitOutput("Could not find breakpoint or watchpoint with ID of 7\n")

	h.send("br CMakeLists.txt:6\n")
	h.waitOutput("Break at CMakeLists.txt:6\n")
	h.send("clear\n")
	h.waitOutput("Cleared all breakpoints and watchpoints\n")

	assert.Empty(t, c.Debugger().GetBreakpoints())
	assert.Empty(t, c.Debugger().GetWatchpoints())
}

func TestConsoleListAndBacktrace(t *testing.T) {
	h, _ := newConsoleHarness(t, consoleScript)

	h.run()
	h.waitOutput("Paused at")

	h.send("l\n")
	h.waitOutput("1\t|set(FOO bar)\n")
	h.waitOutput("3\t|set(X 1)\n")

	h.send("bt\n")
	h.waitOutput(fmt.Sprintf("  at %s:1 (set)\n", h.script))

	h.send("c\n")
	require.NoError(t, h.waitRunDone())
}

func TestConsoleStepCommands(t *testing.T) {
	h, _ := newConsoleHarness(t, consoleScript)

	h.run()
	h.waitOutput(fmt.Sprintf("Paused at %s:1 (set)", h.script))

	h.send("n\n")
	h.waitOutput(fmt.Sprintf("Paused at %s:2 (set)", h.script))

	h.send("s\n")
	h.waitOutput(fmt.Sprintf("Paused at %s:3 (set)", h.script))

	h.send("c\n")
	require.NoError(t, h.waitRunDone())
}

func TestConsoleBareLineBreakpointWhilePaused(t *testing.T) {
	h, _ := newConsoleHarness(t, consoleScript)

	h.run()
	h.waitOutput("Paused at")

	// While paused, a bare line number uses the current file.
	h.send("br 4\n")
	h.waitOutput(fmt.Sprintf("Break at %s:4\n", h.script))

	h.send("c\n")
	h.waitOutput(fmt.Sprintf("Paused at %s:4 (set)", h.script))

	h.send("c\n")
	require.NoError(t, h.waitRunDone())
}

func TestConsoleBreakCommand(t *testing.T) {
	h, _ := newConsoleHarness(t, consoleScript)

	h.run()
	h.waitOutput("Paused at")

	// Arm a break, resume; the next statement pauses again.
	h.send("b\n")
	h.send("c\n")
	h.waitOutput(fmt.Sprintf("Paused at %s:2 (set)", h.script))

	h.send("c\n")
	require.NoError(t, h.waitRunDone())
}

func TestConsoleQuitExits(t *testing.T) {
	h, c := newConsoleHarness(t, consoleScript)

	exited := make(chan int, 1)
	c.exit = func(code int) { exited <- code }

	h.send("q\n")
	select {
	case code := <-exited:
		assert.Equal(t, 0, code)
	case <-h.timeout():
		t.Fatal("q did not request process exit")
	}
}

func TestConsoleShutdownResumesPausedInterpreter(t *testing.T) {
	h, c := newConsoleHarness(t, consoleScript)

	h.run()
	h.waitOutput("Paused at")

	ctx, cancel := testContext(t)
	defer cancel()
	require.NoError(t, c.Shutdown(ctx))
	require.NoError(t, h.waitRunDone())
}
