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
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/tombee/scriptdbg/internal/connection"
	"github.com/tombee/scriptdbg/internal/framing"
	"github.com/tombee/scriptdbg/pkg/debugger"
)

// consolePrompt is written after handled commands when prompting is on.
const consolePrompt = "(debugger) > "

// Console is the line-oriented protocol handler. Every newline-terminated
// line is one command, loosely modelled on gdb's vocabulary.
type Console struct {
	*Server
	printPrompt bool

	// exit is swapped out by tests; the q command ends the process.
	exit func(code int)
}

// NewConsole creates a console server over the given connections. When
// printPrompt is set, a "(debugger) > " prompt follows command output and
// pause announcements.
func NewConsole(dbg *debugger.Debugger, printPrompt bool, logger *slog.Logger, conns ...connection.Connection) *Console {
	c := &Console{printPrompt: printPrompt, exit: os.Exit}
	c.Server = NewServer(dbg, c, "console", logger, conns...)
	dbg.AddListener(c)
	return c
}

// NewConsoleStdio creates a console server on the inherited standard
// streams.
func NewConsoleStdio(dbg *debugger.Debugger, printPrompt bool, logger *slog.Logger) *Console {
	return NewConsole(dbg, printPrompt, logger, connection.NewStdio(framing.NewLine(), logger))
}

// ProcessRequest implements Handler.
func (s *Console) ProcessRequest(c connection.Connection, request string) {
	dbg := s.Debugger()

	switch {
	case request == "b":
		dbg.Break()
	case request == "q":
		s.exit(0)
	case strings.HasPrefix(request, "watch "):
		variable := strings.TrimPrefix(request, "watch ")
		dbg.SetWatchpoint(variable, debugger.WatchWrite)
		c.WriteData("Set watchpoint on write '" + variable + "'\n")
	case strings.HasPrefix(request, "rwatch "):
		variable := strings.TrimPrefix(request, "rwatch ")
		dbg.SetWatchpoint(variable, debugger.WatchRead)
		c.WriteData("Set watchpoint on read '" + variable + "'\n")
	case strings.HasPrefix(request, "awatch "):
		variable := strings.TrimPrefix(request, "awatch ")
		dbg.SetWatchpoint(variable, debugger.WatchAll)
		c.WriteData("Set watchpoint on read/write '" + variable + "'\n")
	case strings.HasPrefix(request, "info br"):
		var sb strings.Builder
		for _, bp := range dbg.GetBreakpoints() {
			fmt.Fprintf(&sb, "%d \tbreakpoint \t%s:%s\n", bp.ID, bp.File, formatLine(bp.Line))
		}
		for _, wp := range dbg.GetWatchpoints() {
			fmt.Fprintf(&sb, "%d \twatchpoint \t%s \t(%s)\n", wp.ID, wp.Variable, wp.Type)
		}
		c.WriteData(sb.String())
	case strings.HasPrefix(request, "clear"):
		s.processClear(c, request)
	case strings.HasPrefix(request, "br "):
		// The file:line form works in any state; the bare line
		// number form needs the paused file and is handled below.
		spec := strings.TrimPrefix(request, "br ")
		if colon := strings.LastIndex(spec, ":"); colon >= 0 {
			line, err := strconv.ParseUint(spec[colon+1:], 10, 64)
			if err != nil {
				break
			}
			file := spec[:colon]
			dbg.SetBreakpoint(file, line)
			c.WriteData(fmt.Sprintf("Break at %s:%d\n", file, line))
		}
	}

	ctx := dbg.PauseContext()
	defer ctx.Release()
	if !ctx.Valid() {
		s.prompt(c)
		return
	}

	switch {
	case strings.HasPrefix(request, "fin"):
		ctx.StepOut()
	case request == "c":
		ctx.Continue()
	case request == "n":
		ctx.Step()
	case request == "s":
		ctx.StepIn()
	case request == "l":
		loc, _ := ctx.CurrentLine()
		c.WriteData(fileLines(loc.Path, loc.Line, 10) + "\n")
	case request == "bt":
		loc, _ := ctx.CurrentLine()
		c.WriteData(fmt.Sprintf("Paused at %s:%d (%s)\n", loc.Path, loc.Line, loc.Name))
		bt, _ := ctx.Backtrace()
		var sb strings.Builder
		for _, fr := range bt.Frames() {
			fmt.Fprintf(&sb, "  at %s:%d (%s)\n", fr.File, fr.Line, fr.Name)
		}
		c.WriteData(sb.String())
	case strings.HasPrefix(request, "print "):
		variable := strings.TrimPrefix(request, "print ")
		scope, _ := ctx.Scope()
		if val, ok := scope.GetDefinition(variable); ok {
			c.WriteData("$ " + variable + " = " + val + "\n")
		} else {
			c.WriteData(variable + " isn't set.\n")
		}
	case strings.HasPrefix(request, "br "):
		spec := strings.TrimPrefix(request, "br ")
		if !strings.Contains(spec, ":") && len(spec) > 0 && spec[0] >= '0' && spec[0] <= '9' {
			line, err := strconv.ParseUint(spec, 10, 64)
			if err != nil {
				break
			}
			loc, _ := ctx.CurrentLine()
			dbg.SetBreakpoint(loc.Path, line)
			c.WriteData(fmt.Sprintf("Break at %s:%d\n", loc.Path, line))
		}
	}

	s.prompt(c)
}

func (s *Console) processClear(c connection.Connection, request string) {
	dbg := s.Debugger()
	rest := strings.TrimPrefix(request, "clear")
	if strings.TrimSpace(rest) == "" {
		dbg.ClearAllBreakpoints()
		dbg.ClearAllWatchpoints()
		c.WriteData("Cleared all breakpoints and watchpoints\n")
		return
	}
	id, err := strconv.ParseUint(strings.TrimSpace(rest), 10, 64)
	if err != nil {
		c.WriteData("Could not find breakpoint or watchpoint with ID of " + strings.TrimSpace(rest) + "\n")
		return
	}
	switch {
	case dbg.ClearBreakpoint(id):
		c.WriteData(fmt.Sprintf("Cleared breakpoint %d\n", id))
	case dbg.ClearWatchpoint(id):
		c.WriteData(fmt.Sprintf("Cleared watchpoint %d\n", id))
	default:
		c.WriteData(fmt.Sprintf("Could not find breakpoint or watchpoint with ID of %d\n", id))
	}
}

func (s *Console) prompt(c connection.Connection) {
	if s.printPrompt {
		c.WriteData(consolePrompt)
	}
}

// OnChangeState implements debugger.Listener.
func (s *Console) OnChangeState(ctx *debugger.PauseContext) {
	switch ctx.State() {
	case debugger.StateRunning:
		s.Broadcast("Running...\n")
	case debugger.StatePaused:
		metricPausesTotal.Inc()
		msg := "Paused at indeterminate state\n"
		if loc, err := ctx.CurrentLine(); err == nil {
			msg = fmt.Sprintf("Paused at %s:%d (%s)\n", loc.Path, loc.Line, loc.Name)
		}
		if s.printPrompt {
			msg += consolePrompt
		}
		s.Broadcast(msg)
	default:
		msg := "Unknown state\n"
		if s.printPrompt {
			msg += consolePrompt
		}
		s.Broadcast(msg)
	}
}

// OnBreakpoint implements debugger.Listener.
func (s *Console) OnBreakpoint(id uint64) {
	s.Broadcast(fmt.Sprintf("# Breakpoint %d hit\n", id))
}

// OnWatchpoint implements debugger.Listener.
func (s *Console) OnWatchpoint(variable string, access debugger.VariableAccess, newValue string) {
	s.Broadcast(fmt.Sprintf("Watchpoint '%s' hit -- '%s' (%s)\n", variable, newValue, access))
}

// formatLine renders a breakpoint line, with the any-line sentinel shown as
// "*".
func formatLine(line uint64) string {
	if line == debugger.AnyLine {
		return "*"
	}
	return strconv.FormatUint(line, 10)
}

// fileLines returns count lines of the file starting at lineStart, each
// prefixed with its number.
func fileLines(filename string, lineStart uint64, count uint64) string {
	f, err := os.Open(filename)
	if err != nil {
		return ""
	}
	defer f.Close()

	var sb strings.Builder
	scanner := bufio.NewScanner(f)
	var n uint64
	for scanner.Scan() {
		n++
		if n < lineStart {
			continue
		}
		if n >= lineStart+count {
			break
		}
		fmt.Fprintf(&sb, "%d\t|%s\n", n, scanner.Text())
	}
	return sb.String()
}
