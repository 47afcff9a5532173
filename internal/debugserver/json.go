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
	"encoding/json"
	"log/slog"
	"os"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/tombee/scriptdbg/internal/connection"
	"github.com/tombee/scriptdbg/internal/framing"
	"github.com/tombee/scriptdbg/pkg/debugger"
)

// errImproperCommand is the in-band reply to paused-only commands received
// while the interpreter is running.
const errImproperCommand = `{"Error":"Improper command for running context"}`

// JSON is the machine protocol handler: balanced-brace framed JSON objects
// with a Command field, answered in kind, plus unsolicited state pushes on
// every state change and on connect.
type JSON struct {
	*Server
}

// NewJSON creates a JSON protocol server over the given connections.
func NewJSON(dbg *debugger.Debugger, logger *slog.Logger, conns ...connection.Connection) *JSON {
	j := &JSON{}
	j.Server = NewServer(dbg, j, "json", logger, conns...)
	dbg.AddListener(j)
	return j
}

// NewJSONTCP creates a JSON protocol server on 0.0.0.0:port.
func NewJSONTCP(dbg *debugger.Debugger, port int, logger *slog.Logger) *JSON {
	return NewJSON(dbg, logger, connection.NewTCP(port, framing.NewJSON(), logger))
}

// NewJSONPipe creates a JSON protocol server on a named pipe.
func NewJSONPipe(dbg *debugger.Debugger, path string, logger *slog.Logger) *JSON {
	return NewJSON(dbg, logger, connection.NewPipe(path, framing.NewJSON(), logger))
}

// pausedCommands require a valid pause context.
var pausedCommands = map[string]bool{
	"Continue": true,
	"StepIn":   true,
	"StepOut":  true,
	"StepOver": true,
	"Evaluate": true,
}

// ProcessRequest implements Handler.
func (s *JSON) ProcessRequest(c connection.Connection, request string) {
	dbg := s.Debugger()
	command := gjson.Get(request, "Command").String()

	switch command {
	case "Break":
		dbg.Break()
		s.sendStateUpdate(c)
		return
	case "ClearBreakpoints":
		dbg.ClearAllBreakpoints()
		return
	case "RemoveBreakpoint":
		dbg.ClearBreakpointAt(gjson.Get(request, "File").String(), gjson.Get(request, "Line").Uint())
		return
	case "AddBreakpoint":
		dbg.SetBreakpoint(gjson.Get(request, "File").String(), gjson.Get(request, "Line").Uint())
		return
	case "AddWatchpoint":
		mask := debugger.WatchWrite
		switch gjson.Get(request, "Type").String() {
		case "Read":
			mask = debugger.WatchRead
		case "All":
			mask = debugger.WatchAll
		}
		dbg.SetWatchpoint(gjson.Get(request, "Expr").String(), mask)
		return
	case "RemoveWatchpoint":
		expr := gjson.Get(request, "Expr").String()
		for _, wp := range dbg.GetWatchpoints() {
			if wp.Variable == expr {
				dbg.ClearWatchpoint(wp.ID)
			}
		}
		return
	case "ClearWatchpoints":
		dbg.ClearAllWatchpoints()
		return
	}

	if !pausedCommands[command] {
		s.logger.Debug("unrecognised command", "command", command)
		return
	}

	ctx := dbg.PauseContext()
	defer ctx.Release()
	if !ctx.Valid() {
		c.WriteData(errImproperCommand)
		return
	}

	switch command {
	case "Continue":
		ctx.Continue()
	case "StepIn":
		ctx.StepIn()
	case "StepOut":
		ctx.StepOut()
	case "StepOver":
		ctx.Step()
	case "Evaluate":
		s.evaluate(c, ctx, request)
	}
}

// evaluate answers an Evaluate request by echoing it with the Command field
// removed and a Response field added: quoted requests are expanded, bare
// names looked up, and an unset variable answers false.
func (s *JSON) evaluate(c connection.Connection, ctx *debugger.PauseContext, request string) {
	scope, err := ctx.Scope()
	if err != nil {
		c.WriteData(errImproperCommand)
		return
	}

	expr := gjson.Get(request, "Request").String()
	var value string
	ok := false
	if strings.HasPrefix(expr, `"`) && strings.HasSuffix(expr, `"`) && len(expr) > 1 {
		value = scope.ExpandVariables(expr)
		ok = true
	} else {
		value, ok = scope.GetDefinition(expr)
	}

	out, _ := sjson.Delete(request, "Command")
	if ok {
		out, _ = sjson.Set(out, "Response", value)
	} else {
		out, _ = sjson.Set(out, "Response", false)
	}
	c.WriteData(out)
}

// stateUpdate is the unsolicited push sent on state changes and connect.
type stateUpdate struct {
	PID       int          `json:"PID"`
	State     string       `json:"State"`
	Backtrace []stateFrame `json:"Backtrace,omitempty"`
}

type stateFrame struct {
	ID   int    `json:"ID"`
	File string `json:"File"`
	Line uint64 `json:"Line"`
	Name string `json:"Name"`
	Type string `json:"Type"`
}

// buildStateUpdate renders the current state. ctx supplies the backtrace
// while paused; an invalid context yields a state-only update.
func (s *JSON) buildStateUpdate(ctx *debugger.PauseContext) string {
	update := stateUpdate{
		PID:   os.Getpid(),
		State: s.Debugger().State().String(),
	}

	if s.Debugger().State() == debugger.StatePaused && ctx != nil && ctx.Valid() {
		if bt, err := ctx.Backtrace(); err == nil {
			id := 0
			for _, fr := range bt.Frames() {
				if fr.Line == 0 {
					continue
				}
				update.Backtrace = append(update.Backtrace, stateFrame{
					ID:   id,
					File: fr.File,
					Line: fr.Line,
					Name: fr.Name,
					Type: string(fr.Type),
				})
				id++
			}
		}
	}

	data, err := json.Marshal(update)
	if err != nil {
		s.logger.Error("state update marshal failed", "error", err)
		return ""
	}
	return string(data)
}

// sendStateUpdate pushes the state to a single connection, acquiring a pause
// context of its own.
func (s *JSON) sendStateUpdate(c connection.Connection) {
	ctx := s.Debugger().PauseContext()
	defer ctx.Release()
	if msg := s.buildStateUpdate(ctx); msg != "" && c.IsOpen() {
		c.WriteData(msg)
	}
}

// OnChangeState implements debugger.Listener.
func (s *JSON) OnChangeState(ctx *debugger.PauseContext) {
	if s.Debugger().State() == debugger.StatePaused {
		metricPausesTotal.Inc()
	}
	if msg := s.buildStateUpdate(ctx); msg != "" {
		s.Broadcast(msg)
	}
}

// OnBreakpoint implements debugger.Listener. Breakpoint hits surface through
// the state push that follows.
func (s *JSON) OnBreakpoint(id uint64) {}

// OnWatchpoint implements debugger.Listener.
func (s *JSON) OnWatchpoint(variable string, access debugger.VariableAccess, newValue string) {}

// OnClientConnected implements ConnectObserver: every new client receives an
// immediate state push.
func (s *JSON) OnClientConnected(c connection.Connection) {
	s.sendStateUpdate(c)
}

// OnClientFramingError implements FramingObserver.
func (s *JSON) OnClientFramingError(c connection.Connection, err error) {
	reply, _ := sjson.Set("{}", "Error", err.Error())
	c.WriteData(reply)
}
