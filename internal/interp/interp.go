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

// Package interp is a deliberately small build-script interpreter: enough of
// a list-file language to exercise the debugger end to end. It supplies the
// collaborator surfaces the engine consumes: a backtrace, a variable scope
// and a variable watch registry.
package interp

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/tombee/scriptdbg/pkg/debugger"
)

// Hooks are the debugger entry points the interpreter honours. Either may be
// nil.
type Hooks struct {
	PreRun func(debugger.Location)
	Error  func(debugger.Location)
}

type frame struct {
	file string
	line uint64
	name string
	typ  debugger.FrameType
}

// Interpreter executes parsed scripts statement by statement, invoking the
// debugger hooks around each one. A single goroutine runs the interpreter;
// the debugger reads the call stack only while that goroutine is parked
// inside a hook.
type Interpreter struct {
	vars      *Variables
	logger    *slog.Logger
	hooks     Hooks
	frames    []frame
	functions map[string][]Statement
}

// New creates an interpreter over the given variable store.
func New(vars *Variables, logger *slog.Logger) *Interpreter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interpreter{
		vars:      vars,
		logger:    logger.With("component", "interp"),
		functions: make(map[string][]Statement),
	}
}

// Vars returns the variable store, which doubles as the watch registry.
func (in *Interpreter) Vars() *Variables { return in.vars }

// SetHooks attaches the debugger hooks. Must happen before Run.
func (in *Interpreter) SetHooks(h Hooks) { in.hooks = h }

// backtrace is a snapshot implementing debugger.Backtrace.
type backtrace struct {
	frames []debugger.Frame
}

func (b backtrace) Depth() int              { return len(b.frames) }
func (b backtrace) Frames() []debugger.Frame { return b.frames }

// Backtrace implements debugger.Interpreter. Frames are returned innermost
// first.
func (in *Interpreter) Backtrace() debugger.Backtrace {
	out := make([]debugger.Frame, 0, len(in.frames))
	for i := len(in.frames) - 1; i >= 0; i-- {
		f := in.frames[i]
		out = append(out, debugger.Frame{File: f.file, Line: f.line, Name: f.name, Type: f.typ})
	}
	return backtrace{frames: out}
}

// scope adapts the variable store to debugger.Scope.
type scope struct {
	vars *Variables
}

func (s scope) GetDefinition(name string) (string, bool) {
	return s.vars.Get(name)
}

func (s scope) ExpandVariables(str string) string {
	return expand(str, s.vars)
}

// CurrentScope implements debugger.Interpreter.
func (in *Interpreter) CurrentScope() debugger.Scope {
	return scope{vars: in.vars}
}

// RunFile parses and runs a list file.
func (in *Interpreter) RunFile(path string) error {
	script, err := ParseFile(path)
	if err != nil {
		return err
	}
	return in.Run(script)
}

// Run executes a script to completion.
func (in *Interpreter) Run(script *Script) error {
	in.frames = append(in.frames, frame{file: script.Path, typ: debugger.FrameBase})
	defer func() { in.frames = in.frames[:len(in.frames)-1] }()
	return in.runStatements(script.Path, script.Statements)
}

func (in *Interpreter) runStatements(path string, stmts []Statement) error {
	for i := 0; i < len(stmts); i++ {
		st := stmts[i]

		// Function definitions are captured, not executed.
		if st.Name == "function" {
			end, err := findEndFunction(stmts, i)
			if err != nil {
				return err
			}
			if len(st.Args) == 0 {
				return fmt.Errorf("interp: %s:%d: function needs a name", path, st.Line)
			}
			in.functions[st.Args[0]] = stmts[i+1 : end]
			i = end
			continue
		}

		top := &in.frames[len(in.frames)-1]
		top.line = st.Line
		top.name = st.Name

		loc := debugger.Location{Path: path, Line: st.Line, Name: st.Name}
		if in.hooks.PreRun != nil {
			in.hooks.PreRun(loc)
		}

		if err := in.exec(path, st); err != nil {
			in.logger.Error("statement failed", "file", path, "line", st.Line, "error", err)
			if in.hooks.Error != nil {
				in.hooks.Error(loc)
			}
			return err
		}
	}
	return nil
}

func findEndFunction(stmts []Statement, start int) (int, error) {
	depth := 0
	for i := start; i < len(stmts); i++ {
		switch stmts[i].Name {
		case "function":
			depth++
		case "endfunction":
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("interp: function at line %d has no endfunction", stmts[start].Line)
}

func (in *Interpreter) exec(path string, st Statement) error {
	args := make([]string, len(st.Args))
	for i, a := range st.Args {
		args[i] = expand(a, in.vars)
	}

	switch st.Name {
	case "set":
		if len(args) == 0 {
			return fmt.Errorf("set needs a variable name")
		}
		in.vars.Set(args[0], strings.Join(args[1:], ";"))
	case "unset":
		if len(args) == 0 {
			return fmt.Errorf("unset needs a variable name")
		}
		in.vars.Unset(args[0])
	case "message":
		in.logger.Info(strings.Join(args, " "))
	case "error":
		return fmt.Errorf("%s", strings.Join(args, " "))
	case "include":
		script, err := ParseFile(args[0])
		if err != nil {
			return err
		}
		in.frames = append(in.frames, frame{file: script.Path, typ: debugger.FrameIncludeFile, name: "include"})
		err = in.runStatements(script.Path, script.Statements)
		in.frames = in.frames[:len(in.frames)-1]
		return err
	case "endfunction":
		// Only reachable when unmatched; definitions skip their body.
		return fmt.Errorf("endfunction without function")
	default:
		body, ok := in.functions[st.Name]
		if !ok {
			return fmt.Errorf("unknown command %q", st.Name)
		}
		for i, a := range args {
			in.vars.Set(fmt.Sprintf("ARGV%d", i), a)
		}
		in.frames = append(in.frames, frame{file: path, line: st.Line, name: st.Name, typ: debugger.FrameFunctionCall})
		err := in.runStatements(path, body)
		in.frames = in.frames[:len(in.frames)-1]
		return err
	}
	return nil
}

// expand substitutes ${VAR} references, recursively for nested references.
// Reads go through the store, so watchpoints see them.
func expand(s string, vars *Variables) string {
	var out strings.Builder
	for i := 0; i < len(s); {
		if s[i] == '$' && i+1 < len(s) && s[i+1] == '{' {
			depth := 1
			j := i + 2
			for j < len(s) && depth > 0 {
				switch s[j] {
				case '{':
					depth++
				case '}':
					depth--
				}
				j++
			}
			if depth == 0 {
				name := expand(s[i+2:j-1], vars)
				val, _ := vars.Get(name)
				out.WriteString(val)
				i = j
				continue
			}
		}
		out.WriteByte(s[i])
		i++
	}
	return out.String()
}
