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

// Package debugger implements the core of an interactive build-script
// debugger: a pause/resume state machine driven by interpreter hooks,
// breakpoint and watchpoint registries, and a pause-context capability that
// lets a remote protocol server safely inspect and command a suspended
// interpreter.
//
// Two goroutines interact with a Debugger. The interpreter goroutine calls
// PreRunHook before every statement and ErrorHook on script errors; while
// paused it blocks inside the hook on a condition variable. The server
// goroutine manipulates registries at any time and obtains everything else
// through a PauseContext, which is only valid while the interpreter is
// actually suspended.
//
// The interpreter itself, its call-stack representation and its variable
// watch registry are external collaborators, consumed through the
// Interpreter, Backtrace, Scope and VariableWatch interfaces.
package debugger
