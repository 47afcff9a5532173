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

package debugger

import "strings"

// AnyLine makes a breakpoint match every line of its file.
const AnyLine = ^uint64(0)

// Breakpoint suspends execution when the interpreter reaches a matching
// statement. File matching is by substring containment, so a bare file name
// matches that file in any directory.
type Breakpoint struct {
	ID   uint64
	File string
	Line uint64
}

// Matches reports whether the breakpoint fires for the given path and line.
func (b Breakpoint) Matches(path string, line uint64) bool {
	if b.File == "" {
		return false
	}
	if b.Line != line && b.Line != AnyLine {
		return false
	}
	return strings.Contains(path, b.File)
}

// WatchMask selects which variable access kinds trigger a watchpoint.
type WatchMask uint32

const (
	WatchDefine WatchMask = 1 << iota
	WatchWrite
	WatchRead
	WatchUndefined
)

const (
	WatchNone   WatchMask = 0
	WatchModify           = WatchDefine | WatchWrite | WatchUndefined
	WatchAll              = WatchDefine | WatchWrite | WatchRead | WatchUndefined
)

func (m WatchMask) String() string {
	switch m {
	case WatchNone:
		return "NONE"
	case WatchAll:
		return "ALL"
	case WatchModify:
		return "MODIFY"
	case WatchDefine:
		return "DEFINE"
	case WatchRead:
		return "READ"
	case WatchUndefined:
		return "UNDEFINED"
	case WatchWrite:
		return "WRITE"
	}

	var parts []string
	for _, field := range []WatchMask{WatchWrite, WatchUndefined, WatchRead, WatchDefine} {
		if m&field != 0 {
			parts = append(parts, field.String())
		}
	}
	return strings.Join(parts, ", ")
}

// Watchpoint suspends execution when a variable is accessed in one of the
// ways selected by Type. Ids are drawn from the same counter as breakpoints.
type Watchpoint struct {
	ID       uint64
	Variable string
	Type     WatchMask
}
