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

package interp

import (
	"sync"

	"github.com/tombee/scriptdbg/pkg/debugger"
)

// Variables is the interpreter's variable store together with its watch
// registry. Watch callbacks fire on the accessing goroutine, outside the
// store lock, so a callback may suspend the interpreter while other
// goroutines keep reading the store.
type Variables struct {
	mu      sync.Mutex
	values  map[string]string
	watches map[string][]*watchEntry
}

type watchEntry struct {
	cb      debugger.WatchCallback
	removed bool
}

// NewVariables creates an empty store.
func NewVariables() *Variables {
	return &Variables{
		values:  make(map[string]string),
		watches: make(map[string][]*watchEntry),
	}
}

// AddWatch implements debugger.VariableWatch.
func (v *Variables) AddWatch(variable string, cb debugger.WatchCallback) (cancel func()) {
	entry := &watchEntry{cb: cb}
	v.mu.Lock()
	v.watches[variable] = append(v.watches[variable], entry)
	v.mu.Unlock()

	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		entry.removed = true
		live := v.watches[variable][:0]
		for _, e := range v.watches[variable] {
			if !e.removed {
				live = append(live, e)
			}
		}
		if len(live) == 0 {
			delete(v.watches, variable)
		} else {
			v.watches[variable] = live
		}
	}
}

// fire invokes the live callbacks for variable outside the store lock.
func (v *Variables) fire(variable string, access debugger.VariableAccess, newValue string) {
	v.mu.Lock()
	entries := make([]*watchEntry, len(v.watches[variable]))
	copy(entries, v.watches[variable])
	v.mu.Unlock()

	for _, e := range entries {
		e.cb(variable, access, newValue)
	}
}

// Get returns a variable's value. Reading fires the read watch, with the
// unknown-read kind when the variable is not set.
func (v *Variables) Get(name string) (string, bool) {
	v.mu.Lock()
	val, ok := v.values[name]
	v.mu.Unlock()

	if ok {
		v.fire(name, debugger.VariableReadAccess, val)
	} else {
		v.fire(name, debugger.UnknownReadAccess, "")
	}
	return val, ok
}

// Set stores a value and fires the modified watch.
func (v *Variables) Set(name, value string) {
	v.mu.Lock()
	v.values[name] = value
	v.mu.Unlock()
	v.fire(name, debugger.ModifiedAccess, value)
}

// Unset removes a variable and fires the removed watch when it was set.
func (v *Variables) Unset(name string) {
	v.mu.Lock()
	_, ok := v.values[name]
	delete(v.values, name)
	v.mu.Unlock()
	if ok {
		v.fire(name, debugger.RemovedAccess, "")
	}
}
