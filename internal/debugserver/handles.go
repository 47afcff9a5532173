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
	"os"
	"os/signal"
	"sync"
)

// wakeHandle is the cross-thread wake-up for the reactor: any goroutine may
// Send after pushing work onto a queue, and the reactor drains the queue when
// the wake fires. Send is level-triggered and coalescing. While Send itself
// is safe from any goroutine, nothing would otherwise stop a racing Reset
// from tearing the channel down mid-send, so both are serialized on a mutex;
// Send after Reset is a no-op.
type wakeHandle struct {
	mu     sync.Mutex
	ch     chan struct{}
	closed bool
}

func newWakeHandle() *wakeHandle {
	return &wakeHandle{ch: make(chan struct{}, 1)}
}

func (h *wakeHandle) C() <-chan struct{} { return h.ch }

func (h *wakeHandle) Send() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	select {
	case h.ch <- struct{}{}:
	default:
	}
}

// Reset disarms the handle. Idempotent.
func (h *wakeHandle) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
}

// signalHandle subscribes the reactor to an OS signal and guarantees the
// subscription is dropped exactly once.
type signalHandle struct {
	mu      sync.Mutex
	ch      chan os.Signal
	stopped bool
}

func newSignalHandle(sig os.Signal) *signalHandle {
	h := &signalHandle{ch: make(chan os.Signal, 1)}
	signal.Notify(h.ch, sig)
	return h
}

func (h *signalHandle) C() <-chan os.Signal { return h.ch }

// Reset unsubscribes. Idempotent.
func (h *signalHandle) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.stopped = true
	signal.Stop(h.ch)
}
