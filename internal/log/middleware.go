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

package log

import (
	"log/slog"
	"time"
)

// ProtocolRequest describes one debug protocol request for logging.
type ProtocolRequest struct {
	// Protocol is the handler name, e.g. "console" or "json".
	Protocol string

	// Connection identifies the client connection.
	Connection string

	// Bytes is the framed request size.
	Bytes int
}

// TimedRequest records the start of request processing and returns a
// function that logs the request with its duration at debug level. Use it
// as: defer log.TimedRequest(logger, r)().
func TimedRequest(logger *slog.Logger, r ProtocolRequest) func() {
	start := time.Now()
	return func() {
		logger.Debug("request processed",
			slog.String("protocol", r.Protocol),
			slog.String("connection", r.Connection),
			slog.Int("bytes", r.Bytes),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	}
}
