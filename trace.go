// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
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

package venus

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ZaparooProject/go-venus/internal/syncutil"
)

// TraceDirection indicates the direction of wire data
type TraceDirection string

const (
	// TraceTX indicates a frame written to the device
	TraceTX TraceDirection = "TX"
	// TraceRX indicates a notification received from the device
	TraceRX TraceDirection = "RX"
)

// TraceEntry represents a single wire-level operation
type TraceEntry struct {
	Timestamp time.Time
	Direction TraceDirection
	Note      string
	Data      []byte
}

// String formats a trace entry for display
func (e TraceEntry) String() string {
	hexData := formatHexBytes(e.Data)
	if e.Note != "" {
		return fmt.Sprintf("[%s] %s: %s (%s)", logTime(e.Timestamp), e.Direction, hexData, e.Note)
	}
	return fmt.Sprintf("[%s] %s: %s", logTime(e.Timestamp), e.Direction, hexData)
}

// TraceableError wraps a failed firmware update with the last frames that
// crossed the link. Consumer applications can use errors.As() to extract it:
//
//	var te *venus.TraceableError
//	if errors.As(err, &te) {
//	    log.Printf("Wire trace:\n%s", te.FormatTrace())
//	}
type TraceableError struct {
	Err       error
	Transport string
	Trace     []TraceEntry
}

// Error implements the error interface
func (e *TraceableError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/As compatibility
func (e *TraceableError) Unwrap() error {
	return e.Err
}

// FormatTrace returns a human-readable formatted trace log
func (e *TraceableError) FormatTrace() string {
	if len(e.Trace) == 0 {
		return fmt.Sprintf("[%s] (no trace data)", e.Transport)
	}

	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "[%s] Wire trace (%d entries):\n", e.Transport, len(e.Trace))
	for _, entry := range e.Trace {
		direction := ">"
		if entry.Direction == TraceRX {
			direction = "<"
		}
		if entry.Note != "" {
			_, _ = fmt.Fprintf(&sb, "  %s %s (%s)\n", direction, formatHexBytes(entry.Data), entry.Note)
		} else {
			_, _ = fmt.Fprintf(&sb, "  %s %s\n", direction, formatHexBytes(entry.Data))
		}
	}
	return sb.String()
}

// formatHexBytes formats a byte slice as space-separated hex values.
// Chunk frames are long, so only the first 32 bytes are shown.
func formatHexBytes(data []byte) string {
	if len(data) == 0 {
		return "(empty)"
	}
	shown := data
	if len(shown) > 32 {
		shown = shown[:32]
	}
	parts := make([]string, len(shown))
	for i, b := range shown {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	out := strings.Join(parts, " ")
	if len(data) > len(shown) {
		out += fmt.Sprintf(" ... (%d bytes total)", len(data))
	}
	return out
}

// TraceBuffer keeps the most recent frames in both directions. The router
// goroutine and the OTA session record into it concurrently.
type TraceBuffer struct {
	transport string
	entries   []TraceEntry
	maxSize   int
	mu        syncutil.Mutex
}

// NewTraceBuffer creates a new trace buffer with the specified capacity
func NewTraceBuffer(transport string, maxSize int) *TraceBuffer {
	if maxSize <= 0 {
		maxSize = 16
	}
	return &TraceBuffer{
		entries:   make([]TraceEntry, 0, maxSize),
		maxSize:   maxSize,
		transport: transport,
	}
}

// RecordTX records a frame written to the device
func (tb *TraceBuffer) RecordTX(data []byte, note string) {
	tb.record(TraceTX, data, note)
}

// RecordRX records a notification received from the device
func (tb *TraceBuffer) RecordRX(data []byte, note string) {
	tb.record(TraceRX, data, note)
}

// record adds an entry to the buffer, evicting oldest if full
func (tb *TraceBuffer) record(dir TraceDirection, data []byte, note string) {
	if tb == nil {
		return
	}
	entry := TraceEntry{
		Direction: dir,
		Data:      append([]byte(nil), data...),
		Timestamp: time.Now(),
		Note:      note,
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()
	if len(tb.entries) >= tb.maxSize {
		copy(tb.entries, tb.entries[1:])
		tb.entries[len(tb.entries)-1] = entry
	} else {
		tb.entries = append(tb.entries, entry)
	}
}

// WrapError wraps an error with the collected trace data.
// Returns nil if err is nil.
func (tb *TraceBuffer) WrapError(err error) error {
	if err == nil || tb == nil {
		return err
	}

	tb.mu.Lock()
	entriesCopy := make([]TraceEntry, len(tb.entries))
	copy(entriesCopy, tb.entries)
	tb.mu.Unlock()

	return &TraceableError{
		Err:       err,
		Trace:     entriesCopy,
		Transport: tb.transport,
	}
}

// Clear resets the trace buffer
func (tb *TraceBuffer) Clear() {
	if tb == nil {
		return
	}
	tb.mu.Lock()
	tb.entries = tb.entries[:0]
	tb.mu.Unlock()
}

// GetTrace extracts trace data from an error, returning nil if not present
func GetTrace(err error) *TraceableError {
	var te *TraceableError
	if errors.As(err, &te) {
		return te
	}
	return nil
}
