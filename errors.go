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
	"io"
	"runtime"
	"syscall"
	"time"

	"github.com/ZaparooProject/go-venus/internal/frame"
)

// Error categories for retry and session-failure handling
var (
	// Transport errors - potentially retryable
	ErrTransportTimeout  = errors.New("transport timeout")
	ErrTransportWrite    = errors.New("transport write failed")
	ErrTransportClosed   = errors.New("transport is closed")
	ErrTransportNotReady = errors.New("transport not ready")

	// Engine lifecycle errors - not retryable
	ErrNotConnected     = errors.New("device not connected")
	ErrEngineNotStarted = errors.New("engine not started")
	ErrEngineClosed     = errors.New("engine closed")
	ErrAlreadyStarted   = errors.New("engine already started")
	ErrOTAInProgress    = errors.New("firmware update in progress")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrEmptyFirmware    = errors.New("firmware image is empty")

	// Ack wait outcomes
	ErrAckTimeout         = errors.New("ack timeout")
	ErrUnexpectedAck      = errors.New("unexpected ack command")
	ErrAckSuperseded      = errors.New("ack wait superseded")
	ErrActivationFailed   = errors.New("activation rejected by device")
	ErrFinalizeRejected   = errors.New("finalize rejected by device")
	ErrAckPayloadTooShort = errors.New("ack payload too short")
)

// Frame decode categories, re-exported so callers need not import the codec.
var (
	ErrMalformedHeader  = frame.ErrMalformedHeader
	ErrLengthMismatch   = frame.ErrLengthMismatch
	ErrChecksumMismatch = frame.ErrChecksumMismatch
	ErrPayloadTooLarge  = frame.ErrPayloadTooLarge
)

// DecodeError describes why an inbound frame was rejected.
type DecodeError = frame.DecodeError

// ErrorType represents the category of error for retry logic
type ErrorType int

const (
	// ErrorTypeTransient indicates a potentially retryable error
	ErrorTypeTransient ErrorType = iota
	// ErrorTypePermanent indicates a non-retryable error
	ErrorTypePermanent
	// ErrorTypeTimeout indicates a timeout error (special handling)
	ErrorTypeTimeout
)

// TransportError wraps transport-level errors with additional context
type TransportError struct {
	Err       error     // Underlying error
	Op        string    // Operation that failed
	Port      string    // Port, adapter address or device identifier
	Type      ErrorType // Error category
	Retryable bool      // Whether the error is retryable
}

func (e *TransportError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// AckErrorKind classifies a failed mailbox wait.
type AckErrorKind int

const (
	// AckTimeout means no OTA ack arrived within the wait window.
	AckTimeout AckErrorKind = iota
	// AckUnexpectedCommand means an ack arrived for a different command.
	AckUnexpectedCommand
	// AckSuperseded means a newer wait replaced this one before it resolved.
	AckSuperseded
)

// AckError is the failure side of an ack wait.
type AckError struct {
	Kind     AckErrorKind
	Expected byte
	Got      byte
	Timeout  time.Duration
}

func (e *AckError) Error() string {
	switch e.Kind {
	case AckTimeout:
		return fmt.Sprintf("no ack for 0x%02X within %v", e.Expected, e.Timeout)
	case AckUnexpectedCommand:
		return fmt.Sprintf("expected ack for 0x%02X, got 0x%02X", e.Expected, e.Got)
	case AckSuperseded:
		return fmt.Sprintf("wait for 0x%02X superseded", e.Expected)
	default:
		return fmt.Sprintf("ack wait for 0x%02X failed", e.Expected)
	}
}

// Is matches AckError against ErrAckTimeout, ErrUnexpectedAck and ErrAckSuperseded.
func (e *AckError) Is(target error) bool {
	switch e.Kind {
	case AckTimeout:
		return target == ErrAckTimeout
	case AckUnexpectedCommand:
		return target == ErrUnexpectedAck
	case AckSuperseded:
		return target == ErrAckSuperseded
	default:
		return false
	}
}

// SessionError is returned when a firmware update ends in the failed state.
type SessionError struct {
	Err       error
	SessionID string
	State     OTAState // state the session was in when it failed
	Reason    string
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("ota session %s failed while %s: %s", e.SessionID, e.State, e.Reason)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is potentially retryable
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsFatal(err) {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}

	var ae *AckError
	if errors.As(err, &ae) {
		return ae.Kind != AckSuperseded
	}

	switch {
	case errors.Is(err, ErrTransportTimeout),
		errors.Is(err, ErrTransportWrite),
		errors.Is(err, ErrChecksumMismatch),
		errors.Is(err, ErrLengthMismatch):
		return true
	default:
		return false
	}
}

// IsFatal returns true if the error indicates the device/connection is gone
// and the session should stop entirely. This is distinct from IsRetryable
// which indicates whether a single operation can be retried.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) && te.Type == ErrorTypePermanent {
		return true
	}

	if isDeviceGoneError(err) {
		return true
	}

	switch {
	case errors.Is(err, ErrTransportClosed),
		errors.Is(err, ErrNotConnected),
		errors.Is(err, ErrEngineClosed),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrClosedPipe):
		return true
	default:
		return false
	}
}

// Windows error codes for device disconnection detection.
// These are defined here because they're not available on non-Windows platforms.
const (
	errAccessDenied syscall.Errno = 5   // ERROR_ACCESS_DENIED
	errGenFailure   syscall.Errno = 31  // ERROR_GEN_FAILURE
	errNoSuchDevice syscall.Errno = 433 // ERROR_NO_SUCH_DEVICE
)

// isDeviceGoneError checks for OS-level errors indicating the serial bridge
// was unplugged during I/O.
func isDeviceGoneError(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}

	//nolint:exhaustive // Only checking specific device-gone errors, not all errno values
	switch errno {
	case syscall.EIO, syscall.ENXIO, syscall.ENODEV:
		return true
	}

	if runtime.GOOS == "windows" {
		//nolint:exhaustive // Only checking specific device-gone errors, not all errno values
		switch errno {
		case errAccessDenied, errGenFailure, errNoSuchDevice:
			return true
		}
	}
	return false
}

// NewTransportError creates a standard transport error with consistent formatting
func NewTransportError(op, port string, err error, errType ErrorType) *TransportError {
	return &TransportError{
		Op:        op,
		Port:      port,
		Err:       err,
		Type:      errType,
		Retryable: errType == ErrorTypeTransient || errType == ErrorTypeTimeout,
	}
}

// NewTimeoutError creates a timeout error for transport operations
func NewTimeoutError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportTimeout, ErrorTypeTimeout)
}

// NewTransportWriteError wraps a failed write (transient)
func NewTransportWriteError(op, port string, cause error) *TransportError {
	return NewTransportError(op, port, fmt.Errorf("%w: %w", ErrTransportWrite, cause), ErrorTypeTransient)
}

// NewTransportClosedError creates a closed-link error (permanent)
func NewTransportClosedError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportClosed, ErrorTypePermanent)
}

// NewTransportNotReadyError creates a transport not ready error (timeout)
func NewTransportNotReadyError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportNotReady, ErrorTypeTimeout)
}
