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

package frame

import (
	"errors"
	"fmt"
)

// Decode failure categories. A *DecodeError matches exactly one of these via errors.Is.
var (
	ErrMalformedHeader  = errors.New("malformed frame header")
	ErrLengthMismatch   = errors.New("frame length mismatch")
	ErrChecksumMismatch = errors.New("frame checksum mismatch")
	ErrPayloadTooLarge  = errors.New("payload too large for frame")
)

// DecodeErrorKind classifies a decode failure.
type DecodeErrorKind int

const (
	MalformedHeader DecodeErrorKind = iota
	LengthMismatch
	ChecksumMismatch
)

func (k DecodeErrorKind) String() string {
	switch k {
	case MalformedHeader:
		return "malformed header"
	case LengthMismatch:
		return "length mismatch"
	case ChecksumMismatch:
		return "checksum mismatch"
	default:
		return "unknown"
	}
}

// DecodeError describes why an inbound frame was rejected.
type DecodeError struct {
	Kind     DecodeErrorKind
	Variant  Variant
	Declared int  // declared length (LengthMismatch)
	Actual   int  // bytes actually received
	Want     byte // recomputed checksum (ChecksumMismatch)
	Got      byte // trailing checksum byte (ChecksumMismatch)
}

func (e *DecodeError) Error() string {
	switch e.Kind {
	case MalformedHeader:
		return fmt.Sprintf("%s frame: %s (%d bytes)", e.Variant, e.Kind, e.Actual)
	case LengthMismatch:
		return fmt.Sprintf("%s frame: %s: declared %d, received %d", e.Variant, e.Kind, e.Declared, e.Actual)
	case ChecksumMismatch:
		return fmt.Sprintf("%s frame: %s: computed 0x%02X, trailer 0x%02X", e.Variant, e.Kind, e.Want, e.Got)
	default:
		return fmt.Sprintf("%s frame: decode failed", e.Variant)
	}
}

// Is lets errors.Is match a DecodeError against the package sentinels.
func (e *DecodeError) Is(target error) bool {
	switch e.Kind {
	case MalformedHeader:
		return target == ErrMalformedHeader
	case LengthMismatch:
		return target == ErrLengthMismatch
	case ChecksumMismatch:
		return target == ErrChecksumMismatch
	default:
		return false
	}
}
