// go-venus
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-venus.
//
// go-venus is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-venus is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-venus; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package firmware

import (
	"strings"
)

// Signature window constants.
const (
	// SignatureOffset is where EMS/Control images carry their product tag.
	SignatureOffset = 0x50004
	// SignatureLength is the size of the inspected window.
	SignatureLength = 10
	// Signature marks an EMS/Control image.
	Signature = "VenusC"

	// MinBMSSize is the smallest image still assumed to be a BMS build when
	// the signature window lies past the end of the buffer.
	MinBMSSize = 32 * 1024
	// MinPlausibleSize is the size below which an image is almost certainly
	// not firmware at all.
	MinPlausibleSize = 1024
)

// Type is the advisory classification of a firmware image.
type Type int

const (
	TypeUnknownEmpty     Type = iota // smaller than MinPlausibleSize
	TypeUnknownSmall                 // between MinPlausibleSize and MinBMSSize
	TypeBMSBySize                    // too short for the signature window, large enough for BMS
	TypeUnknownBlank                 // signature window present but only 0x00/0xFF
	TypeBMS                          // signature window present, populated, no signature
	TypeEMSControl                   // signature found
)

func (t Type) String() string {
	switch t {
	case TypeEMSControl:
		return "EMS/Control"
	case TypeBMS:
		return "BMS"
	case TypeBMSBySize:
		return "BMS (by size)"
	case TypeUnknownBlank:
		return "Unknown (signature area empty)"
	case TypeUnknownSmall:
		return "Unknown (small image)"
	case TypeUnknownEmpty:
		return "Unknown (empty image)"
	default:
		return "Unknown"
	}
}

// MarshalText renders the type by name, which keeps reports readable.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// SizeWarning flags images whose size makes the classification suspect.
type SizeWarning int

const (
	SizeOK SizeWarning = iota
	SizeSmall
	SizeTooSmall
)

func (w SizeWarning) String() string {
	switch w {
	case SizeSmall:
		return "image is smaller than any known BMS build"
	case SizeTooSmall:
		return "image is too small to be firmware"
	default:
		return ""
	}
}

// Analysis is the result of Analyze.
type Analysis struct {
	Checksum uint32
	Type     Type
	Warning  SizeWarning
}

// Checksum returns the bitwise complement of the 32-bit wraparound sum of
// every byte in data.
func Checksum(data []byte) uint32 {
	var sum uint32
	for _, b := range data {
		sum += uint32(b)
	}
	return ^sum
}

// Analyze computes the checksum and classification of an image.
func Analyze(data []byte) Analysis {
	t, w := Classify(data)
	return Analysis{
		Checksum: Checksum(data),
		Type:     t,
		Warning:  w,
	}
}

// Classify applies the size and signature rules in priority order.
func Classify(data []byte) (Type, SizeWarning) {
	switch {
	case len(data) > SignatureOffset+SignatureLength:
		window := data[SignatureOffset : SignatureOffset+SignatureLength]
		if strings.Contains(signatureText(window), Signature) {
			return TypeEMSControl, SizeOK
		}
		for _, b := range window {
			if b != 0x00 && b != 0xFF {
				return TypeBMS, SizeOK
			}
		}
		return TypeUnknownBlank, SizeOK
	case len(data) >= MinBMSSize:
		return TypeBMSBySize, SizeOK
	case len(data) >= MinPlausibleSize:
		return TypeUnknownSmall, SizeSmall
	default:
		return TypeUnknownEmpty, SizeTooSmall
	}
}

// SignatureWindow returns the lossy text of the signature window, or "" when
// the image is too short to carry one.
func SignatureWindow(data []byte) string {
	if len(data) <= SignatureOffset+SignatureLength {
		return ""
	}
	return signatureText(data[SignatureOffset : SignatureOffset+SignatureLength])
}

func signatureText(window []byte) string {
	return strings.ToValidUTF8(string(window), "\uFFFD")
}
