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
	"bytes"
	"encoding/binary"
	"math/bits"
	"sort"
)

// VersionKind names the format string a version number is printed with.
type VersionKind string

const (
	VersionSoft VersionKind = "SOFT_VERSION"
	VersionBoot VersionKind = "BOOT_VERSION"
	VersionBMS  VersionKind = "BMS_VERSION"
)

var versionKinds = []VersionKind{VersionSoft, VersionBoot, VersionBMS}

// Version is one candidate version number found in the image.
type Version struct {
	Kind       VersionKind `yaml:"kind"`
	Value      uint32      `yaml:"value"`
	Confidence int         `yaml:"confidence"`
	Offset     int         `yaml:"offset"` // file offset of the instruction sequence
}

// Versions is a list of candidates, sorted by kind then confidence.
type Versions []Version

// Best returns the highest-confidence candidate of the given kind.
func (vs Versions) Best(kind VersionKind) (Version, bool) {
	for _, v := range vs {
		if v.Kind == kind {
			return v, true
		}
	}
	return Version{}, false
}

// Thumb instruction shapes used by the printf call sites:
//
//	PUSH  {R4,LR}        10 B5
//	MOV.W R1, #imm       (T2, modified immediate) or MOVW R1, #imm16 (T3)
//	ADR   R0, <string>   xx A0
const (
	pushR4LR       = 0xB510
	maxADRSkew     = 10
	confidencePush = 100
	confidenceBare = 80
)

// ExtractVersions locates the version format strings and the code that
// prints them, returning every candidate found. The image base address
// cancels out of the ADR arithmetic, so offsets are used directly.
func ExtractVersions(data []byte) Versions {
	stringsAt := make(map[VersionKind]int, len(versionKinds))
	for _, kind := range versionKinds {
		if pos := bytes.Index(data, []byte(string(kind)+":%d")); pos >= 0 {
			stringsAt[kind] = pos
		}
	}
	if len(stringsAt) == 0 {
		return nil
	}

	var found Versions
	for off := 0; off+8 <= len(data); off += 2 {
		value, ok := decodeMovR1(data, off)
		if !ok {
			continue
		}
		target, ok := decodeADRR0(data, off+4)
		if !ok {
			continue
		}

		confidence := confidenceBare
		start := off
		if off >= 2 && binary.LittleEndian.Uint16(data[off-2:]) == pushR4LR {
			confidence = confidencePush
			start = off - 2
		}

		for kind, pos := range stringsAt {
			skew := abs(target - pos)
			if skew >= maxADRSkew {
				continue
			}
			found = append(found, Version{
				Kind:       kind,
				Value:      value,
				Confidence: confidence - 2*skew,
				Offset:     start,
			})
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].Kind != found[j].Kind {
			return found[i].Kind > found[j].Kind
		}
		if found[i].Confidence != found[j].Confidence {
			return found[i].Confidence > found[j].Confidence
		}
		return found[i].Offset < found[j].Offset
	})
	return found
}

// decodeMovR1 decodes a 32-bit MOV.W (T2) or MOVW (T3) writing R1.
func decodeMovR1(data []byte, off int) (uint32, bool) {
	if off+4 > len(data) {
		return 0, false
	}
	hw1 := uint32(binary.LittleEndian.Uint16(data[off:]))
	hw2 := uint32(binary.LittleEndian.Uint16(data[off+2:]))
	if hw2&0x8000 != 0 || (hw2>>8)&0xF != 1 {
		return 0, false
	}
	i := (hw1 >> 10) & 1
	imm3 := (hw2 >> 12) & 0x7
	imm8 := hw2 & 0xFF

	switch {
	case hw1&0xFBEF == 0xF04F:
		return thumbExpandImm(i<<11 | imm3<<8 | imm8), true
	case hw1&0xFBF0 == 0xF240:
		imm4 := hw1 & 0xF
		return imm4<<12 | i<<11 | imm3<<8 | imm8, true
	default:
		return 0, false
	}
}

// decodeADRR0 decodes a 16-bit ADR R0 and returns the address it loads.
func decodeADRR0(data []byte, off int) (int, bool) {
	if off+2 > len(data) {
		return 0, false
	}
	hw := binary.LittleEndian.Uint16(data[off:])
	if hw&0xF800 != 0xA000 || (hw>>8)&0x7 != 0 {
		return 0, false
	}
	pc := (off + 4) &^ 3
	return pc + int(hw&0xFF)<<2, true
}

// thumbExpandImm implements the ARMv7-M ThumbExpandImm pseudo-function.
func thumbExpandImm(imm12 uint32) uint32 {
	imm8 := imm12 & 0xFF
	if imm12>>10 == 0 {
		switch (imm12 >> 8) & 0x3 {
		case 0:
			return imm8
		case 1:
			return imm8<<16 | imm8
		case 2:
			return imm8<<24 | imm8<<8
		default:
			return imm8<<24 | imm8<<16 | imm8<<8 | imm8
		}
	}
	unrotated := 0x80 | (imm12 & 0x7F)
	rotation := int((imm12 >> 7) & 0x1F)
	return bits.RotateLeft32(unrotated, -rotation)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
