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

import "fmt"

// Report gathers everything known about an image before an update.
type Report struct {
	Size            int      `yaml:"size"`
	Checksum        string   `yaml:"checksum"`
	Type            Type     `yaml:"type"`
	Warnings        []string `yaml:"warnings,omitempty"`
	SignatureWindow string   `yaml:"signature_window,omitempty"`
	ChunkSize       int      `yaml:"chunk_size"`
	Chunks          int      `yaml:"chunks"`
	LastChunk       int      `yaml:"last_chunk_length"`
	Versions        Versions `yaml:"versions,omitempty"`
}

// NewReport analyzes data for an OTA transfer using chunkSize-byte chunks.
func NewReport(data []byte, chunkSize int) Report {
	a := Analyze(data)
	r := Report{
		Size:            len(data),
		Checksum:        fmt.Sprintf("0x%08X", a.Checksum),
		Type:            a.Type,
		SignatureWindow: SignatureWindow(data),
		ChunkSize:       chunkSize,
		Chunks:          ChunkCount(len(data), chunkSize),
		Versions:        ExtractVersions(data),
	}
	if a.Warning != SizeOK {
		r.Warnings = append(r.Warnings, a.Warning.String())
	}
	if plan := Plan(len(data), chunkSize); len(plan) > 0 {
		r.LastChunk = plan[len(plan)-1].Length
	}
	return r
}
