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

const (
	// DefaultChunkSize is the protocol-mandated OTA chunk payload size.
	DefaultChunkSize = 128
	// MaxChunkSize keeps a chunk frame (6 bytes of framing plus the 4-byte
	// offset) within 4096 bytes.
	MaxChunkSize = 4086
)

// Chunk is one slice of the image in an OTA transfer.
type Chunk struct {
	Index  int // 1-based
	Offset int
	Length int
}

// ChunkCount returns ceil(size / chunkSize).
func ChunkCount(size, chunkSize int) int {
	if size <= 0 || chunkSize <= 0 {
		return 0
	}
	return (size + chunkSize - 1) / chunkSize
}

// Plan splits an image of the given size into sequential chunks.
func Plan(size, chunkSize int) []Chunk {
	n := ChunkCount(size, chunkSize)
	chunks := make([]Chunk, 0, n)
	for i := range n {
		offset := i * chunkSize
		chunks = append(chunks, Chunk{
			Index:  i + 1,
			Offset: offset,
			Length: min(chunkSize, size-offset),
		})
	}
	return chunks
}
