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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksum(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
		want uint32
	}{
		{name: "empty", data: nil, want: 0xFFFFFFFF},
		{name: "three bytes", data: []byte{0x01, 0x02, 0x03}, want: 0xFFFFFFF9},
		{name: "all ones", data: []byte{0xFF, 0xFF}, want: ^uint32(0x1FE)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Checksum(tt.data))
		})
	}
}

func TestChecksum_Wraparound(t *testing.T) {
	t.Parallel()

	// 17 MiB of 0xFF sums past 2^32.
	const n = 17 << 20
	data := make([]byte, n)
	for i := range data {
		data[i] = 0xFF
	}
	total := uint64(n) * 0xFF
	sum := uint32(total)
	assert.Equal(t, ^sum, Checksum(data))
}

func signatureImage(window string) []byte {
	data := make([]byte, 0x50010)
	copy(data[SignatureOffset:], window)
	return data
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    []byte
		want    Type
		warning SizeWarning
	}{
		{name: "ems signature", data: signatureImage("VenusC0000"), want: TypeEMSControl},
		{name: "signature mid window", data: signatureImage("xxVenusC\xff\xff"), want: TypeEMSControl},
		{name: "zeroed window", data: signatureImage(""), want: TypeUnknownBlank},
		{name: "erased window", data: signatureImage("\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff"), want: TypeUnknownBlank},
		{name: "populated window", data: signatureImage("BMS-v2\x00\x00\x00\x00"), want: TypeBMS},
		{name: "invalid utf8 window", data: signatureImage("\xc3\x28VenusC\x00\x00"), want: TypeEMSControl},
		{name: "exactly at threshold", data: make([]byte, SignatureOffset+SignatureLength), want: TypeBMSBySize},
		{name: "bms by size", data: make([]byte, MinBMSSize), want: TypeBMSBySize},
		{name: "small", data: make([]byte, MinBMSSize-1), want: TypeUnknownSmall, warning: SizeSmall},
		{name: "min plausible", data: make([]byte, MinPlausibleSize), want: TypeUnknownSmall, warning: SizeSmall},
		{name: "tiny", data: make([]byte, MinPlausibleSize-1), want: TypeUnknownEmpty, warning: SizeTooSmall},
		{name: "empty", data: nil, want: TypeUnknownEmpty, warning: SizeTooSmall},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, warning := Classify(tt.data)
			assert.Equal(t, tt.want, got, "got %s", got)
			assert.Equal(t, tt.warning, warning)
		})
	}
}

func TestAnalyze(t *testing.T) {
	t.Parallel()

	a := Analyze([]byte{0x01, 0x02, 0x03})
	assert.Equal(t, uint32(0xFFFFFFF9), a.Checksum)
	assert.Equal(t, TypeUnknownEmpty, a.Type)
	assert.Equal(t, SizeTooSmall, a.Warning)
}

func TestPlan(t *testing.T) {
	t.Parallel()

	plan := Plan(300, DefaultChunkSize)
	require.Len(t, plan, 3)
	assert.Equal(t, []Chunk{
		{Index: 1, Offset: 0, Length: 128},
		{Index: 2, Offset: 128, Length: 128},
		{Index: 3, Offset: 256, Length: 44},
	}, plan)

	assert.Len(t, Plan(256, DefaultChunkSize), 2)
	assert.Empty(t, Plan(0, DefaultChunkSize))
	assert.Equal(t, 1, ChunkCount(1, DefaultChunkSize))
	assert.Zero(t, ChunkCount(10, 0))
}

func TestNewReport(t *testing.T) {
	t.Parallel()

	r := NewReport(signatureImage("VenusC0000"), DefaultChunkSize)
	assert.Equal(t, 0x50010, r.Size)
	assert.Equal(t, TypeEMSControl, r.Type)
	assert.Equal(t, "VenusC0000", r.SignatureWindow)
	assert.Equal(t, 0xA01, r.Chunks)
	assert.Equal(t, 0x10, r.LastChunk)
	assert.Empty(t, r.Warnings)

	small := NewReport(make([]byte, 2048), DefaultChunkSize)
	assert.Equal(t, []string{SizeSmall.String()}, small.Warnings)
	assert.Empty(t, small.SignatureWindow)
}
