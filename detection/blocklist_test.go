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

package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPathIgnored(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		devicePath  string
		ignorePaths []string
		expected    bool
	}{
		{name: "empty ignore list", devicePath: "/dev/ttyUSB0", ignorePaths: []string{}, expected: false},
		{name: "empty device path", devicePath: "", ignorePaths: []string{"/dev/ttyUSB0"}, expected: false},
		{name: "exact match unix path", devicePath: "/dev/ttyUSB0", ignorePaths: []string{"/dev/ttyUSB0"}, expected: true},
		{name: "exact match windows path", devicePath: "COM2", ignorePaths: []string{"COM2"}, expected: true},
		{name: "case insensitive match", devicePath: "/dev/ttyUSB0", ignorePaths: []string{"/DEV/TTYUSB0"}, expected: true},
		{name: "ble address any case", devicePath: "A1:B2:C3:D4:E5:F6", ignorePaths: []string{"a1:b2:c3:d4:e5:f6"}, expected: true},
		{name: "no match", devicePath: "/dev/ttyUSB1", ignorePaths: []string{"/dev/ttyUSB0"}, expected: false},
		{
			name:        "multiple paths with match",
			devicePath:  "/dev/ttyACM0",
			ignorePaths: []string{"/dev/ttyUSB0", "/dev/ttyACM0", "COM2"},
			expected:    true,
		},
		{name: "relative components", devicePath: "/dev/../dev/ttyUSB0", ignorePaths: []string{"/dev/ttyUSB0"}, expected: true},
		{name: "empty strings in ignore list", devicePath: "/dev/ttyUSB0", ignorePaths: []string{"", "/dev/ttyUSB0"}, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, IsPathIgnored(tt.devicePath, tt.ignorePaths))
		})
	}
}

func TestFormatVIDPID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "1A86:7523", FormatVIDPID("1a86", "7523"))
	assert.Equal(t, "10C4:EA60", FormatVIDPID("0x10c4", " ea60 "))
	assert.Empty(t, FormatVIDPID("", "7523"))
	assert.Empty(t, FormatVIDPID("zz", "7523"))
}

func TestIsBlocked(t *testing.T) {
	t.Parallel()

	assert.True(t, IsBlocked("1366:0105", DefaultBlocklist()))
	assert.True(t, IsBlocked(" abcd:ef01", []string{"ABCD:EF01 "}))
	assert.False(t, IsBlocked("1A86:7523", DefaultBlocklist()))
	assert.False(t, IsBlocked("1A86:7523", nil))
	_, known := KnownBridges["1A86:7523"]
	assert.True(t, known)
}
