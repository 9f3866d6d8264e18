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

package detection

import (
	"path/filepath"
	"strings"
)

// KnownBridges maps VID:PID of USB-serial chips commonly used as BLE or
// RS485 bridges to a short description.
var KnownBridges = map[string]string{
	"1A86:7523": "CH340",
	"1A86:55D4": "CH9102",
	"10C4:EA60": "CP210x",
	"0403:6001": "FT232R",
	"0403:6015": "FT231X",
	"067B:2303": "PL2303",
	"303A:1001": "ESP32 USB-JTAG/serial",
}

// DefaultBlocklist returns USB devices that should never be probed.
// Format: VID:PID in hexadecimal (case-insensitive).
func DefaultBlocklist() []string {
	return []string{
		"1366:0105", // SEGGER J-Link CDC, probing disturbs a debug session
		"2341:0043", // Arduino Uno, resets when the port opens
	}
}

// FormatVIDPID joins USB vendor and product IDs into the VID:PID form used
// by the blocklist. It returns "" when either is missing.
func FormatVIDPID(vid, pid string) string {
	vid = strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(vid), "0x"))
	pid = strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(pid), "0x"))
	if !isHex(vid) || !isHex(pid) {
		return ""
	}
	return vid + ":" + pid
}

// IsBlocked checks if a USB device is in the blocklist.
func IsBlocked(vidpid string, blocklist []string) bool {
	vidpid = strings.ToUpper(strings.TrimSpace(vidpid))
	for _, blocked := range blocklist {
		if vidpid == strings.ToUpper(strings.TrimSpace(blocked)) {
			return true
		}
	}
	return false
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'A' || r > 'F') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// IsPathIgnored checks if a device path or address should be ignored.
// Comparison is case-insensitive on cleaned paths, so BLE addresses match
// regardless of case too.
func IsPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" || len(ignorePaths) == 0 {
		return false
	}
	normalizedDevice := normalizedPath(devicePath)
	for _, ignorePath := range ignorePaths {
		if ignorePath == "" {
			continue
		}
		if devicePath == ignorePath || normalizedDevice == normalizedPath(ignorePath) {
			return true
		}
	}
	return false
}

func normalizedPath(path string) string {
	return strings.ToLower(filepath.Clean(path))
}
