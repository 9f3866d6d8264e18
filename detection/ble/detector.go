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

// Package ble detects batteries by their BLE advertisements. Import it for
// its side effect of registering the detector.
package ble

import (
	"context"
	"strconv"
	"strings"
	"time"

	venus "github.com/ZaparooProject/go-venus"
	"github.com/ZaparooProject/go-venus/detection"
	"github.com/ZaparooProject/go-venus/transport/ble"
)

// defaultScanWindow is used when the options carry no timeout.
const defaultScanWindow = 5 * time.Second

// Overridable in tests.
var (
	discoverFn = ble.Discover
	openFn     = func(ctx context.Context, address string) (venus.Transport, error) {
		return ble.Open(ctx, ble.Config{Address: address})
	}
	probeTimeout = detection.DefaultProbeTimeout
)

type detector struct{}

// New creates a new BLE advertisement detector
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return string(venus.TransportBLE)
}

// Detect scans for matching advertisements. Probe mode connects to each
// device in turn, so the scan only takes half of the detection timeout.
func (*detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	window := defaultScanWindow
	if opts.Timeout > 0 {
		window = opts.Timeout
		if opts.Mode == detection.Probe {
			window /= 2
		}
	}
	found, err := discoverFn(ctx, ble.Config{NamePrefixes: opts.NamePrefixes, ScanTimeout: window})
	if err != nil {
		return nil, err //nolint:wrapcheck // already carries context
	}

	var devices []detection.DeviceInfo
	for _, adv := range found {
		if detection.IsPathIgnored(adv.Address, opts.IgnorePaths) {
			continue
		}
		device := detection.DeviceInfo{
			Transport:  string(venus.TransportBLE),
			Path:       adv.Address,
			Name:       adv.Name,
			Confidence: detection.Medium,
			Metadata:   map[string]string{"rssi": strconv.Itoa(int(adv.RSSI))},
		}
		if opts.Mode == detection.Probe && ctx.Err() == nil {
			if info, ok := probe(ctx, adv.Address); ok {
				device.Confidence = detection.High
				device.Metadata["device-info"] = info
			}
		}
		devices = append(devices, device)
	}
	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

func probe(ctx context.Context, address string) (string, bool) {
	tr, err := openFn(ctx, address)
	if err != nil {
		venus.Debugf("detect: connect %s: %v", address, err)
		return "", false
	}
	defer func() { _ = tr.Close() }()

	reply, err := detection.ProbeDevice(ctx, tr, probeTimeout)
	if err != nil {
		venus.Debugf("detect: probe %s: %v", address, err)
		return "", false
	}
	return strings.TrimSpace(string(reply.Payload)), true
}
