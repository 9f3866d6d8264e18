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

// Package uart detects battery links on USB-serial bridges. Import it for its
// side effect of registering the detector.
package uart

import (
	"context"
	"fmt"
	"strings"

	venus "github.com/ZaparooProject/go-venus"
	"github.com/ZaparooProject/go-venus/detection"
	"github.com/ZaparooProject/go-venus/transport/uart"
	"go.bug.st/serial/enumerator"
)

// Overridable in tests.
var (
	listPortsFn  = enumerator.GetDetailedPortsList
	openPortFn   = func(path string) (venus.Transport, error) {
		return uart.New(path, uart.DefaultBaudRate)
	}
	probeTimeout = detection.DefaultProbeTimeout
)

type detector struct{}

// New creates a new serial bridge detector
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return string(venus.TransportSerial)
}

// Detect lists USB serial ports and, in Probe mode, queries each one.
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := listPortsFn()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	var devices []detection.DeviceInfo
	for _, port := range ports {
		if ctx.Err() != nil {
			break
		}
		if device, ok := d.processPort(ctx, port, opts); ok {
			devices = append(devices, device)
		}
	}
	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// processPort filters one port and decides its confidence.
func (*detector) processPort(
	ctx context.Context, port *enumerator.PortDetails, opts *detection.Options,
) (detection.DeviceInfo, bool) {
	if !port.IsUSB {
		return detection.DeviceInfo{}, false
	}
	vidpid := detection.FormatVIDPID(port.VID, port.PID)
	if vidpid != "" && detection.IsBlocked(vidpid, opts.Blocklist) {
		return detection.DeviceInfo{}, false
	}
	if detection.IsPathIgnored(port.Name, opts.IgnorePaths) {
		return detection.DeviceInfo{}, false
	}

	device := detection.DeviceInfo{
		Transport:  string(venus.TransportSerial),
		Path:       port.Name,
		Name:       port.Product,
		Confidence: detection.Low,
		Metadata:   make(map[string]string),
	}
	if vidpid != "" {
		device.Metadata["vidpid"] = vidpid
	}
	if port.SerialNumber != "" {
		device.Metadata["serial"] = port.SerialNumber
	}
	if chip, ok := detection.KnownBridges[vidpid]; ok {
		device.Confidence = detection.Medium
		device.Metadata["bridge"] = chip
		if device.Name == "" {
			device.Name = chip
		}
	}

	if opts.Mode != detection.Probe {
		return device, true
	}
	info, ok := probePort(ctx, port.Name)
	if !ok {
		// A port that does not answer is only worth reporting if the
		// chip is a known bridge; the battery may simply be asleep.
		return device, device.Confidence == detection.Medium
	}
	device.Confidence = detection.High
	device.Metadata["device-info"] = info
	return device, true
}

// probePort opens the port once and sends a device info query.
func probePort(ctx context.Context, path string) (string, bool) {
	tr, err := openPortFn(path)
	if err != nil {
		venus.Debugf("detect: open %s: %v", path, err)
		return "", false
	}
	defer func() { _ = tr.Close() }()

	reply, err := detection.ProbeDevice(ctx, tr, probeTimeout)
	if err != nil {
		venus.Debugf("detect: probe %s: %v", path, err)
		return "", false
	}
	return strings.TrimSpace(string(reply.Payload)), true
}
