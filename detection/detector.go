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
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ZaparooProject/go-venus/internal/syncutil"
)

// Mode represents the level of invasiveness for device detection
type Mode int

const (
	// Passive mode only looks at USB descriptors and BLE advertisements
	Passive Mode = iota
	// Probe mode connects and sends a device info query
	Probe
)

// Confidence represents the confidence level of device detection
type Confidence int

const (
	// Low confidence - a USB serial port with an unknown bridge chip
	Low Confidence = iota
	// Medium confidence - a known bridge chip or a matching advertised name
	Medium
	// High confidence - the device answered a device info query
	High
)

func (c Confidence) String() string {
	switch c {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return "unknown"
	}
}

// DeviceInfo represents a device that may speak the battery protocol
type DeviceInfo struct {
	// Additional metadata (vidpid, product, serial, rssi, device-info)
	Metadata map[string]string
	// Transport type: "serial" or "ble"
	Transport string
	// Serial port path or BLE address
	Path string
	// Human-readable device name
	Name string
	// Detection confidence level
	Confidence Confidence
}

// String returns a human-readable representation of the device
func (d DeviceInfo) String() string {
	if d.Name != "" {
		return fmt.Sprintf("%s device %q at %s (confidence: %s)", d.Transport, d.Name, d.Path, d.Confidence)
	}
	return fmt.Sprintf("%s device at %s (confidence: %s)", d.Transport, d.Path, d.Confidence)
}

// Options configures the detection behavior
type Options struct {
	// USB VID:PID pairs to skip (e.g., ["1234:5678", "ABCD:EF01"])
	Blocklist []string
	// Device paths or addresses to ignore (e.g., ["/dev/ttyUSB0", "COM2"])
	IgnorePaths []string
	// Which transports to check (empty = all)
	Transports []string
	// Advertised name prefixes accepted by the BLE detector (empty = its defaults)
	NamePrefixes []string
	// Cache TTL duration
	CacheTTL time.Duration
	// Maximum time to wait for detection, including BLE scanning
	Timeout time.Duration
	// Detection invasiveness level
	Mode Mode
	// Enable result caching
	EnableCache bool
}

// DefaultOptions returns sensible default detection options
func DefaultOptions() Options {
	return Options{
		Mode:        Passive,
		Timeout:     10 * time.Second,
		Blocklist:   DefaultBlocklist(),
		EnableCache: true,
		CacheTTL:    30 * time.Second,
	}
}

// Detector interface for transport-specific device detection
type Detector interface {
	// Detect searches for devices using the given options
	Detect(ctx context.Context, opts *Options) ([]DeviceInfo, error)
	// Transport returns the transport type this detector handles
	Transport() string
}

// Errors
var (
	// ErrNoDevicesFound indicates no devices were detected
	ErrNoDevicesFound = errors.New("no devices found")
	// ErrDetectionTimeout indicates detection timed out
	ErrDetectionTimeout = errors.New("detection timeout")
	// ErrNoDetectors indicates no detector handles the requested transports
	ErrNoDetectors = errors.New("no detectors available for specified transports")
)

var (
	registry   []Detector
	registryMu syncutil.Mutex
)

// RegisterDetector adds a detector to the registry
func RegisterDetector(d Detector) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = append(registry, d)
}

// getDetectors returns detectors filtered by transport types
func getDetectors(transports []string) []Detector {
	registryMu.Lock()
	defer registryMu.Unlock()

	if len(transports) == 0 {
		return append([]Detector(nil), registry...)
	}
	var filtered []Detector
	for _, d := range registry {
		for _, t := range transports {
			if d.Transport() == t {
				filtered = append(filtered, d)
				break
			}
		}
	}
	return filtered
}

type detectionResult struct {
	err     error
	devices []DeviceInfo
}

// DetectAll runs every matching registered detector in parallel and returns
// the devices found, highest confidence first.
func DetectAll(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	return detectWith(ctx, getDetectors(opts.Transports), opts)
}

func detectWith(ctx context.Context, detectors []Detector, opts *Options) ([]DeviceInfo, error) {
	if len(detectors) == 0 {
		return nil, ErrNoDetectors
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	results := make(chan detectionResult, len(detectors))
	for _, detector := range detectors {
		go func(d Detector) {
			results <- runSingleDetector(ctx, d, opts)
		}(detector)
	}
	return collectDetectionResults(ctx, results, len(detectors))
}

// runSingleDetector performs detection for a single detector
func runSingleDetector(ctx context.Context, detector Detector, opts *Options) detectionResult {
	if opts.EnableCache {
		if cached, found := getCached(detector.Transport(), opts.CacheTTL); found {
			return detectionResult{devices: filterDevices(cached, opts)}
		}
	}

	devices, err := detector.Detect(ctx, opts)
	if err != nil && !errors.Is(err, ErrNoDevicesFound) {
		return detectionResult{err: fmt.Errorf("%s detection: %w", detector.Transport(), err)}
	}

	if opts.EnableCache {
		if len(devices) > 0 {
			setCached(detector.Transport(), devices)
		} else {
			clearCacheForTransport(detector.Transport())
		}
	}
	return detectionResult{devices: devices}
}

// collectDetectionResults gathers results from all detector goroutines
func collectDetectionResults(
	ctx context.Context,
	results chan detectionResult,
	numDetectors int,
) ([]DeviceInfo, error) {
	var allDevices []DeviceInfo
	var errs []error

	for range numDetectors {
		select {
		case res := <-results:
			if res.err != nil {
				errs = append(errs, res.err)
			} else {
				allDevices = append(allDevices, res.devices...)
			}
		case <-ctx.Done():
			if len(allDevices) > 0 {
				return sortByConfidence(allDevices), nil
			}
			return nil, ErrDetectionTimeout
		}
	}

	if len(allDevices) > 0 {
		return sortByConfidence(allDevices), nil
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, ErrNoDevicesFound
}

func sortByConfidence(devices []DeviceInfo) []DeviceInfo {
	sort.SliceStable(devices, func(i, j int) bool {
		return devices[i].Confidence > devices[j].Confidence
	})
	return devices
}

// filterDevices applies IgnorePaths and Blocklist filtering to a device list.
// Cached results skip Detect, so they are filtered here.
func filterDevices(devices []DeviceInfo, opts *Options) []DeviceInfo {
	if len(opts.IgnorePaths) == 0 && len(opts.Blocklist) == 0 {
		return devices
	}

	var filtered []DeviceInfo
	for _, device := range devices {
		if IsPathIgnored(device.Path, opts.IgnorePaths) {
			continue
		}
		if vidpid, ok := device.Metadata["vidpid"]; ok && IsBlocked(vidpid, opts.Blocklist) {
			continue
		}
		filtered = append(filtered, device)
	}
	return filtered
}

// ClearDetectionCache removes all cached detection results
func ClearDetectionCache() {
	clearCache()
}
