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
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDetector struct {
	err       error
	transport string
	devices   []DeviceInfo
	delay     time.Duration
	calls     atomic.Int32
}

func (f *fakeDetector) Transport() string { return f.transport }

func (f *fakeDetector) Detect(ctx context.Context, _ *Options) ([]DeviceInfo, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.devices, f.err
}

func TestConfidence_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "low", Low.String())
	assert.Equal(t, "medium", Medium.String())
	assert.Equal(t, "high", High.String())
	assert.Equal(t, "unknown", Confidence(9).String())
}

func TestDeviceInfo_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		expected string
		device   DeviceInfo
	}{
		{
			name:     "serial bridge",
			device:   DeviceInfo{Transport: "serial", Path: "/dev/ttyUSB0", Confidence: Medium},
			expected: "serial device at /dev/ttyUSB0 (confidence: medium)",
		},
		{
			name:     "named ble device",
			device:   DeviceInfo{Transport: "ble", Path: "A1:B2", Name: "HMJ-2", Confidence: High},
			expected: `ble device "HMJ-2" at A1:B2 (confidence: high)`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, tc.device.String())
		})
	}
}

func TestDefaultOptions(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	assert.Equal(t, Passive, opts.Mode)
	assert.Equal(t, 10*time.Second, opts.Timeout)
	assert.True(t, opts.EnableCache)
	assert.Equal(t, 30*time.Second, opts.CacheTTL)
	assert.NotEmpty(t, opts.Blocklist)
}

func TestDetectWith_MergesAndSorts(t *testing.T) {
	t.Parallel()

	serial := &fakeDetector{transport: "serial-a", devices: []DeviceInfo{
		{Transport: "serial", Path: "/dev/ttyUSB0", Confidence: Low},
	}}
	ble := &fakeDetector{transport: "ble-a", devices: []DeviceInfo{
		{Transport: "ble", Path: "A1:B2", Confidence: High},
	}}

	devices, err := detectWith(context.Background(), []Detector{serial, ble}, &Options{Timeout: time.Second})
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, High, devices[0].Confidence)
	assert.Equal(t, "/dev/ttyUSB0", devices[1].Path)
}

func TestDetectWith_Errors(t *testing.T) {
	t.Parallel()

	_, err := detectWith(context.Background(), nil, &Options{})
	require.ErrorIs(t, err, ErrNoDetectors)

	empty := &fakeDetector{transport: "none-a", err: ErrNoDevicesFound}
	_, err = detectWith(context.Background(), []Detector{empty}, &Options{})
	require.ErrorIs(t, err, ErrNoDevicesFound)

	boom := errors.New("adapter off")
	failing := &fakeDetector{transport: "ble-b", err: boom}
	_, err = detectWith(context.Background(), []Detector{failing, empty}, &Options{})
	require.ErrorIs(t, err, boom)

	slow := &fakeDetector{transport: "slow-a", delay: time.Second}
	_, err = detectWith(context.Background(), []Detector{slow}, &Options{Timeout: 20 * time.Millisecond})
	require.ErrorIs(t, err, ErrDetectionTimeout)
}

func TestDetectWith_PartialResultsOnTimeout(t *testing.T) {
	t.Parallel()

	fast := &fakeDetector{transport: "fast-b", devices: []DeviceInfo{{Transport: "serial", Path: "COM3"}}}
	slow := &fakeDetector{transport: "slow-b", delay: time.Second}

	devices, err := detectWith(context.Background(), []Detector{fast, slow}, &Options{Timeout: 50 * time.Millisecond})
	require.NoError(t, err)
	assert.Len(t, devices, 1)
}

func TestDetectWith_CacheFiltersAndExpires(t *testing.T) {
	t.Parallel()

	det := &fakeDetector{transport: "cache-a", devices: []DeviceInfo{
		{Transport: "serial", Path: "/dev/ttyUSB0", Metadata: map[string]string{"vidpid": "1A86:7523"}},
		{Transport: "serial", Path: "/dev/ttyUSB1"},
	}}
	opts := &Options{EnableCache: true, CacheTTL: time.Minute}

	devices, err := detectWith(context.Background(), []Detector{det}, opts)
	require.NoError(t, err)
	assert.Len(t, devices, 2)

	opts.IgnorePaths = []string{"/dev/ttyUSB1"}
	opts.Blocklist = []string{"1a86:7523"}
	_, err = detectWith(context.Background(), []Detector{det}, opts)
	require.ErrorIs(t, err, ErrNoDevicesFound)
	assert.Equal(t, int32(1), det.calls.Load(), "second call must be served from cache")

	clearCacheForTransport("cache-a")
	opts.IgnorePaths, opts.Blocklist = nil, nil
	_, err = detectWith(context.Background(), []Detector{det}, opts)
	require.NoError(t, err)
	assert.Equal(t, int32(2), det.calls.Load())
}

func TestCache_EmptyResultClearsEntry(t *testing.T) {
	t.Parallel()

	setCached("cache-b", []DeviceInfo{{Path: "/dev/ttyUSB9"}})
	det := &fakeDetector{transport: "cache-b", err: ErrNoDevicesFound}

	cached, ok := getCached("cache-b", time.Nanosecond)
	assert.False(t, ok)
	assert.Nil(t, cached)

	_, err := detectWith(context.Background(), []Detector{det}, &Options{EnableCache: true, CacheTTL: time.Nanosecond})
	require.ErrorIs(t, err, ErrNoDevicesFound)
	_, ok = getCached("cache-b", time.Hour)
	assert.False(t, ok)
}

func TestRegisterDetector(t *testing.T) {
	t.Parallel()

	RegisterDetector(&fakeDetector{transport: "registry-test"})
	assert.Len(t, getDetectors([]string{"registry-test"}), 1)
	assert.Empty(t, getDetectors([]string{"missing-transport"}))
}
