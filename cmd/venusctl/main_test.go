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

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	venus "github.com/ZaparooProject/go-venus"
	"github.com/ZaparooProject/go-venus/detection"
	testutil "github.com/ZaparooProject/go-venus/internal/testing"
	"github.com/ZaparooProject/go-venus/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type syncBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p) //nolint:wrapcheck // test helper
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := loadConfig(writeFile(t, "venusctl.yaml", "transport: ble\n"))
	require.NoError(t, err)
	return cfg
}

func newSimApp(t *testing.T, cfg *Config, dev *testutil.VirtualDevice) (*app, *syncBuffer) {
	t.Helper()
	out := &syncBuffer{}
	reg := metrics.NewRegistry()
	a := &app{
		cfg:     cfg,
		log:     zap.NewNop(),
		reg:     reg,
		metrics: metrics.NewEngine(reg),
		out:     out,
	}
	a.open = func(context.Context) (venus.Transport, error) {
		return testutil.NewDeviceTransport(dev), nil
	}
	return a, out
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	d := venus.DefaultTimeouts()
	assert.Equal(t, "ble", cfg.Transport)
	assert.Equal(t, 115200, cfg.Serial.Baud)
	assert.Equal(t, 15*time.Second, cfg.BLE.ScanTimeout)
	assert.Equal(t, d, cfg.timeouts())
	assert.Equal(t, []string{"runtime-info", "bms-data"}, cfg.Poll.Commands)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := writeFile(t, "venusctl.yaml", `
transport: serial
serial:
  port: /dev/ttyUSB0
ota:
  chunkAckTimeout: 2s
poll:
  commands: [device-info, "0x0D"]
  interval: 5s
`)
	t.Setenv("VENUS_SERIAL_BAUD", "9600")
	t.Setenv("VENUS_STRICT", "true")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "serial", cfg.Transport)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Port)
	assert.Equal(t, 9600, cfg.Serial.Baud)
	assert.True(t, cfg.Strict)
	assert.Equal(t, 2*time.Second, cfg.OTA.ChunkAckTimeout)
	assert.Equal(t, 5*time.Second, cfg.Poll.Interval)

	cmds, err := cfg.pollCommands()
	require.NoError(t, err)
	assert.Equal(t, []byte{venus.CmdDeviceInfo, venus.CmdSystemData}, cmds)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mutate func(*Config)
		name   string
	}{
		{name: "unknown transport", mutate: func(c *Config) { c.Transport = "wifi" }},
		{name: "serial without port", mutate: func(c *Config) { c.Transport = "serial" }},
		{name: "bad log format", mutate: func(c *Config) { c.Logging.Format = "xml" }},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "loud" }},
		{name: "zero write rate", mutate: func(c *Config) { c.BLE.WriteRate = 0 }},
		{name: "unknown poll command", mutate: func(c *Config) { c.Poll.Commands = []string{"reboot"} }},
		{name: "no poll commands", mutate: func(c *Config) { c.Poll.Commands = nil }},
		{name: "backoff below interval", mutate: func(c *Config) { c.Poll.Backoff = time.Second }},
		{name: "zero chunk attempts", mutate: func(c *Config) { c.OTA.ChunkAttempts = 0 }},
		{name: "zero ack timeout", mutate: func(c *Config) { c.OTA.SizeAckTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig(t)
			require.NoError(t, cfg.validate())
			tt.mutate(cfg)
			require.ErrorIs(t, cfg.validate(), errInvalidConfig)
		})
	}
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	logFile := filepath.Join(t.TempDir(), "venusctl.log")
	logger, err := newLogger(LoggingConfig{
		Level:  "warn",
		Format: "json",
		File:   LumberjackFile{Filename: logFile, MaxSizeMB: 1},
	})
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("visible", zap.String("k", "v"))
	_ = logger.Sync()

	data, err := os.ReadFile(logFile) //nolint:gosec // test file
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"visible"`)
	assert.NotContains(t, string(data), "hidden")

	_, err = newLogger(LoggingConfig{Level: "nope"})
	require.ErrorIs(t, err, errInvalidConfig)
}

func TestParsePayload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    []byte
		wantErr bool
	}{
		{in: "", want: nil},
		{in: "0102", want: []byte{0x01, 0x02}},
		{in: "0xA0B1", want: []byte{0xA0, 0xB1}},
		{in: "c0 a8:01", want: []byte{0xC0, 0xA8, 0x01}},
		{in: "zz", wantErr: true},
		{in: "123", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := parsePayload(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, errUsage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRun_Usage(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, run(nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "usage: venusctl")

	stderr.Reset()
	assert.Equal(t, 2, run([]string{"reboot"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), `unknown command "reboot"`)

	stderr.Reset()
	assert.Equal(t, 2, run([]string{"analyze"}, &stdout, &stderr))
}

func TestRun_Analyze(t *testing.T) {
	t.Parallel()

	image := make([]byte, 300)
	for i := range image {
		image[i] = byte(i)
	}
	path := filepath.Join(t.TempDir(), "fw.bin")
	require.NoError(t, os.WriteFile(path, image, 0o600))

	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run([]string{"analyze", path}, &stdout, &stderr), stderr.String())
	out := stdout.String()
	assert.Contains(t, out, "size: 300")
	assert.Contains(t, out, "chunks: 3")
	assert.Contains(t, out, "last_chunk_length: 44")
	assert.Contains(t, out, "checksum: \"0x")

	assert.Equal(t, 1, run([]string{"analyze", filepath.Join(t.TempDir(), "missing.bin")}, &stdout, &stderr))
}

func TestApp_RunOTA(t *testing.T) {
	t.Parallel()

	dev := testutil.NewVirtualDevice()
	a, out := newSimApp(t, testConfig(t), dev)
	image := make([]byte, 1000)
	for i := range image {
		image[i] = byte(i * 3)
	}
	path := filepath.Join(t.TempDir(), "fw.bin")
	require.NoError(t, os.WriteFile(path, image, 0o600))

	require.NoError(t, a.runOTA(context.Background(), []string{path}))
	assert.Equal(t, image, dev.Image())
	assert.Contains(t, out.String(), "8 chunks")
	assert.Contains(t, out.String(), "chunk 8/8 (100%)")
	assert.Contains(t, out.String(), "update completed")
}

func TestApp_RunOTA_Failure(t *testing.T) {
	t.Parallel()

	dev := testutil.NewVirtualDevice()
	dev.ForceFinalizeStatus(testutil.FinalizeBadChecksum)
	a, _ := newSimApp(t, testConfig(t), dev)
	path := filepath.Join(t.TempDir(), "fw.bin")
	require.NoError(t, os.WriteFile(path, make([]byte, 200), 0o600))

	err := a.runOTA(context.Background(), []string{path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "firmware update failed")
}

func TestApp_RunSend(t *testing.T) {
	t.Parallel()

	a, out := newSimApp(t, testConfig(t), testutil.NewVirtualDevice())
	require.NoError(t, a.runSend(context.Background(), []string{"device-info"}))
	assert.Contains(t, out.String(), "device-info:")
	assert.Contains(t, out.String(), `"type=HMJ-2`)

	err := a.runSend(context.Background(), []string{"reboot"})
	require.ErrorIs(t, err, venus.ErrInvalidParameter)
}

func TestApp_RunSend_NoReply(t *testing.T) {
	t.Parallel()

	dev := testutil.NewVirtualDevice()
	dev.Ignore(venus.CmdWiFiInfo)
	a, _ := newSimApp(t, testConfig(t), dev)

	err := a.runSend(context.Background(), []string{"-wait", "50ms", "wifi-info"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no reply to wifi-info")
}

func TestApp_RunMonitor(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Poll.Interval = 20 * time.Millisecond
	cfg.Poll.Backoff = 100 * time.Millisecond
	a, out := newSimApp(t, cfg, testutil.NewVirtualDevice())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	require.NoError(t, a.runMonitor(ctx, nil))

	assert.Contains(t, out.String(), "runtime-info:")
	assert.Contains(t, out.String(), "bms-data:")
}

func TestPrintResponse(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printResponse(&buf, venus.Response{Cmd: venus.CmdMeterIP, Payload: []byte("10.0.0.2")})
	assert.Equal(t, "meter-ip: 31 30 2E 30 2E 30 2E 32 \"10.0.0.2\"\n", buf.String())

	buf.Reset()
	printResponse(&buf, venus.Response{Cmd: venus.CmdSystemData, Payload: []byte{0x01, 0x00}})
	assert.Equal(t, "system-data: 01 00\n", buf.String())
}

type staticDetector struct{ devices []detection.DeviceInfo }

func (staticDetector) Transport() string { return "venusctl-sim" }

func (s staticDetector) Detect(context.Context, *detection.Options) ([]detection.DeviceInfo, error) {
	return s.devices, nil
}

func TestApp_RunDetect(t *testing.T) {
	t.Parallel()

	detection.RegisterDetector(staticDetector{devices: []detection.DeviceInfo{
		{Transport: "ble", Path: "A1:B2", Name: "HMJ-2", Confidence: detection.High,
			Metadata: map[string]string{"device-info": "type=HMJ-2"}},
	}})
	a, out := newSimApp(t, testConfig(t), testutil.NewVirtualDevice())

	require.NoError(t, a.runDetect(context.Background(), []string{"-transport", "venusctl-sim"}))
	assert.Contains(t, out.String(), `ble device "HMJ-2" at A1:B2 (confidence: high)`)
	assert.Contains(t, out.String(), "  type=HMJ-2")

	err := a.runDetect(context.Background(), []string{"-transport", "carrier-pigeon"})
	require.ErrorIs(t, err, detection.ErrNoDetectors)
}
