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

package ble

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	venus "github.com/ZaparooProject/go-venus"
	"golang.org/x/time/rate"
	"tinygo.org/x/bluetooth"
)

// GATT identifiers of the battery's protocol service.
const (
	ServiceUUID    = "0000ff00-0000-1000-8000-00805f9b34fb"
	WriteCharUUID  = "0000ff01-0000-1000-8000-00805f9b34fb"
	NotifyCharUUID = "0000ff02-0000-1000-8000-00805f9b34fb"
)

const (
	// DefaultScanTimeout bounds device discovery.
	DefaultScanTimeout = 15 * time.Second
	// DefaultWriteRate is the sustained write-without-response rate.
	DefaultWriteRate = 50
	notifyBuffer     = 64
)

// DefaultNamePrefixes match the advertised names of supported devices.
var DefaultNamePrefixes = []string{"MST_", "HMG-", "HMJ-", "HMA-"}

var (
	// ErrDeviceNotFound is returned when no advertisement matched before the
	// scan timeout.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrServiceNotFound is returned when the protocol service or one of its
	// characteristics is missing.
	ErrServiceNotFound = errors.New("protocol service not found")
)

// Config selects the device and paces writes.
type Config struct {
	// Address, when set, must equal the advertised address. It takes
	// precedence over Name and NamePrefixes.
	Address string
	// Name, when set, must equal the advertised local name.
	Name         string
	NamePrefixes []string
	ScanTimeout  time.Duration
	// WriteRate is writes per second; zero means DefaultWriteRate and a
	// negative value disables pacing.
	WriteRate  float64
	WriteBurst int
}

func (c Config) withDefaults() Config {
	if c.ScanTimeout <= 0 {
		c.ScanTimeout = DefaultScanTimeout
	}
	if c.WriteRate == 0 {
		c.WriteRate = DefaultWriteRate
	}
	if c.WriteBurst <= 0 {
		c.WriteBurst = 1
	}
	if c.Address == "" && c.Name == "" && len(c.NamePrefixes) == 0 {
		c.NamePrefixes = DefaultNamePrefixes
	}
	return c
}

// Matches reports whether an advertisement with the given local name and
// address selects this device.
func (c Config) Matches(name, address string) bool {
	if c.Address != "" {
		return strings.EqualFold(c.Address, address)
	}
	if c.Name != "" {
		return c.Name == name
	}
	for _, p := range c.NamePrefixes {
		if p != "" && strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// characteristic is the part of bluetooth.DeviceCharacteristic the
// transport uses.
type characteristic interface {
	WriteWithoutResponse(p []byte) (int, error)
	EnableNotifications(callback func(buf []byte)) error
}

// Transport implements venus.Transport over a GATT write characteristic and
// a notify characteristic.
type Transport struct {
	write      characteristic
	disconnect func() error
	limiter    *rate.Limiter
	notify     chan []byte
	address    string
	writeMu    sync.Mutex
	mu         sync.Mutex
	closed     bool
}

// Open enables the default adapter, scans for a matching device, connects
// and subscribes to notifications.
func Open(ctx context.Context, cfg Config) (*Transport, error) {
	cfg = cfg.withDefaults()
	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("failed to enable bluetooth adapter: %w", err)
	}

	result, err := scan(ctx, adapter, cfg)
	if err != nil {
		return nil, err
	}
	address := result.Address.String()
	venus.Debugf("BLE: found %q at %s (rssi %d)", result.LocalName(), address, result.RSSI)

	device, err := adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, venus.NewTransportError("Connect", address, err, venus.ErrorTypeTransient)
	}

	writeChar, notifyChar, err := discover(device)
	if err != nil {
		_ = device.Disconnect()
		return nil, venus.NewTransportError("Discover", address, err, venus.ErrorTypePermanent)
	}

	t, err := newTransport(address, writeChar, notifyChar, device.Disconnect, cfg)
	if err != nil {
		_ = device.Disconnect()
		return nil, err
	}
	adapter.SetConnectHandler(func(d bluetooth.Device, connected bool) {
		if !connected && d.Address.String() == address {
			t.linkLost()
		}
	})
	return t, nil
}

func scan(ctx context.Context, adapter *bluetooth.Adapter, cfg Config) (bluetooth.ScanResult, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ScanTimeout)
	defer cancel()

	var (
		found  bluetooth.ScanResult
		ok     bool
		doneCh = make(chan error, 1)
	)
	go func() {
		doneCh <- adapter.Scan(func(a *bluetooth.Adapter, r bluetooth.ScanResult) {
			if ok || !cfg.Matches(r.LocalName(), r.Address.String()) {
				return
			}
			found, ok = r, true
			_ = a.StopScan()
		})
	}()

	select {
	case err := <-doneCh:
		if err != nil {
			return found, fmt.Errorf("scan failed: %w", err)
		}
	case <-ctx.Done():
		_ = adapter.StopScan()
		<-doneCh
	}
	if !ok {
		return found, fmt.Errorf("%w after %v", ErrDeviceNotFound, cfg.ScanTimeout)
	}
	return found, nil
}

// Advertisement is one matching device seen during a scan.
type Advertisement struct {
	Address string
	Name    string
	RSSI    int16
}

// Discover scans for cfg.ScanTimeout and returns every matching device,
// strongest signal first.
func Discover(ctx context.Context, cfg Config) ([]Advertisement, error) {
	cfg = cfg.withDefaults()
	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("failed to enable bluetooth adapter: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.ScanTimeout)
	defer cancel()

	var (
		mu     sync.Mutex
		seen   = make(map[string]Advertisement)
		doneCh = make(chan error, 1)
	)
	go func() {
		doneCh <- adapter.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
			address, name := r.Address.String(), r.LocalName()
			if !cfg.Matches(name, address) {
				return
			}
			mu.Lock()
			seen[address] = Advertisement{Address: address, Name: name, RSSI: r.RSSI}
			mu.Unlock()
		})
	}()

	select {
	case err := <-doneCh:
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
	case <-ctx.Done():
		_ = adapter.StopScan()
		<-doneCh
	}

	mu.Lock()
	defer mu.Unlock()
	return sortAdvertisements(seen), nil
}

func sortAdvertisements(seen map[string]Advertisement) []Advertisement {
	out := make([]Advertisement, 0, len(seen))
	for _, a := range seen {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RSSI != out[j].RSSI {
			return out[i].RSSI > out[j].RSSI
		}
		return out[i].Address < out[j].Address
	})
	return out
}

func discover(device bluetooth.Device) (writeChar, notifyChar *bluetooth.DeviceCharacteristic, err error) {
	svcUUID, err := bluetooth.ParseUUID(ServiceUUID)
	if err != nil {
		return nil, nil, fmt.Errorf("parse service UUID: %w", err)
	}
	writeUUID, _ := bluetooth.ParseUUID(WriteCharUUID)
	notifyUUID, _ := bluetooth.ParseUUID(NotifyCharUUID)

	services, err := device.DiscoverServices([]bluetooth.UUID{svcUUID})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrServiceNotFound, err)
	}
	if len(services) == 0 {
		return nil, nil, ErrServiceNotFound
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{writeUUID, notifyUUID})
	if err != nil {
		return nil, nil, fmt.Errorf("discover characteristics: %w", err)
	}
	for i := range chars {
		switch chars[i].UUID() {
		case writeUUID:
			writeChar = &chars[i]
		case notifyUUID:
			notifyChar = &chars[i]
		}
	}
	if writeChar == nil || notifyChar == nil {
		return nil, nil, fmt.Errorf("%w: missing write or notify characteristic", ErrServiceNotFound)
	}
	return writeChar, notifyChar, nil
}

func newTransport(
	address string, writeChar, notifyChar characteristic, disconnect func() error, cfg Config,
) (*Transport, error) {
	cfg = cfg.withDefaults()
	limit := rate.Limit(cfg.WriteRate)
	if cfg.WriteRate < 0 {
		limit = rate.Inf
	}
	t := &Transport{
		write:      writeChar,
		disconnect: disconnect,
		limiter:    rate.NewLimiter(limit, cfg.WriteBurst),
		notify:     make(chan []byte, notifyBuffer),
		address:    address,
	}
	if err := notifyChar.EnableNotifications(t.onNotification); err != nil {
		return nil, venus.NewTransportError("EnableNotifications", address, err, venus.ErrorTypePermanent)
	}
	return t, nil
}

// onNotification runs on the bluetooth stack's goroutine and must not block.
func (t *Transport) onNotification(buf []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	select {
	case t.notify <- append([]byte(nil), buf...):
	default:
		venus.Debugf("BLE %s: notification queue full, dropping %d bytes", t.address, len(buf))
	}
}

// linkLost closes the notification stream without touching the device.
func (t *Transport) linkLost() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.closed = true
	close(t.notify)
	venus.Debugf("BLE %s: link lost", t.address)
	return true
}

// Write sends one frame with write-without-response, paced by the limiter.
func (t *Transport) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !t.IsConnected() {
		return venus.NewTransportClosedError("Write", t.address)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("write pacing: %w", err)
	}
	n, err := t.write.WriteWithoutResponse(data)
	if err != nil {
		return venus.NewTransportWriteError("Write", t.address, err)
	} else if n != len(data) {
		return venus.NewTransportWriteError("Write", t.address, io.ErrShortWrite)
	}
	return nil
}

// Notifications implements venus.Transport.
func (t *Transport) Notifications() <-chan []byte {
	return t.notify
}

// Close ends the notification stream and disconnects from the device.
func (t *Transport) Close() error {
	if !t.linkLost() {
		return nil
	}
	if t.disconnect == nil {
		return nil
	}
	if err := t.disconnect(); err != nil {
		return fmt.Errorf("BLE disconnect failed: %w", err)
	}
	return nil
}

// IsConnected returns true until Close or a disconnect event.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

// Type returns the transport type
func (*Transport) Type() venus.TransportType {
	return venus.TransportBLE
}

var _ venus.Transport = (*Transport)(nil)
