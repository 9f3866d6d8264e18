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
	"time"

	"github.com/ZaparooProject/go-venus/internal/syncutil"
)

type cacheEntry struct {
	timestamp time.Time
	devices   []DeviceInfo
}

// detectionCache holds the last result of each transport's detector.
type detectionCache struct {
	entries map[string]cacheEntry
	mu      syncutil.RWMutex
}

var cache = &detectionCache{
	entries: make(map[string]cacheEntry),
}

// getCached returns a copy of the cached devices if they are younger than ttl
func getCached(transport string, ttl time.Duration) ([]DeviceInfo, bool) {
	cache.mu.RLock()
	defer cache.mu.RUnlock()

	entry, exists := cache.entries[transport]
	if !exists || time.Since(entry.timestamp) > ttl {
		return nil, false
	}
	return append([]DeviceInfo(nil), entry.devices...), true
}

func setCached(transport string, devices []DeviceInfo) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	cache.entries[transport] = cacheEntry{
		devices:   append([]DeviceInfo(nil), devices...),
		timestamp: time.Now(),
	}
}

func clearCache() {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	cache.entries = make(map[string]cacheEntry)
}

// clearCacheForTransport drops a stale entry so a vanished device is not
// returned until the TTL runs out.
func clearCacheForTransport(transport string) {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	delete(cache.entries, transport)
}
