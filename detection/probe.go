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
	"fmt"
	"time"

	venus "github.com/ZaparooProject/go-venus"
	"go.uber.org/zap"
)

// DefaultProbeTimeout bounds a single device info query during detection.
const DefaultProbeTimeout = 2 * time.Second

// ProbeDevice sends one device info query over tr and waits for the reply.
// The transport is left open; the caller owns it.
//
// Probing makes a single attempt. Detection runs against ports that may not
// be bridges at all, so nothing is resent.
func ProbeDevice(ctx context.Context, tr venus.Transport, timeout time.Duration) (venus.Response, error) {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	replies := make(chan venus.Response, 1)
	dcfg := venus.DefaultDispatcherConfig()
	dcfg.MaxAttempts = 1
	engine, err := venus.New(tr,
		venus.WithLogger(zap.NewNop()),
		venus.WithStrictResponses(),
		venus.WithDispatcherConfig(dcfg),
		venus.WithResponseHandler(func(r venus.Response) {
			if r.Cmd != venus.CmdDeviceInfo {
				return
			}
			select {
			case replies <- r:
			default:
			}
		}),
	)
	if err != nil {
		return venus.Response{}, fmt.Errorf("probe: %w", err)
	}
	if err := engine.Start(ctx); err != nil {
		return venus.Response{}, fmt.Errorf("probe: %w", err)
	}
	defer func() { _ = engine.Close() }()

	if err := engine.Send(ctx, venus.CmdDeviceInfo, nil); err != nil {
		return venus.Response{}, fmt.Errorf("probe: %w", err)
	}
	select {
	case r := <-replies:
		return r, nil
	case <-engine.Done():
		return venus.Response{}, fmt.Errorf("probe: %w", venus.ErrNotConnected)
	case <-ctx.Done():
		return venus.Response{}, fmt.Errorf("probe: no device info reply: %w", ctx.Err())
	}
}
