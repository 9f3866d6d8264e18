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

package venus

import (
	"errors"

	"github.com/ZaparooProject/go-venus/internal/frame"
	"go.uber.org/zap"
)

// Route is where the router sent a notification.
type Route int

const (
	// RouteActivation resolved the pending activation wait.
	RouteActivation Route = iota
	// RouteAck delivered an OTA ack to the mailbox.
	RouteAck
	// RouteResponse answered the outstanding generic command.
	RouteResponse
	// RouteDropped failed to decode and was discarded.
	RouteDropped
	// RouteUnmatched had no waiter and was discarded.
	RouteUnmatched
)

func (r Route) String() string {
	switch r {
	case RouteActivation:
		return "activation"
	case RouteAck:
		return "ack"
	case RouteResponse:
		return "response"
	case RouteDropped:
		return "dropped"
	case RouteUnmatched:
		return "unmatched"
	default:
		return "unknown"
	}
}

// route classifies one inbound notification and hands it to its waiter.
// Precedence: pending activation reply, OTA ack, outstanding generic
// command, unmatched. Decode failures never fail a session; the affected
// wait simply runs into its timeout.
func (e *Engine) route(buf []byte) Route {
	r := e.classify(buf)
	e.metrics.FrameRouted(r.String())
	e.trace.RecordRX(buf, r.String())
	return r
}

func (e *Engine) classify(buf []byte) Route {
	log := e.log()

	if frame.IsActivationReply(buf) && e.activation.pending() {
		cmd, err := frame.DecodeCommand(buf)
		if err != nil {
			e.decodeFailed(buf, err)
			return RouteDropped
		}
		if !e.activation.resolve(cmd.Payload) {
			return RouteUnmatched
		}
		return RouteActivation
	}

	if frame.LooksLikeOTA(buf) {
		ack, err := frame.DecodeOTA(buf)
		if err != nil {
			e.decodeFailed(buf, err)
			return RouteDropped
		}
		if !e.mailbox.Deliver(ack) {
			log.Debug("ack with no pending wait", zap.String("cmd", CommandName(ack.Cmd)))
			return RouteUnmatched
		}
		return RouteAck
	}

	if outstanding, ok := e.dispatcher.claim(buf); ok {
		resp, err := frame.DecodeCommand(buf)
		if err != nil {
			e.decodeFailed(buf, err)
			return RouteDropped
		}
		if resp.Cmd != outstanding {
			log.Debug("reply cleared a different outstanding command",
				zap.String("outstanding", CommandName(outstanding)), zap.String("reply", CommandName(resp.Cmd)))
		}
		if e.onResponse != nil {
			e.onResponse(Response{Cmd: resp.Cmd, Payload: resp.Payload, Variant: resp.Variant})
		}
		return RouteResponse
	}

	log.Debug("unmatched notification", zap.Binary("frame", buf))
	return RouteUnmatched
}

func (e *Engine) decodeFailed(buf []byte, err error) {
	kind := "unknown"
	var de *frame.DecodeError
	if errors.As(err, &de) {
		kind = de.Kind.String()
	}
	e.metrics.DecodeError(kind)
	e.log().Warn("dropping undecodable notification",
		zap.Error(err), zap.Int("bytes", len(buf)))
}
