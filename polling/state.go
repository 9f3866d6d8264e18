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

package polling

// PollState is what the poller did on its last tick.
type PollState int

const (
	StateStopped PollState = iota
	StateActive
	StatePausedForOTA
	StateDisconnected
	StateBackoff
	StateRecovering
)

func (s PollState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateActive:
		return "active"
	case StatePausedForOTA:
		return "paused-ota"
	case StateDisconnected:
		return "disconnected"
	case StateBackoff:
		return "backoff"
	case StateRecovering:
		return "recovering"
	default:
		return "unknown"
	}
}

// Polling reports whether ticks in this state send queries.
func (s PollState) Polling() bool {
	return s == StateActive || s == StateBackoff
}
