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

import "time"

// Generic command dispatch timing. A command that sees no notification is
// resent from a periodic check until the attempt ceiling is reached.
const (
	// CommandCheckInterval is how often an outstanding command is checked.
	CommandCheckInterval = 3000 * time.Millisecond
	// CommandStaleAfter is how long a command may go unanswered before it is resent.
	CommandStaleAfter = 2900 * time.Millisecond
	// CommandMaxAttempts caps the initial send plus resends.
	CommandMaxAttempts = 3
	// CommandWriteRetryDelay is the wait before retrying a failed transport write.
	CommandWriteRetryDelay = 1000 * time.Millisecond
)

// OTA ack wait windows, one per session step.
const (
	// ActivationTimeout bounds the wait for the activation reply.
	ActivationTimeout = 5000 * time.Millisecond
	// SizeAckTimeout bounds the wait for the size ack.
	SizeAckTimeout = 2000 * time.Millisecond
	// ChunkAckTimeout bounds the wait for each chunk ack.
	ChunkAckTimeout = 1500 * time.Millisecond
	// FinalizeAckTimeout bounds the wait for the finalize ack.
	FinalizeAckTimeout = 3000 * time.Millisecond
)

// Chunk retry constants. A chunk is retried as a whole: rewrite and rewait.
const (
	// ChunkMaxAttempts is the number of tries per chunk before the session fails.
	ChunkMaxAttempts = 3
	// ChunkRetryDelay is the fixed pause between chunk attempts.
	ChunkRetryDelay = 100 * time.Millisecond
)

// commandWriteRetryConfig is used for generic command writes.
func commandWriteRetryConfig(cfg DispatcherConfig) *RetryConfig {
	return FixedRetryConfig(cfg.MaxAttempts, cfg.WriteRetryDelay)
}
