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
	"github.com/ZaparooProject/go-venus/firmware"
	"go.uber.org/zap"
)

// chunkRetryHook logs and counts each failed chunk attempt that will be
// retried. The final failed attempt is reported by the session instead.
func (e *Engine) chunkRetryHook(log *zap.Logger, c firmware.Chunk, total int) func(int, error) {
	return func(attempt int, err error) {
		e.metrics.ChunkRetried()
		log.Warn("chunk attempt failed, retrying",
			zap.Int("chunk", c.Index),
			zap.Int("total", total),
			zap.Int("offset", c.Offset),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
}
