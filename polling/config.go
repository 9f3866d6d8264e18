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

import (
	"errors"
	"fmt"
	"time"

	venus "github.com/ZaparooProject/go-venus"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid polling config")

// SleepRecoveryConfig configures automatic recovery after host sleep/wake
type SleepRecoveryConfig struct {
	// Enabled enables sleep detection and recovery attempts
	Enabled bool

	// TimeDiscontinuityThreshold is the minimum elapsed time beyond the expected
	// poll interval that indicates a sleep occurred. Default: 2 seconds
	TimeDiscontinuityThreshold time.Duration

	// MaxRecoveryAttempts is the number of reconnect attempts before the
	// poller gives up until the next tick. Default: 3
	MaxRecoveryAttempts int

	// RecoveryBackoff is the delay between recovery attempts
	RecoveryBackoff time.Duration
}

// DefaultSleepRecoveryConfig returns sensible defaults for sleep recovery
func DefaultSleepRecoveryConfig() SleepRecoveryConfig {
	return SleepRecoveryConfig{
		Enabled:                    true,
		TimeDiscontinuityThreshold: 2 * time.Second,
		MaxRecoveryAttempts:        3,
		RecoveryBackoff:            500 * time.Millisecond,
	}
}

// DetectSleep checks if the elapsed time since last poll indicates a system sleep.
// Returns true if elapsed time exceeds (pollInterval + TimeDiscontinuityThreshold).
func (cfg SleepRecoveryConfig) DetectSleep(elapsed, pollInterval time.Duration) bool {
	if !cfg.Enabled {
		return false
	}
	expectedMax := pollInterval + cfg.TimeDiscontinuityThreshold
	return elapsed > expectedMax
}

// Config holds polling configuration options
type Config struct {
	// Commands are queried round-robin, one per tick
	Commands []byte
	// PollInterval is the normal time between queries. It should exceed the
	// engine's resend window so a poll does not replace a command that is
	// still being retried.
	PollInterval time.Duration
	// BackoffInterval is used after BackoffAfter consecutive failures
	BackoffInterval time.Duration
	// SendTimeout bounds a single Send call
	SendTimeout   time.Duration
	BackoffAfter  int
	SleepRecovery SleepRecoveryConfig
}

// DefaultConfig returns the default polling configuration
func DefaultConfig() *Config {
	return &Config{
		Commands:        []byte{venus.CmdRuntimeInfo, venus.CmdBMSData},
		PollInterval:    10 * time.Second,
		BackoffInterval: time.Minute,
		SendTimeout:     5 * time.Second,
		BackoffAfter:    3,
		SleepRecovery:   DefaultSleepRecoveryConfig(),
	}
}

// Validate rejects configurations the poller cannot run with.
func (c *Config) Validate() error {
	if len(c.Commands) == 0 {
		return fmt.Errorf("%w: no commands to poll", ErrInvalidConfig)
	}
	if c.PollInterval <= 0 || c.SendTimeout <= 0 {
		return fmt.Errorf("%w: intervals must be positive", ErrInvalidConfig)
	}
	if c.BackoffInterval < c.PollInterval {
		return fmt.Errorf("%w: backoff interval %v shorter than poll interval %v",
			ErrInvalidConfig, c.BackoffInterval, c.PollInterval)
	}
	if c.BackoffAfter < 1 {
		return fmt.Errorf("%w: backoff threshold must be at least 1", ErrInvalidConfig)
	}
	for _, cmd := range c.Commands {
		if cmd == venus.CmdOTAActivate || cmd == venus.CmdOTASize ||
			cmd == venus.CmdOTAChunk || cmd == venus.CmdOTAFinalize {
			return fmt.Errorf("%w: %s is not a query command", ErrInvalidConfig, venus.CommandName(cmd))
		}
	}
	return nil
}
