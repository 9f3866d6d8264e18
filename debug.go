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
	"os"
	"time"

	"github.com/ZaparooProject/go-venus/internal/syncutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logMu syncutil.RWMutex
	// debugEnabled controls whether debug output also goes to stderr
	debugEnabled bool
	pkgLogger    = zap.NewNop()
)

func init() {
	if os.Getenv("VENUS_DEBUG") != "" || os.Getenv("DEBUG") != "" {
		debugEnabled = true
	}
	rebuildLoggerLocked()
}

// Logger returns the package logger. Engines built without WithLogger use it.
// Output goes to the session log when one is open, and to stderr when debug
// mode is enabled. With neither, it is a no-op logger.
func Logger() *zap.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return pkgLogger
}

// Debugf prints debug information.
// Always writes to the session log (if initialized).
// Only prints to stderr when debug mode is enabled.
func Debugf(format string, args ...any) {
	Logger().Sugar().Debugf(format, args...)
}

// Debugln prints debug information.
// Always writes to the session log (if initialized).
// Only prints to stderr when debug mode is enabled.
func Debugln(args ...any) {
	Logger().Sugar().Debugln(args...)
}

// SetDebugEnabled allows programmatic control of debug logging
// Useful for testing or application-controlled debug modes
func SetDebugEnabled(enabled bool) {
	logMu.Lock()
	defer logMu.Unlock()
	debugEnabled = enabled
	rebuildLoggerLocked()
}

func debugEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("15:04:05.000"),
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}
}

// rebuildLoggerLocked recomputes pkgLogger from the debug flag and session
// log. Callers hold logMu (or run from init).
func rebuildLoggerLocked() {
	encoder := zapcore.NewConsoleEncoder(debugEncoderConfig())
	cores := make([]zapcore.Core, 0, 2)
	if debugEnabled {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), zapcore.DebugLevel))
	}
	if sessionLogWriter != nil {
		cores = append(cores, zapcore.NewCore(encoder.Clone(), zapcore.AddSync(sessionLogWriter), zapcore.DebugLevel))
	}
	if len(cores) == 0 {
		pkgLogger = zap.NewNop()
		return
	}
	pkgLogger = zap.New(zapcore.NewTee(cores...)).Named("venus")
}

// logTime formats timestamps written directly to the session log.
func logTime(t time.Time) string {
	return t.Format("15:04:05.000")
}
