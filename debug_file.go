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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Session log rotation limits.
const (
	SessionLogMaxSizeMB  = 10
	SessionLogMaxBackups = 3
	SessionLogMaxAgeDays = 14
)

// Session log state, guarded by logMu.
var (
	sessionLog       *lumberjack.Logger
	sessionLogPath   string
	sessionLogWriter io.Writer
)

// InitSessionLog opens a rotating session log in dir (the current directory
// when empty) and routes all package debug output to it. Returns the log
// file path for display to the user.
func InitSessionLog(dir string) (string, error) {
	timestamp := time.Now().Format("20060102_150405")
	filename := filepath.Join(dir, fmt.Sprintf("venus_%s.log", timestamp))

	if dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return "", fmt.Errorf("failed to create session log directory: %w", err)
		}
	}

	lj := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    SessionLogMaxSizeMB,
		MaxBackups: SessionLogMaxBackups,
		MaxAge:     SessionLogMaxAgeDays,
	}
	// lumberjack opens the file on first write
	if err := writeSessionHeader(lj); err != nil {
		return "", fmt.Errorf("failed to create session log: %w", err)
	}

	logMu.Lock()
	defer logMu.Unlock()
	if sessionLog != nil {
		_ = sessionLog.Close()
	}
	sessionLog = lj
	sessionLogPath = filename
	sessionLogWriter = lj
	rebuildLoggerLocked()

	return filename, nil
}

// CloseSessionLog closes the current session log file.
func CloseSessionLog() error {
	logMu.Lock()
	defer logMu.Unlock()

	if sessionLog == nil {
		return nil
	}
	_ = pkgLogger.Sync()
	_, _ = fmt.Fprintf(sessionLog, "\n%s === Session ended ===\n", logTime(time.Now()))

	err := sessionLog.Close()
	sessionLog = nil
	sessionLogPath = ""
	sessionLogWriter = nil
	rebuildLoggerLocked()
	if err != nil {
		return fmt.Errorf("failed to close session log: %w", err)
	}
	return nil
}

// GetSessionLogPath returns the current session log file path.
func GetSessionLogPath() string {
	logMu.RLock()
	defer logMu.RUnlock()
	return sessionLogPath
}

// writeSessionHeader writes metadata about the session to the log file.
func writeSessionHeader(writer io.Writer) error {
	var sb strings.Builder
	_, _ = sb.WriteString("=== Venus Debug Session Log ===\n")
	_, _ = fmt.Fprintf(&sb, "Started: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(&sb, "PID: %d\n", os.Getpid())
	_, _ = fmt.Fprintf(&sb, "OS: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	_, _ = fmt.Fprintf(&sb, "Go Version: %s\n", runtime.Version())
	if exe, err := os.Executable(); err == nil {
		_, _ = fmt.Fprintf(&sb, "Executable: %s\n", exe)
	}
	_, _ = fmt.Fprintf(&sb, "Command Line: %s\n", strings.Join(os.Args, " "))
	_, _ = sb.WriteString("================================\n\n")

	_, err := io.WriteString(writer, sb.String())
	return err
}
