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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	venus "github.com/ZaparooProject/go-venus"
)

const usageText = `usage: venusctl [-config file] [-debug] <command> [args]

commands:
  analyze [-chunk n] <image>        print a firmware report as YAML
  ota <image>                       update the device firmware
  send [-wait d] <command> [hex]    send one query and print the reply
  monitor                           poll the device until interrupted
  detect [-probe] [-transport t]    look for devices over BLE and serial bridges
  ports                             list serial ports
`

var errUsage = errors.New("usage")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("venusctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Config file (YAML, JSON or TOML)")
	debug := fs.Bool("debug", false, "Enable debug output")
	fs.Usage = func() { _, _ = fmt.Fprint(stderr, usageText) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return 2
	}
	if *debug {
		venus.SetDebugEnabled(true)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := dispatch(ctx, rest[0], rest[1:], *configPath, *debug, stdout)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		_, _ = fmt.Fprintf(stderr, "venusctl: %v\n", err)
		fs.Usage()
		return 2
	default:
		_, _ = fmt.Fprintf(stderr, "venusctl: %v\n", err)
		return 1
	}
}

func dispatch(ctx context.Context, name string, args []string, configPath string, debug bool, out io.Writer) error {
	switch name {
	case "analyze":
		return runAnalyze(args, out)
	case "ports":
		return runPorts(out)
	case "ota", "send", "monitor", "detect":
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, name)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if debug {
		cfg.Logging.Debug = true
	}
	a, err := newApp(cfg, out)
	if err != nil {
		return err
	}
	defer a.close()

	switch name {
	case "ota":
		return a.runOTA(ctx, args)
	case "send":
		return a.runSend(ctx, args)
	case "detect":
		return a.runDetect(ctx, args)
	default:
		return a.runMonitor(ctx, args)
	}
}
