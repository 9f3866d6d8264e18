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
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	venus "github.com/ZaparooProject/go-venus"
	"github.com/ZaparooProject/go-venus/detection"
	_ "github.com/ZaparooProject/go-venus/detection/ble"
	_ "github.com/ZaparooProject/go-venus/detection/uart"
	"github.com/ZaparooProject/go-venus/firmware"
	"github.com/ZaparooProject/go-venus/metrics"
	"github.com/ZaparooProject/go-venus/polling"
	"github.com/ZaparooProject/go-venus/transport/ble"
	"github.com/ZaparooProject/go-venus/transport/uart"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// app carries what the device subcommands share.
type app struct {
	cfg     *Config
	log     *zap.Logger
	reg     *prometheus.Registry
	metrics *metrics.Engine
	out     io.Writer
	open    func(ctx context.Context) (venus.Transport, error)
}

func newApp(cfg *Config, out io.Writer) (*app, error) {
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	if cfg.Logging.SessionDir != "" {
		path, err := venus.InitSessionLog(cfg.Logging.SessionDir)
		if err != nil {
			return nil, fmt.Errorf("session log: %w", err)
		}
		logger.Info("session log opened", zap.String("path", path))
	}
	reg := metrics.NewRegistry()
	a := &app{
		cfg:     cfg,
		log:     logger,
		reg:     reg,
		metrics: metrics.NewEngine(reg),
		out:     out,
	}
	a.open = a.openTransport
	return a, nil
}

func (a *app) close() {
	if a.cfg.Logging.SessionDir != "" {
		_ = venus.CloseSessionLog()
	}
	_ = a.log.Sync()
}

func (a *app) openTransport(ctx context.Context) (venus.Transport, error) {
	switch a.cfg.Transport {
	case "serial":
		port := a.cfg.Serial.Port
		if port == autoPort {
			found, err := a.detect(ctx, false, []string{string(venus.TransportSerial)})
			if err != nil {
				return nil, fmt.Errorf("serial port auto-detection: %w", err)
			}
			port = found[0].Path
			a.log.Info("using detected serial port", zap.String("port", port), zap.String("name", found[0].Name))
		}
		tr, err := uart.New(port, a.cfg.Serial.Baud)
		if err != nil {
			return nil, fmt.Errorf("failed to create serial transport: %w", err)
		}
		return tr, nil
	default:
		tr, err := ble.Open(ctx, ble.Config{
			Address:      a.cfg.BLE.Address,
			Name:         a.cfg.BLE.Name,
			NamePrefixes: a.cfg.BLE.NamePrefixes,
			ScanTimeout:  a.cfg.BLE.ScanTimeout,
			WriteRate:    a.cfg.BLE.WriteRate,
			WriteBurst:   a.cfg.BLE.WriteBurst,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create BLE transport: %w", err)
		}
		return tr, nil
	}
}

func (a *app) detect(ctx context.Context, probe bool, transports []string) ([]detection.DeviceInfo, error) {
	opts := detection.DefaultOptions()
	opts.Transports = transports
	opts.NamePrefixes = a.cfg.BLE.NamePrefixes
	opts.EnableCache = false
	if probe {
		opts.Mode = detection.Probe
		opts.Timeout *= 2
	}
	devices, err := detection.DetectAll(ctx, &opts)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	return devices, nil
}

func (a *app) runDetect(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("detect", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	probe := fs.Bool("probe", false, "Connect and query each candidate")
	transport := fs.String("transport", "", "Only check ble or serial")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	var transports []string
	if *transport != "" {
		transports = []string{*transport}
	}
	devices, err := a.detect(ctx, *probe, transports)
	if err != nil {
		return err
	}
	for _, d := range devices {
		_, _ = fmt.Fprintln(a.out, d.String())
		if info := d.Metadata["device-info"]; info != "" {
			_, _ = fmt.Fprintf(a.out, "  %s\n", info)
		}
	}
	return nil
}

// link is one connected transport with a running engine on top.
type link struct {
	transport venus.Transport
	engine    *venus.Engine
}

func (l *link) close() {
	_ = l.engine.Close()
	_ = l.transport.Close()
}

func (a *app) connect(ctx context.Context, extra ...venus.Option) (*link, error) {
	tr, err := a.open(ctx)
	if err != nil {
		return nil, err
	}
	opts := []venus.Option{
		venus.WithLogger(a.log),
		venus.WithMetrics(a.metrics),
		venus.WithTimeouts(a.cfg.timeouts()),
	}
	if a.cfg.Strict {
		opts = append(opts, venus.WithStrictResponses())
	}
	opts = append(opts, extra...)

	e, err := venus.New(tr, opts...)
	if err != nil {
		_ = tr.Close()
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	if err := e.Start(ctx); err != nil {
		_ = tr.Close()
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}
	a.log.Info("connected", zap.String("transport", string(tr.Type())))
	return &link{transport: tr, engine: e}, nil
}

// serveMetrics exposes the registry until ctx ends. It is a no-op when no
// listen address is configured.
func (a *app) serveMetrics(ctx context.Context) {
	if a.cfg.Metrics.Listen == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, metrics.Handler(a.reg))
	srv := &http.Server{
		Addr:              a.cfg.Metrics.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	a.log.Info("serving metrics", zap.String("addr", a.cfg.Metrics.Listen), zap.String("path", a.cfg.Metrics.Path))
}

func runAnalyze(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	chunk := fs.Int("chunk", firmware.DefaultChunkSize, "Chunk payload size")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() != 1 || *chunk <= 0 {
		return fmt.Errorf("%w: analyze takes one image path", errUsage)
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(firmware.NewReport(data, *chunk)); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return enc.Close()
}

func runPorts(out io.Writer) error {
	ports, err := uart.Ports()
	if err != nil {
		return err
	}
	for _, p := range ports {
		_, _ = fmt.Fprintln(out, p)
	}
	return nil
}

func (a *app) runOTA(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: ota takes one image path", errUsage)
	}
	image, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	report := firmware.NewReport(image, firmware.DefaultChunkSize)
	_, _ = fmt.Fprintf(a.out, "image: %d bytes, %s, checksum %s, %d chunks\n",
		report.Size, report.Type, report.Checksum, report.Chunks)
	for _, w := range report.Warnings {
		_, _ = fmt.Fprintf(a.out, "warning: %s\n", w)
	}

	a.serveMetrics(ctx)
	lastDecile := -1
	l, err := a.connect(ctx, venus.WithProgressCallback(func(p venus.Progress) {
		if d := int(p.Percent) / 10; d != lastDecile {
			lastDecile = d
			_, _ = fmt.Fprintf(a.out, "chunk %d/%d (%.0f%%)\n", p.ChunkIndex, p.TotalChunks, p.Percent)
		}
	}))
	if err != nil {
		return err
	}
	defer l.close()

	result, err := l.engine.UpdateFirmware(ctx, image)
	if err != nil {
		return fmt.Errorf("firmware update failed: %w", err)
	}
	_, _ = fmt.Fprintf(a.out, "update completed in %v (%d chunks)\n",
		result.Duration.Round(time.Millisecond), result.ChunksSent)
	return nil
}

func (a *app) runSend(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	wait := fs.Duration("wait", 3*time.Second, "How long to wait for a reply")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		return fmt.Errorf("%w: send takes a command and an optional hex payload", errUsage)
	}
	cmd, err := venus.CommandByName(fs.Arg(0))
	if err != nil {
		return err
	}
	payload, err := parsePayload(fs.Arg(1))
	if err != nil {
		return err
	}

	replies := make(chan venus.Response, 8)
	l, err := a.connect(ctx, venus.WithResponseHandler(func(r venus.Response) {
		select {
		case replies <- r:
		default:
		}
	}))
	if err != nil {
		return err
	}
	defer l.close()

	if err := l.engine.SendVariant(ctx, venus.DefaultVariant(cmd), cmd, payload); err != nil {
		return fmt.Errorf("send %s: %w", venus.CommandName(cmd), err)
	}

	timer := time.NewTimer(*wait)
	defer timer.Stop()
	for {
		select {
		case r := <-replies:
			printResponse(a.out, r)
			if r.Cmd == cmd {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("no reply to %s within %v", venus.CommandName(cmd), *wait)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (a *app) runMonitor(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("%w: monitor takes no arguments", errUsage)
	}
	cmds, err := a.cfg.pollCommands()
	if err != nil {
		return err
	}
	handler := venus.WithResponseHandler(func(r venus.Response) { printResponse(a.out, r) })

	current, err := a.connect(ctx, handler)
	if err != nil {
		return err
	}
	defer func() { current.close() }()

	reopen := func(ctx context.Context) (polling.Target, error) {
		current.close()
		l, err := a.connect(ctx, handler)
		if err != nil {
			return nil, err
		}
		current = l
		return l.engine, nil
	}

	pcfg := polling.DefaultConfig()
	pcfg.Commands = cmds
	pcfg.PollInterval = a.cfg.Poll.Interval
	pcfg.BackoffInterval = a.cfg.Poll.Backoff
	recoverer := polling.NewDefaultRecoverer(current.engine, reopen,
		pcfg.SleepRecovery.RecoveryBackoff, pcfg.SleepRecovery.MaxRecoveryAttempts)

	poller, err := polling.NewPoller(current.engine, pcfg,
		polling.WithRecoverer(recoverer),
		polling.WithLogger(a.log),
		polling.WithCallbacks(polling.Callbacks{
			OnPollError: func(cmd byte, err error) {
				a.log.Warn("poll failed", zap.String("cmd", venus.CommandName(cmd)), zap.Error(err))
			},
			OnRecovered: func() { a.log.Info("link recovered") },
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create poller: %w", err)
	}

	a.serveMetrics(ctx)
	if err := poller.Start(ctx); err != nil {
		return fmt.Errorf("failed to start poller: %w", err)
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := poller.Stop(stopCtx); err != nil {
		return fmt.Errorf("failed to stop poller: %w", err)
	}
	m := poller.GetMetrics()
	a.log.Info("monitor stopped",
		zap.Int64("polls", m.Polls), zap.Int64("errors", m.PollErrors), zap.Int64("recoveries", m.Recoveries))
	return nil
}

func parsePayload(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	s = strings.NewReplacer(" ", "", ":", "").Replace(strings.TrimPrefix(strings.ToLower(s), "0x"))
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: payload must be hex: %w", errUsage, err)
	}
	return b, nil
}

func printResponse(out io.Writer, r venus.Response) {
	_, _ = fmt.Fprintf(out, "%s: % X", venus.CommandName(r.Cmd), r.Payload)
	if isPrintable(r.Payload) {
		_, _ = fmt.Fprintf(out, " %q", string(r.Payload))
	}
	_, _ = fmt.Fprintln(out)
}

func isPrintable(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if c < 0x20 || c > 0x7E {
			return false
		}
	}
	return true
}
