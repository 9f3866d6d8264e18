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
	"errors"
	"fmt"
	"strings"
	"time"

	venus "github.com/ZaparooProject/go-venus"
	"github.com/spf13/viper"
)

var errInvalidConfig = errors.New("invalid config")

// autoPort as serial.port selects the first detected USB-serial bridge.
const autoPort = "auto"

// Config is the venusctl configuration file layout.
type Config struct {
	Transport string        `mapstructure:"transport"`
	BLE       BLEConfig     `mapstructure:"ble"`
	Serial    SerialConfig  `mapstructure:"serial"`
	Logging   LoggingConfig `mapstructure:"logging"`
	Metrics   MetricsConfig `mapstructure:"metrics"`
	OTA       OTAConfig     `mapstructure:"ota"`
	Poll      PollConfig    `mapstructure:"poll"`
	Strict    bool          `mapstructure:"strict"`
}

// BLEConfig selects the device to connect to.
type BLEConfig struct {
	Address      string        `mapstructure:"address"`
	Name         string        `mapstructure:"name"`
	NamePrefixes []string      `mapstructure:"namePrefixes"`
	ScanTimeout  time.Duration `mapstructure:"scanTimeout"`
	WriteRate    float64       `mapstructure:"writeRate"`
	WriteBurst   int           `mapstructure:"writeBurst"`
}

// SerialConfig describes a serial BLE bridge. Port may be "auto".
type SerialConfig struct {
	Port string `mapstructure:"port"`
	Baud int    `mapstructure:"baud"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level      string         `mapstructure:"level"`
	Format     string         `mapstructure:"format"`
	File       LumberjackFile `mapstructure:"file"`
	SessionDir string         `mapstructure:"sessionDir"`
	Debug      bool           `mapstructure:"debug"`
}

// LumberjackFile configures log file rotation. An empty Filename logs to
// stderr only.
type LumberjackFile struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig enables the Prometheus endpoint when Listen is set.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
	Path   string `mapstructure:"path"`
}

// OTAConfig overrides the acknowledgment windows.
type OTAConfig struct {
	ActivationTimeout time.Duration `mapstructure:"activationTimeout"`
	SizeAckTimeout    time.Duration `mapstructure:"sizeAckTimeout"`
	ChunkAckTimeout   time.Duration `mapstructure:"chunkAckTimeout"`
	FinalizeTimeout   time.Duration `mapstructure:"finalizeTimeout"`
	ChunkRetryDelay   time.Duration `mapstructure:"chunkRetryDelay"`
	ChunkAttempts     int           `mapstructure:"chunkAttempts"`
}

// PollConfig drives the monitor subcommand.
type PollConfig struct {
	Commands []string      `mapstructure:"commands"`
	Interval time.Duration `mapstructure:"interval"`
	Backoff  time.Duration `mapstructure:"backoff"`
}

// loadConfig reads path (or $VENUS_CONFIG) over the defaults and applies
// VENUS_ environment overrides. A missing file is not an error.
func loadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("VENUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = v.GetString("config")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("venusctl")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := venus.DefaultTimeouts()

	v.SetDefault("transport", "ble")
	v.SetDefault("strict", false)

	v.SetDefault("ble.address", "")
	v.SetDefault("ble.name", "")
	v.SetDefault("ble.namePrefixes", []string{})
	v.SetDefault("ble.scanTimeout", "15s")
	v.SetDefault("ble.writeRate", 50)
	v.SetDefault("ble.writeBurst", 1)

	v.SetDefault("serial.port", "")
	v.SetDefault("serial.baud", 115200)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.debug", false)
	v.SetDefault("logging.sessionDir", "")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 20)
	v.SetDefault("logging.file.maxBackups", 3)
	v.SetDefault("logging.file.maxAge", 14)
	v.SetDefault("logging.file.compress", false)

	v.SetDefault("metrics.listen", "")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("ota.activationTimeout", d.Activation)
	v.SetDefault("ota.sizeAckTimeout", d.SizeAck)
	v.SetDefault("ota.chunkAckTimeout", d.ChunkAck)
	v.SetDefault("ota.finalizeTimeout", d.FinalizeAck)
	v.SetDefault("ota.chunkRetryDelay", d.ChunkRetryDelay)
	v.SetDefault("ota.chunkAttempts", d.ChunkAttempts)

	v.SetDefault("poll.commands", []string{"runtime-info", "bms-data"})
	v.SetDefault("poll.interval", "10s")
	v.SetDefault("poll.backoff", "1m")
}

func (c *Config) validate() error {
	switch c.Transport {
	case "ble":
	case "serial":
		if c.Serial.Port == "" {
			return fmt.Errorf("%w: serial transport needs serial.port", errInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown transport %q", errInvalidConfig, c.Transport)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("%w: logging.format must be console or json", errInvalidConfig)
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.BLE.WriteRate == 0 {
		return fmt.Errorf("%w: ble.writeRate must be non-zero (negative disables pacing)", errInvalidConfig)
	}
	if _, err := c.pollCommands(); err != nil {
		return err
	}
	if c.Poll.Interval <= 0 || c.Poll.Backoff < c.Poll.Interval {
		return fmt.Errorf("%w: poll.backoff must be at least poll.interval", errInvalidConfig)
	}
	if err := c.timeouts().Validate(); err != nil {
		return fmt.Errorf("%w: %w", errInvalidConfig, err)
	}
	return nil
}

func (c *Config) timeouts() venus.Timeouts {
	return venus.Timeouts{
		Activation:      c.OTA.ActivationTimeout,
		SizeAck:         c.OTA.SizeAckTimeout,
		ChunkAck:        c.OTA.ChunkAckTimeout,
		FinalizeAck:     c.OTA.FinalizeTimeout,
		ChunkRetryDelay: c.OTA.ChunkRetryDelay,
		ChunkAttempts:   c.OTA.ChunkAttempts,
	}
}

func (c *Config) pollCommands() ([]byte, error) {
	cmds := make([]byte, 0, len(c.Poll.Commands))
	for _, name := range c.Poll.Commands {
		cmd, err := venus.CommandByName(name)
		if err != nil {
			return nil, fmt.Errorf("%w: poll.commands: %w", errInvalidConfig, err)
		}
		cmds = append(cmds, cmd)
	}
	if len(cmds) == 0 {
		return nil, fmt.Errorf("%w: poll.commands is empty", errInvalidConfig)
	}
	return cmds, nil
}
