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

	"github.com/ZaparooProject/go-venus/internal/frame"
)

// Query command codes understood by the battery and meter firmware
const (
	CmdRuntimeInfo = 0x03
	CmdDeviceInfo  = 0x04
	CmdWiFiInfo    = 0x08
	CmdSystemData  = 0x0D
	CmdErrorCodes  = 0x13
	CmdBMSData     = 0x14
	CmdConfigData  = 0x1A
	CmdMeterIP     = 0x21
)

// OTA command codes
const (
	CmdOTAActivate = frame.CmdActivate
	CmdOTASize     = frame.CmdOTASize
	CmdOTAChunk    = frame.CmdOTAChunk
	CmdOTAFinalize = frame.CmdOTAFinalize
)

// Frame variants, re-exported for callers of Engine.SendVariant.
const (
	VariantStandard = frame.VariantStandard
	VariantMeterIP  = frame.VariantMeterIP
	VariantOTA      = frame.VariantOTA
)

// Variant identifies a wire format.
type Variant = frame.Variant

// Ack is a decoded OTA acknowledgment.
type Ack = frame.Ack

var commandNames = map[byte]string{
	CmdRuntimeInfo: "runtime-info",
	CmdDeviceInfo:  "device-info",
	CmdWiFiInfo:    "wifi-info",
	CmdSystemData:  "system-data",
	CmdErrorCodes:  "error-codes",
	CmdBMSData:     "bms-data",
	CmdConfigData:  "config-data",
	CmdOTAActivate: "ota-activate",
	CmdMeterIP:     "meter-ip",
	CmdOTASize:     "ota-size",
	CmdOTAChunk:    "ota-chunk",
	CmdOTAFinalize: "ota-finalize",
}

// CommandName returns a short name for logs and metrics labels.
func CommandName(cmd byte) string {
	if name, ok := commandNames[cmd]; ok {
		return name
	}
	return fmt.Sprintf("0x%02X", cmd)
}

// CommandByName resolves a CommandName back to its code. Hex literals such
// as "0x0D" are accepted too.
func CommandByName(name string) (byte, error) {
	for cmd, n := range commandNames {
		if n == name {
			return cmd, nil
		}
	}
	var cmd byte
	if _, err := fmt.Sscanf(name, "0x%02X", &cmd); err == nil {
		return cmd, nil
	}
	return 0, fmt.Errorf("%w: unknown command %q", ErrInvalidParameter, name)
}

// DefaultVariant returns the wire format a command is normally sent with.
// Meter IP configuration uses the Meter-IP checksum scope.
func DefaultVariant(cmd byte) Variant {
	if cmd == CmdMeterIP {
		return VariantMeterIP
	}
	return VariantStandard
}

// Response is a decoded reply to a generic command.
type Response struct {
	Payload []byte
	Variant Variant
	Cmd     byte
}

// ResponseHandler receives decoded replies on the engine's router goroutine.
// It must not block.
type ResponseHandler func(Response)
