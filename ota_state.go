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
	"github.com/looplab/fsm"
)

// OTAState is the state of the firmware update state machine.
type OTAState string

const (
	StateIdle         OTAState = "idle"
	StatePreparing    OTAState = "preparing"
	StateActivating   OTAState = "activating"
	StateSendingSize  OTAState = "sending_size"
	StateTransferring OTAState = "transferring_chunks"
	StateFinalizing   OTAState = "finalizing"
	StateCompleted    OTAState = "completed"
	StateFailed       OTAState = "failed"
)

var stateOrder = []OTAState{
	StateIdle, StatePreparing, StateActivating, StateSendingSize,
	StateTransferring, StateFinalizing, StateCompleted, StateFailed,
}

// Ordinal returns the position of s in the forward path, used as a metrics
// gauge value. Failed sorts last.
func (s OTAState) Ordinal() int {
	for i, st := range stateOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Terminal reports whether s ends a session.
func (s OTAState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

func (s OTAState) String() string {
	return string(s)
}

// State machine events.
const (
	eventPrepare  = "prepare"
	eventActivate = "activate"
	eventSendSize = "send_size"
	eventTransfer = "transfer"
	eventFinalize = "finalize"
	eventComplete = "complete"
	eventFail     = "fail"
	eventReset    = "reset"
)

// newOTAStateMachine builds the transition table. The path is strictly
// linear; failed is reachable from every non-terminal state except idle,
// and reset returns a terminal machine to idle for the next session.
func newOTAStateMachine(onEnter func(from, to OTAState)) *fsm.FSM {
	return fsm.NewFSM(
		string(StateIdle),
		fsm.Events{
			{Name: eventPrepare, Src: []string{string(StateIdle)}, Dst: string(StatePreparing)},
			{Name: eventActivate, Src: []string{string(StatePreparing)}, Dst: string(StateActivating)},
			{Name: eventSendSize, Src: []string{string(StateActivating)}, Dst: string(StateSendingSize)},
			{Name: eventTransfer, Src: []string{string(StateSendingSize)}, Dst: string(StateTransferring)},
			{Name: eventFinalize, Src: []string{string(StateTransferring)}, Dst: string(StateFinalizing)},
			{Name: eventComplete, Src: []string{string(StateFinalizing)}, Dst: string(StateCompleted)},
			{
				Name: eventFail,
				Src: []string{
					string(StatePreparing), string(StateActivating), string(StateSendingSize),
					string(StateTransferring), string(StateFinalizing),
				},
				Dst: string(StateFailed),
			},
			{Name: eventReset, Src: []string{string(StateCompleted), string(StateFailed)}, Dst: string(StateIdle)},
		},
		fsm.Callbacks{
			"enter_state": func(e *fsm.Event) {
				if onEnter != nil {
					onEnter(OTAState(e.Src), OTAState(e.Dst))
				}
			},
		},
	)
}
