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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOTAStateMachine_HappyPath(t *testing.T) {
	t.Parallel()

	var visited []OTAState
	sm := newOTAStateMachine(func(_, to OTAState) { visited = append(visited, to) })

	for _, ev := range []string{
		eventPrepare, eventActivate, eventSendSize, eventTransfer, eventFinalize, eventComplete,
	} {
		require.NoError(t, sm.Event(ev), ev)
	}

	assert.Equal(t, []OTAState{
		StatePreparing, StateActivating, StateSendingSize,
		StateTransferring, StateFinalizing, StateCompleted,
	}, visited)
	assert.True(t, OTAState(sm.Current()).Terminal())
}

func TestOTAStateMachine_FailFromEveryActiveState(t *testing.T) {
	t.Parallel()

	path := []string{eventPrepare, eventActivate, eventSendSize, eventTransfer, eventFinalize}
	for depth := 1; depth <= len(path); depth++ {
		sm := newOTAStateMachine(nil)
		for _, ev := range path[:depth] {
			require.NoError(t, sm.Event(ev))
		}
		require.NoError(t, sm.Event(eventFail), "fail after %s", path[depth-1])
		assert.Equal(t, string(StateFailed), sm.Current())

		require.NoError(t, sm.Event(eventReset))
		assert.Equal(t, string(StateIdle), sm.Current())
	}
}

func TestOTAStateMachine_RejectsInvalidTransitions(t *testing.T) {
	t.Parallel()

	sm := newOTAStateMachine(nil)
	require.Error(t, sm.Event(eventFail), "idle cannot fail")
	require.Error(t, sm.Event(eventTransfer), "cannot skip ahead")
	require.Error(t, sm.Event(eventReset), "idle cannot reset")

	require.NoError(t, sm.Event(eventPrepare))
	require.Error(t, sm.Event(eventPrepare), "no backward edges")
	assert.Equal(t, string(StatePreparing), sm.Current())
}

func TestOTAState_Ordinal(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, StateIdle.Ordinal())
	assert.Equal(t, 4, StateTransferring.Ordinal())
	assert.Equal(t, 7, StateFailed.Ordinal())
	assert.Equal(t, -1, OTAState("bogus").Ordinal())
	assert.False(t, StateFinalizing.Terminal())
}
