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
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailbox_DeliverResolvesWait(t *testing.T) {
	t.Parallel()

	mb := NewMailbox()
	wait := mb.Arm(CmdOTAChunk)

	cmd, ok := mb.Pending()
	require.True(t, ok)
	assert.Equal(t, byte(CmdOTAChunk), cmd)

	assert.True(t, mb.Deliver(Ack{Cmd: CmdOTAChunk, Payload: []byte{0x80, 0, 0, 0}}))

	ack, err := wait.Wait(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x80, 0, 0, 0}, ack.Payload)

	_, ok = mb.Pending()
	assert.False(t, ok)
}

func TestMailbox_DuplicateAckIsUnmatched(t *testing.T) {
	t.Parallel()

	mb := NewMailbox()
	wait := mb.Arm(CmdOTASize)

	require.True(t, mb.Deliver(Ack{Cmd: CmdOTASize}))
	assert.False(t, mb.Deliver(Ack{Cmd: CmdOTASize}), "second ack must not resolve anything")

	_, err := wait.Wait(context.Background(), time.Second)
	require.NoError(t, err)
}

func TestMailbox_DeliverWithoutWaiter(t *testing.T) {
	t.Parallel()

	assert.False(t, NewMailbox().Deliver(Ack{Cmd: CmdOTAChunk}))
}

func TestMailbox_UnexpectedCommandFailsImmediately(t *testing.T) {
	t.Parallel()

	mb := NewMailbox()
	wait := mb.Arm(CmdOTAChunk)
	require.True(t, mb.Deliver(Ack{Cmd: CmdOTAFinalize}))

	start := time.Now()
	_, err := wait.Wait(context.Background(), 5*time.Second)

	require.ErrorIs(t, err, ErrUnexpectedAck)
	var ackErr *AckError
	require.ErrorAs(t, err, &ackErr)
	assert.Equal(t, byte(CmdOTAChunk), ackErr.Expected)
	assert.Equal(t, byte(CmdOTAFinalize), ackErr.Got)
	assert.Less(t, time.Since(start), time.Second)
}

func TestMailbox_Timeout(t *testing.T) {
	t.Parallel()

	mb := NewMailbox()
	_, err := mb.Await(context.Background(), CmdOTAChunk, 20*time.Millisecond)

	require.ErrorIs(t, err, ErrAckTimeout)
	assert.Contains(t, err.Error(), "0x51")

	_, ok := mb.Pending()
	assert.False(t, ok, "timed out wait must leave the slot empty")
	assert.False(t, mb.Deliver(Ack{Cmd: CmdOTAChunk}), "late ack is unmatched")
}

func TestMailbox_ArmSupersedesPendingWait(t *testing.T) {
	t.Parallel()

	mb := NewMailbox()
	first := mb.Arm(CmdOTASize)
	second := mb.Arm(CmdOTAChunk)

	_, err := first.Wait(context.Background(), time.Second)
	require.ErrorIs(t, err, ErrAckSuperseded)

	require.True(t, mb.Deliver(Ack{Cmd: CmdOTAChunk}))
	_, err = second.Wait(context.Background(), time.Second)
	require.NoError(t, err)
}

func TestMailbox_ContextCancel(t *testing.T) {
	t.Parallel()

	mb := NewMailbox()
	ctx, cancel := context.WithCancel(context.Background())
	wait := mb.Arm(CmdOTAFinalize)
	cancel()

	_, err := wait.Wait(ctx, time.Second)
	require.ErrorIs(t, err, context.Canceled)

	_, ok := mb.Pending()
	assert.False(t, ok)
}

func TestMailbox_FailResolvesPending(t *testing.T) {
	t.Parallel()

	mb := NewMailbox()
	wait := mb.Arm(CmdOTAChunk)
	mb.Fail(ErrTransportClosed)

	_, err := wait.Wait(context.Background(), time.Second)
	require.ErrorIs(t, err, ErrTransportClosed)
}

func TestMailbox_Cancel(t *testing.T) {
	t.Parallel()

	mb := NewMailbox()
	mb.Arm(CmdOTAChunk).Cancel()

	_, ok := mb.Pending()
	assert.False(t, ok)
}

// Deliveries racing the timeout must resolve each wait exactly once.
func TestMailbox_ResolvesOnceUnderRace(t *testing.T) {
	t.Parallel()

	mb := NewMailbox()
	for range 200 {
		wait := mb.Arm(CmdOTAChunk)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			mb.Deliver(Ack{Cmd: CmdOTAChunk})
		}()

		_, err := wait.Wait(context.Background(), time.Microsecond)
		if err != nil {
			require.ErrorIs(t, err, ErrAckTimeout)
		}
		wg.Wait()

		_, ok := mb.Pending()
		require.False(t, ok)
	}
}

func TestActivationWaiter(t *testing.T) {
	t.Parallel()

	var a activationWaiter
	w := a.arm()
	assert.True(t, a.pending())
	assert.True(t, a.resolve([]byte{0x01}))
	assert.False(t, a.resolve([]byte{0x01}))

	payload, err := a.wait(context.Background(), w, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, payload)

	w = a.arm()
	_, err = a.wait(context.Background(), w, 10*time.Millisecond)
	require.ErrorIs(t, err, ErrAckTimeout)
	assert.False(t, a.pending())
}
