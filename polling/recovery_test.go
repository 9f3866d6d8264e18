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
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultRecoverer(t *testing.T) {
	t.Parallel()

	target := newFakeTarget()

	t.Run("WithDefaults", func(t *testing.T) {
		t.Parallel()
		r := NewDefaultRecoverer(target, nil, 0, 0)
		assert.NotNil(t, r)
		assert.Equal(t, 3, r.maxAttempts)
		assert.Equal(t, 500*time.Millisecond, r.backoff)
	})

	t.Run("WithCustomValues", func(t *testing.T) {
		t.Parallel()
		r := NewDefaultRecoverer(target, nil, 100*time.Millisecond, 5)
		assert.Equal(t, 5, r.maxAttempts)
		assert.Equal(t, 100*time.Millisecond, r.backoff)
	})
}

func TestDefaultRecoverer_LinkStillUp(t *testing.T) {
	t.Parallel()

	target := newFakeTarget()
	r := NewDefaultRecoverer(target, func(context.Context) (Target, error) {
		t.Fatal("reopen should not be called")
		return nil, nil
	}, 10*time.Millisecond, 3)

	require.NoError(t, r.AttemptRecovery(context.Background()))
	assert.Equal(t, Target(target), r.GetTarget())
}

func TestDefaultRecoverer_LinkDownNoReopen(t *testing.T) {
	t.Parallel()

	target := newFakeTarget()
	target.connected.Store(false)
	r := NewDefaultRecoverer(target, nil, time.Millisecond, 2)

	err := r.AttemptRecovery(context.Background())
	require.ErrorIs(t, err, ErrLinkDown)
}

func TestDefaultRecoverer_Reconnect(t *testing.T) {
	t.Parallel()

	down := newFakeTarget()
	down.connected.Store(false)
	up := newFakeTarget()

	calls := 0
	r := NewDefaultRecoverer(down, func(context.Context) (Target, error) {
		calls++
		if calls < 2 {
			return nil, errors.New("adapter busy")
		}
		return up, nil
	}, time.Millisecond, 3)

	require.NoError(t, r.AttemptRecovery(context.Background()))
	assert.Equal(t, 2, calls)
	assert.Equal(t, Target(up), r.GetTarget())
}

func TestDefaultRecoverer_ReconnectExhausted(t *testing.T) {
	t.Parallel()

	down := newFakeTarget()
	down.connected.Store(false)
	r := NewDefaultRecoverer(down, func(context.Context) (Target, error) {
		return nil, errors.New("device not found")
	}, time.Millisecond, 2)

	err := r.AttemptRecovery(context.Background())
	require.EqualError(t, err, "device not found")
	assert.Equal(t, Target(down), r.GetTarget())
}

func TestDefaultRecoverer_ContextCancelled(t *testing.T) {
	t.Parallel()

	down := newFakeTarget()
	down.connected.Store(false)
	r := NewDefaultRecoverer(down, nil, time.Second, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, r.AttemptRecovery(ctx), context.Canceled)
}
