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
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-venus/firmware"
	"github.com/ZaparooProject/go-venus/internal/frame"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Progress is emitted after each acknowledged chunk.
type Progress struct {
	SessionID   string
	ChunkIndex  int // 1-based
	TotalChunks int
	BytesSent   int
	Percent     float64
}

// OTAResult is the terminal event of a firmware update session.
type OTAResult struct {
	SessionID   string
	Reason      string // empty on success
	FinalState  OTAState
	FailedIn    OTAState // state the session failed in, empty on success
	Firmware    firmware.Analysis
	Size        int
	ChunksSent  int
	TotalChunks int
	Duration    time.Duration
	Success     bool
}

// otaSession is the mutable record of one update. It exists only for the
// duration of UpdateFirmware.
type otaSession struct {
	started   time.Time
	image     []byte
	chunks    []firmware.Chunk
	analysis  firmware.Analysis
	id        uuid.UUID
	bytesSent int
	chunkSent int
}

// UpdateFirmware runs a complete OTA session: activation, size
// negotiation, sequential chunk transfer and finalization. It returns when
// the session reaches completed or failed. A failure is returned as a
// *SessionError, wrapped in a *TraceableError carrying the last frames.
//
// There is no way to cancel a running session other than ctx or losing
// the connection; both count as a failure.
func (e *Engine) UpdateFirmware(ctx context.Context, image []byte) (OTAResult, error) {
	if !e.running() {
		return OTAResult{}, ErrEngineNotStarted
	}
	if !e.otaActive.CompareAndSwap(false, true) {
		return OTAResult{}, ErrOTAInProgress
	}
	defer e.otaActive.Store(false)

	if OTAState(e.sm.Current()).Terminal() {
		if err := e.sm.Event(eventReset); err != nil {
			return OTAResult{}, fmt.Errorf("reset ota state: %w", err)
		}
	}
	e.dispatcher.abandon()
	e.trace.Clear()

	s := &otaSession{
		id:       uuid.New(),
		image:    image,
		started:  time.Now(),
		analysis: firmware.Analyze(image),
	}
	log := e.log().With(zap.String("session", s.id.String()))
	log.Info("firmware update starting", zap.Int("size", len(image)))

	err := e.runSession(ctx, s, log)

	result := OTAResult{
		SessionID:   s.id.String(),
		FinalState:  e.OTAState(),
		Firmware:    s.analysis,
		Size:        len(image),
		ChunksSent:  s.chunkSent,
		TotalChunks: len(s.chunks),
		Duration:    time.Since(s.started),
		Success:     err == nil,
	}
	var se *SessionError
	if errors.As(err, &se) {
		result.Reason = se.Reason
		result.FailedIn = se.State
	}

	status := "completed"
	if err != nil {
		status = "failed"
		log.Warn("firmware update failed", zap.Error(err), zap.Duration("elapsed", result.Duration))
	} else {
		log.Info("firmware update completed", zap.Duration("elapsed", result.Duration))
	}
	e.metrics.SessionFinished(status, result.Duration.Seconds())
	if e.onResult != nil {
		e.onResult(result)
	}
	return result, err
}

func (e *Engine) runSession(ctx context.Context, s *otaSession, log *zap.Logger) error {
	steps := []struct {
		run   func(context.Context, *otaSession, *zap.Logger) error
		event string
	}{
		{event: eventPrepare, run: e.prepare},
		{event: eventActivate, run: e.activate},
		{event: eventSendSize, run: e.sendSize},
		{event: eventTransfer, run: e.transferChunks},
		{event: eventFinalize, run: e.finalize},
	}

	for _, step := range steps {
		if err := e.sm.Event(step.event); err != nil {
			return e.failSession(s, fmt.Errorf("enter %s: %w", step.event, err))
		}
		if err := step.run(ctx, s, log); err != nil {
			return e.failSession(s, err)
		}
	}
	if err := e.sm.Event(eventComplete); err != nil {
		return e.failSession(s, err)
	}
	return nil
}

func (e *Engine) failSession(s *otaSession, cause error) error {
	state := e.OTAState()
	if err := e.sm.Event(eventFail); err != nil {
		e.log().Error("could not mark session failed", zap.Error(err))
	}
	return e.trace.WrapError(&SessionError{
		SessionID: s.id.String(),
		State:     state,
		Reason:    cause.Error(),
		Err:       cause,
	})
}

func (e *Engine) prepare(_ context.Context, s *otaSession, log *zap.Logger) error {
	if len(s.image) == 0 {
		return ErrEmptyFirmware
	}
	if !e.transport.IsConnected() {
		return ErrNotConnected
	}
	s.chunks = firmware.Plan(len(s.image), e.chunkSize)

	fields := []zap.Field{
		zap.String("checksum", fmt.Sprintf("0x%08X", s.analysis.Checksum)),
		zap.Stringer("type", s.analysis.Type),
		zap.Int("chunks", len(s.chunks)),
	}
	if s.analysis.Warning != firmware.SizeOK {
		log.Warn("firmware image looks unusual", append(fields, zap.Stringer("warning", s.analysis.Warning))...)
	} else {
		log.Info("firmware image analyzed", fields...)
	}
	return nil
}

func (e *Engine) activate(ctx context.Context, _ *otaSession, log *zap.Logger) error {
	buf, err := frame.EncodeStandard(CmdOTAActivate, frame.ActivationMagic)
	if err != nil {
		return err
	}

	w := e.activation.arm()
	if err := e.writeFrame(ctx, e.writer, buf, VariantStandard, "activate"); err != nil {
		e.activation.slot.release(w)
		return fmt.Errorf("send activation: %w", err)
	}
	payload, err := e.activation.wait(ctx, w, e.timeouts.Activation)
	e.metrics.AckWait(CommandName(CmdOTAActivate), ackOutcome(err))
	if err != nil {
		return fmt.Errorf("activation: %w", err)
	}
	if len(payload) == 0 || payload[0] != frame.ActivationOK {
		return fmt.Errorf("%w (status %s)", ErrActivationFailed, statusByte(payload))
	}
	log.Info("device activated for update")
	return nil
}

func (e *Engine) sendSize(ctx context.Context, s *otaSession, log *zap.Logger) error {
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint32(payload[0:4], uint32(len(s.image))) //nolint:gosec // firmware images are far below 4 GiB
	binary.LittleEndian.PutUint32(payload[4:8], s.analysis.Checksum)

	ack, err := e.exchange(ctx, e.writer, CmdOTASize, payload, e.timeouts.SizeAck, "size")
	if err != nil {
		return fmt.Errorf("size: %w", err)
	}
	if len(ack.Payload) >= 8 {
		if echoed := binary.LittleEndian.Uint32(ack.Payload[4:8]); echoed != s.analysis.Checksum {
			log.Warn("device echoed a different checksum",
				zap.String("sent", fmt.Sprintf("0x%08X", s.analysis.Checksum)),
				zap.String("echoed", fmt.Sprintf("0x%08X", echoed)))
		}
	}
	return nil
}

func (e *Engine) transferChunks(ctx context.Context, s *otaSession, log *zap.Logger) error {
	total := len(s.chunks)
	for _, c := range s.chunks {
		payload := make([]byte, 4+c.Length)
		binary.LittleEndian.PutUint32(payload[0:4], uint32(c.Offset)) //nolint:gosec // offset < image size
		copy(payload[4:], s.image[c.Offset:c.Offset+c.Length])
		note := fmt.Sprintf("chunk %d/%d", c.Index, total)

		cfg := FixedRetryConfig(e.timeouts.ChunkAttempts, e.timeouts.ChunkRetryDelay)
		cfg.OnRetry = e.chunkRetryHook(log, c, total)
		err := RetryWithConfig(ctx, cfg, func(int) error {
			// Chunk writes are not retried by the transport wrapper; the
			// whole chunk exchange is the unit of retry.
			ack, err := e.exchange(ctx, e.transport, CmdOTAChunk, payload, e.timeouts.ChunkAck, note)
			if err != nil {
				return err
			}
			if len(ack.Payload) >= 4 {
				if echoed := binary.LittleEndian.Uint32(ack.Payload[0:4]); int(echoed) != c.Offset {
					log.Warn("device echoed a different chunk offset",
						zap.Int("chunk", c.Index), zap.Int("sent", c.Offset), zap.Uint32("echoed", echoed))
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("chunk %d/%d at offset %d: %w", c.Index, total, c.Offset, err)
		}

		s.chunkSent = c.Index
		s.bytesSent += c.Length
		e.metrics.AddBytes(c.Length)
		if e.onProgress != nil {
			e.onProgress(Progress{
				SessionID:   s.id.String(),
				ChunkIndex:  c.Index,
				TotalChunks: total,
				BytesSent:   s.bytesSent,
				Percent:     float64(c.Index) * 100 / float64(total),
			})
		}
	}
	return nil
}

func (e *Engine) finalize(ctx context.Context, _ *otaSession, _ *zap.Logger) error {
	ack, err := e.exchange(ctx, e.writer, CmdOTAFinalize, nil, e.timeouts.FinalizeAck, "finalize")
	if err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	if len(ack.Payload) == 0 {
		return fmt.Errorf("finalize: %w", ErrAckPayloadTooShort)
	}
	if ack.Payload[0] != 0x01 {
		return fmt.Errorf("%w (status %s)", ErrFinalizeRejected, statusByte(ack.Payload))
	}
	return nil
}

// exchange writes one OTA frame and waits for its ack. The mailbox is armed
// before the write.
func (e *Engine) exchange(
	ctx context.Context, w Transport, cmd byte, payload []byte, timeout time.Duration, note string,
) (Ack, error) {
	buf, err := frame.EncodeOTA(cmd, frame.OTAReserved, payload)
	if err != nil {
		return Ack{}, err
	}

	wait := e.mailbox.Arm(cmd)
	if err := e.writeFrame(ctx, w, buf, VariantOTA, note); err != nil {
		wait.Cancel()
		return Ack{}, err
	}
	ack, err := wait.Wait(ctx, timeout)
	e.metrics.AckWait(CommandName(cmd), ackOutcome(err))
	return ack, err
}

func (e *Engine) writeFrame(ctx context.Context, w Transport, buf []byte, variant Variant, note string) error {
	e.trace.RecordTX(buf, note)
	if err := w.Write(ctx, buf); err != nil {
		return asTransportError("Write", string(e.transport.Type()), err)
	}
	e.metrics.FrameSent(variant.String())
	return nil
}

func ackOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAckTimeout):
		return "timeout"
	case errors.Is(err, ErrUnexpectedAck):
		return "unexpected"
	default:
		return "error"
	}
}

func statusByte(payload []byte) string {
	if len(payload) == 0 {
		return "missing"
	}
	return fmt.Sprintf("0x%02X", payload[0])
}
