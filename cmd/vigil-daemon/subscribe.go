// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/vigil-works/vigil/lib/codec"
	"github.com/vigil-works/vigil/lib/schema"
)

// subscriberBuffer is the per-subscriber frame queue. When it fills,
// the oldest frame is dropped: a monitoring client wants the freshest
// metrics, not a complete replay.
const subscriberBuffer = 64

// heartbeatInterval paces keepalive frames so subscribers detect a
// dead daemon without waiting for workspace activity.
const heartbeatInterval = 10 * time.Second

// frameWriteTimeout bounds each frame write to a subscriber.
const frameWriteTimeout = 5 * time.Second

// shutdownWriteTimeout bounds the final frame during daemon shutdown.
// Short: every open stream writes one while Serve drains.
const shutdownWriteTimeout = 2 * time.Second

// streamSubscriber is one connected subscribe stream. An empty
// workspaceID receives frames for every workspace.
type streamSubscriber struct {
	workspaceID string
	frames      chan schema.EventFrame
}

// deliver enqueues a frame without blocking the event pump. On a full
// queue the oldest frame is dropped to make room; the pump is the only
// producer, so one drop always suffices.
func (s *streamSubscriber) deliver(frame schema.EventFrame) {
	select {
	case s.frames <- frame:
		return
	default:
	}
	select {
	case <-s.frames:
	default:
	}
	select {
	case s.frames <- frame:
	default:
	}
}

func (d *Daemon) addSubscriber(sub *streamSubscriber) {
	d.subscriberMu.Lock()
	d.subscribers[sub] = struct{}{}
	d.subscriberMu.Unlock()
}

func (d *Daemon) removeSubscriber(sub *streamSubscriber) {
	d.subscriberMu.Lock()
	delete(d.subscribers, sub)
	d.subscriberMu.Unlock()
}

func (d *Daemon) subscriberCount() int {
	d.subscriberMu.RLock()
	defer d.subscriberMu.RUnlock()
	return len(d.subscribers)
}

// fanOut delivers one frame to every subscriber whose filter matches.
func (d *Daemon) fanOut(frame schema.EventFrame) {
	d.subscriberMu.RLock()
	defer d.subscriberMu.RUnlock()
	for sub := range d.subscribers {
		if sub.workspaceID != "" && sub.workspaceID != frame.WorkspaceID {
			continue
		}
		sub.deliver(frame)
	}
}

// handleSubscribe serves one subscribe stream: an acknowledgment, then
// event frames interleaved with heartbeats until the client hangs up
// or the daemon shuts down. Shutdown is announced with a final
// "shutdown" frame so clients can tell it apart from a dropped link.
func (d *Daemon) handleSubscribe(ctx context.Context, raw []byte, conn net.Conn) {
	var request struct {
		WorkspaceID string `cbor:"workspace_id"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		d.writeAck(conn, schema.StreamAck{Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}

	sub := &streamSubscriber{
		workspaceID: request.WorkspaceID,
		frames:      make(chan schema.EventFrame, subscriberBuffer),
	}

	// Register before acknowledging so no event published between the
	// ack and the first loop iteration is missed.
	d.addSubscriber(sub)
	defer d.removeSubscriber(sub)

	if !d.writeAck(conn, schema.StreamAck{OK: true}) {
		return
	}

	d.logger.Info("subscriber connected",
		"workspace_filter", request.WorkspaceID,
		"subscribers", d.subscriberCount(),
	)

	// Subscribers send nothing after the request, so a read only ever
	// observes the disconnect.
	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		discard := make([]byte, 64)
		for {
			if _, err := conn.Read(discard); err != nil {
				return
			}
		}
	}()

	heartbeat := d.clk.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(shutdownWriteTimeout))
			codec.NewEncoder(conn).Encode(schema.EventFrame{
				Type: schema.FrameShutdown,
				At:   d.clk.Now().UnixNano(),
			})
			return
		case <-disconnected:
			d.logger.Info("subscriber disconnected",
				"subscribers", d.subscriberCount()-1,
			)
			return
		case frame := <-sub.frames:
			if !d.writeFrame(conn, frame) {
				return
			}
		case <-heartbeat.C:
			if !d.writeFrame(conn, schema.EventFrame{
				Type: schema.FrameHeartbeat,
				At:   d.clk.Now().UnixNano(),
			}) {
				return
			}
		}
	}
}

// writeFrame writes one frame under a deadline. Returns false when the
// subscriber is gone or too slow to keep.
func (d *Daemon) writeFrame(conn net.Conn, frame schema.EventFrame) bool {
	conn.SetWriteDeadline(time.Now().Add(frameWriteTimeout))
	if err := codec.NewEncoder(conn).Encode(frame); err != nil {
		d.logger.Debug("dropping subscriber after failed write",
			"frame", frame.Type,
			"error", err,
		)
		return false
	}
	return true
}

func (d *Daemon) writeAck(conn net.Conn, ack schema.StreamAck) bool {
	conn.SetWriteDeadline(time.Now().Add(frameWriteTimeout))
	if err := codec.NewEncoder(conn).Encode(ack); err != nil {
		d.logger.Debug("failed to write stream ack", "error", err)
		return false
	}
	return true
}
