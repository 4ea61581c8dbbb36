// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vigil-works/vigil/lib/schema"
	"github.com/vigil-works/vigil/lib/service"
)

const (
	// initialBackoff and maxBackoff bound the reconnect delay. The
	// delay doubles per failed attempt and resets once a subscription
	// is acknowledged.
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second

	// frameReadTimeout is how long a subscription may stay silent
	// before the connection is declared dead. The daemon heartbeats
	// every ten seconds, so this allows three missed beats.
	frameReadTimeout = 30 * time.Second

	// streamBuffer is how many events may queue between the reader
	// goroutine and the UI before the reader blocks.
	streamBuffer = 16
)

type streamEventKind int

const (
	streamConnecting streamEventKind = iota
	streamConnected
	streamFrame
	streamDisconnected
)

// streamEvent is one occurrence on the daemon subscription: a
// connection state change, or a received frame.
type streamEvent struct {
	Kind  streamEventKind
	Frame schema.EventFrame
	Err   error
}

// streamer maintains the subscribe stream against the daemon,
// reconnecting with backoff whenever it goes away. Events arrive on
// Events in the order they happened; heartbeat frames are consumed
// internally and never surface.
type streamer struct {
	client *service.Client
	logger *slog.Logger

	events chan streamEvent

	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}
}

func newStreamer(client *service.Client, logger *slog.Logger) *streamer {
	return &streamer{
		client: client,
		logger: logger,
		events: make(chan streamEvent, streamBuffer),
		done:   make(chan struct{}),
	}
}

// Start launches the reader goroutine.
func (s *streamer) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.run(ctx)
}

// Events is the channel the UI listens on.
func (s *streamer) Events() <-chan streamEvent {
	return s.events
}

// Close stops the reader and waits for it to exit.
func (s *streamer) Close() {
	s.closeOnce.Do(func() {
		if s.cancel == nil {
			close(s.done)
			return
		}
		s.cancel()
		<-s.done
	})
}

func (s *streamer) run(ctx context.Context) {
	defer close(s.done)

	backoff := initialBackoff
	for {
		if !s.publish(ctx, streamEvent{Kind: streamConnecting}) {
			return
		}

		acknowledged, err := s.consume(ctx)
		if ctx.Err() != nil {
			return
		}
		if acknowledged {
			backoff = initialBackoff
		}
		s.logger.Debug("subscription ended",
			"error", err,
			"reconnect_in", backoff)

		if !s.publish(ctx, streamEvent{Kind: streamDisconnected, Err: err}) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// consume runs one subscription until it fails. Reports whether the
// daemon acknowledged the subscription, and the error that ended it.
func (s *streamer) consume(ctx context.Context) (bool, error) {
	stream, err := s.client.Stream(ctx, "subscribe", nil)
	if err != nil {
		return false, err
	}
	defer stream.Close()

	// Next blocks in a read; closing the connection is the only way to
	// interrupt it when the context ends.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			stream.Close()
		case <-watchDone:
		}
	}()

	stream.SetDeadline(time.Now().Add(frameReadTimeout))
	var ack schema.StreamAck
	if err := stream.Next(&ack); err != nil {
		return false, fmt.Errorf("reading subscribe ack: %w", err)
	}
	if !ack.OK {
		return false, fmt.Errorf("subscription refused: %s", ack.Error)
	}

	if !s.publish(ctx, streamEvent{Kind: streamConnected}) {
		return true, nil
	}

	for {
		stream.SetDeadline(time.Now().Add(frameReadTimeout))
		var frame schema.EventFrame
		if err := stream.Next(&frame); err != nil {
			return true, fmt.Errorf("reading frame: %w", err)
		}
		if frame.Type == schema.FrameHeartbeat {
			continue
		}
		if !s.publish(ctx, streamEvent{Kind: streamFrame, Frame: frame}) {
			return true, nil
		}
	}
}

// publish delivers an event, abandoning it when the context ends.
// Reports false once the streamer is shutting down.
func (s *streamer) publish(ctx context.Context, event streamEvent) bool {
	select {
	case s.events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}
