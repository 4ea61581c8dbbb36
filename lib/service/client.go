// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/vigil-works/vigil/lib/codec"
)

// dialTimeout bounds the connect phase only; the server's own
// timeouts govern the rest of the exchange.
const dialTimeout = 5 * time.Second

// responseReadTimeout is how long the client waits for a response
// after writing its request, when the caller's context carries no
// deadline of its own. Slow actions (compact runs a summarizer
// subprocess) pass a context deadline instead.
const responseReadTimeout = 45 * time.Second

// maxResponseSize bounds a single response. History queries return up
// to several thousand samples per response, so this is larger than
// the server's request cap.
const maxResponseSize = 16 * 1024 * 1024

// ErrDaemonNotRunning reports that the daemon socket could not be
// reached. Callers branch on it with errors.Is to fall back to
// daemonless operation.
var ErrDaemonNotRunning = errors.New("daemon is not running")

// DaemonError is returned by Call when the daemon responds with
// ok=false. It carries the daemon's message and the failing action.
// Its presence means the daemon IS reachable; it just rejected the
// request.
type DaemonError struct {
	Action  string
	Message string
}

func (e *DaemonError) Error() string {
	return fmt.Sprintf("daemon error on %q: %s", e.Action, e.Message)
}

// Client sends CBOR requests to the daemon socket. Each Call opens a
// fresh connection, matching the server's one-request-per-connection
// model; Stream opens a connection that stays up for frame delivery.
type Client struct {
	socketPath string
}

// NewClient creates a client for the daemon socket at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// SocketPath returns the socket the client dials.
func (c *Client) SocketPath() string {
	return c.socketPath
}

// Call sends a request and decodes the response.
//
// The fields map may carry handler-specific parameters; the client
// injects "action" itself. Pass nil for actions without parameters.
//
// On ok=true, a non-nil result receives the CBOR-decoded "data"
// payload when one is present. On ok=false, Call returns a
// *DaemonError with the daemon's message. Connection and codec
// failures come back as plain errors.
func (c *Client) Call(ctx context.Context, action string, fields map[string]any, result any) error {
	response, err := c.send(ctx, buildRequest(action, fields))
	if err != nil {
		return fmt.Errorf("calling %q: %w", action, err)
	}

	if !response.OK {
		return &DaemonError{
			Action:  action,
			Message: response.Error,
		}
	}

	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding response data for %q: %w", action, err)
		}
	}

	return nil
}

// Stream opens a streaming action. The request is written and the
// open connection is returned wrapped in a frame decoder; the caller
// reads frames with [Stream.Next] and must Close the stream. The
// daemon-side handler defines the frame type.
func (c *Client) Stream(ctx context.Context, action string, fields map[string]any) (*Stream, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}

	if err := codec.NewEncoder(conn).Encode(buildRequest(action, fields)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("writing %q request: %w", action, err)
	}

	return &Stream{
		conn:    conn,
		decoder: codec.NewDecoder(conn),
	}, nil
}

// Stream is an open streaming connection to the daemon.
type Stream struct {
	conn    net.Conn
	decoder *codec.Decoder
}

// Next decodes the next frame into v, blocking until a frame arrives,
// the stream closes, or the deadline set with SetDeadline expires.
// Returns io.EOF when the daemon closed the stream.
func (s *Stream) Next(v any) error {
	return s.decoder.Decode(v)
}

// SetDeadline bounds subsequent Next calls.
func (s *Stream) SetDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

// Close terminates the stream.
func (s *Stream) Close() error {
	return s.conn.Close()
}

// dial connects to the daemon socket. Dial failures come back wrapped
// in ErrDaemonNotRunning; the underlying cause is preserved in the
// message.
func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("%w at %s: %v", ErrDaemonNotRunning, c.socketPath, err)
	}
	return conn, nil
}

// buildRequest constructs the request map from the caller's fields
// plus the action.
func buildRequest(action string, fields map[string]any) map[string]any {
	request := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		request[key] = value
	}
	request["action"] = action
	return request
}

// send connects, writes the request, and reads the one response.
func (c *Client) send(ctx context.Context, request any) (*Response, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}

	// Half-close so the server's read side sees a clean EOF. CBOR is
	// self-delimiting, but the explicit signal costs nothing.
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	readDeadline := time.Now().Add(responseReadTimeout)
	if deadline, ok := ctx.Deadline(); ok {
		readDeadline = deadline
	}
	conn.SetReadDeadline(readDeadline)
	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	return &response, nil
}
