// Catalogus - Media Library Synchronization Engine
// Copyright 2026 Catalogus Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/catalogus/catalogus

/*
emby_channel.go - Change Notification Channel

This file implements the WebSocket channel that receives push notifications
from Emby and Jellyfin servers.

WebSocket Endpoint: ws://{server_url}/embywebsocket?api_key={token}&deviceId={device_id}

The channel is a three-state machine: Disconnected -> Connecting ->
Connected. It never retries on its own; when a connect or read fails it
falls back to Disconnected and stays there until the poll loop decides to
Start it again. Poll drains buffered frames with a sub-second read deadline
per frame, so one silent session costs at most one deadline per tick and
can never stall the loop.
*/

package sync

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/catalogus/catalogus/internal/logging"
	"github.com/catalogus/catalogus/internal/metrics"
	"github.com/catalogus/catalogus/internal/models"
)

// ChannelState is the connection state of a notification channel.
type ChannelState int32

const (
	ChannelDisconnected ChannelState = iota
	ChannelConnecting
	ChannelConnected
)

// String returns the lowercase state name for logs and the status API.
func (s ChannelState) String() string {
	switch s {
	case ChannelDisconnected:
		return "disconnected"
	case ChannelConnecting:
		return "connecting"
	case ChannelConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// defaultChannelReadTimeout bounds one Poll read when no explicit timeout
// is configured. It must stay well under the poll cadence.
const defaultChannelReadTimeout = 200 * time.Millisecond

// Channel is the notification channel of one provider session.
type Channel struct {
	provider    string
	client      EmbyClientInterface
	readTimeout time.Duration

	mu    sync.Mutex
	state ChannelState
	conn  *websocket.Conn
}

// NewChannel creates a channel for one provider. readTimeout is the
// per-frame poll deadline; values outside (0, 1s) fall back to the
// default.
func NewChannel(provider string, client EmbyClientInterface, readTimeout time.Duration) *Channel {
	if readTimeout <= 0 || readTimeout >= time.Second {
		readTimeout = defaultChannelReadTimeout
	}
	return &Channel{
		provider:    provider,
		client:      client,
		readTimeout: readTimeout,
	}
}

// State returns the current connection state.
func (c *Channel) State() ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start authenticates the session client, builds the socket URL and dials.
// Any failure logs, returns the channel to Disconnected and is reported to
// the caller; the channel itself never schedules a retry.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != ChannelDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.state = ChannelConnecting
	c.mu.Unlock()
	metrics.SetChannelState(c.provider, metrics.ChannelStateConnecting)

	conn, err := c.dial(ctx)
	if err != nil {
		c.mu.Lock()
		c.state = ChannelDisconnected
		c.mu.Unlock()
		metrics.SetChannelState(c.provider, metrics.ChannelStateDisconnected)
		metrics.RecordChannelConnectFailure(c.provider)
		logging.Warn().Str("provider", c.provider).Err(err).Msg("Notification channel connect failed")
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.state = ChannelConnected
	c.mu.Unlock()
	metrics.SetChannelState(c.provider, metrics.ChannelStateConnected)
	logging.Info().Str("provider", c.provider).Msg("Notification channel connected")

	return nil
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	if err := c.client.Authenticate(ctx); err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	wsURL, err := c.client.WebSocketURL()
	if err != nil {
		return nil, fmt.Errorf("socket URL unavailable: %w", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout:  10 * time.Second,
		EnableCompression: true,
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	return conn, nil
}

// Poll drains every buffered frame without blocking the tick: each read
// carries a sub-second deadline, and a deadline expiry is the normal empty
// result. Read errors other than the deadline drop the connection back to
// Disconnected. Unparsable frames and frames carrying neither a type nor a
// payload are dropped and logged; Poll itself never fails.
func (c *Channel) Poll(ctx context.Context) []models.WebSocketMessage {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == ChannelConnected
	c.mu.Unlock()
	if !connected || conn == nil {
		return nil
	}

	var msgs []models.WebSocketMessage
	for {
		if ctx.Err() != nil {
			return msgs
		}

		if err := conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			c.disconnect(err)
			return msgs
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				// Nothing buffered; the clean end of a drain.
				return msgs
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Info().Str("provider", c.provider).Msg("Notification channel closed by server")
			}
			c.disconnect(err)
			return msgs
		}

		var msg models.WebSocketMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logging.Warn().Str("provider", c.provider).Err(err).Msg("Dropping unparsable notification frame")
			continue
		}
		if msg.MessageType == "" && len(msg.Data) == 0 {
			logging.Warn().Str("provider", c.provider).Msg("Dropping empty notification frame")
			continue
		}

		metrics.RecordChannelMessage(c.provider, msg.MessageType)
		msgs = append(msgs, msg)
	}
}

// Stop closes the channel and returns it to Disconnected. Safe to call in
// any state and any number of times.
func (c *Channel) Stop() {
	c.mu.Lock()
	conn := c.conn
	was := c.state
	c.conn = nil
	c.state = ChannelDisconnected
	c.mu.Unlock()

	if conn != nil {
		// Best-effort close handshake before dropping the transport.
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		_ = conn.Close()
	}

	if was != ChannelDisconnected {
		metrics.SetChannelState(c.provider, metrics.ChannelStateDisconnected)
		logging.Info().Str("provider", c.provider).Msg("Notification channel stopped")
	}
}

// disconnect handles a failed transport: log, close, back to Disconnected.
func (c *Channel) disconnect(cause error) {
	c.mu.Lock()
	conn := c.conn
	was := c.state
	c.conn = nil
	c.state = ChannelDisconnected
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}

	if was != ChannelDisconnected {
		metrics.SetChannelState(c.provider, metrics.ChannelStateDisconnected)
		logging.Warn().Str("provider", c.provider).Err(cause).Msg("Notification channel disconnected")
	}
}
