// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package carequeue

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"
)

// WSConnectivity keeps a websocket open to the store's presence endpoint and
// publishes reachability into a Signal. A failed dial or ping marks the device offline.
type WSConnectivity struct {
	URL          string // ws:// or wss:// presence URL
	Token        func(context.Context) (string, error)
	Signal       *Signal[bool]
	PingInterval time.Duration
	PingTimeout  time.Duration
	BackoffMin   time.Duration
	BackoffMax   time.Duration
	logger       *slog.Logger
}

// NewWSConnectivity creates a monitor for baseURL (http(s) URLs are converted to ws(s)).
func NewWSConnectivity(baseURL string, signal *Signal[bool], logger *slog.Logger) *WSConnectivity {
	if logger == nil {
		logger = slog.Default()
	}
	u := strings.Replace(baseURL, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	return &WSConnectivity{
		URL:          strings.TrimRight(u, "/") + "/presence",
		Signal:       signal,
		PingInterval: 10 * time.Second,
		PingTimeout:  5 * time.Second,
		BackoffMin:   1 * time.Second,
		BackoffMax:   30 * time.Second,
		logger:       logger,
	}
}

// Run blocks until ctx is cancelled, reconnecting with exponential backoff.
func (m *WSConnectivity) Run(ctx context.Context) error {
	backoff := m.BackoffMin
	for {
		connected, err := m.session(ctx)
		m.Signal.Set(false)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = m.BackoffMin
		}
		m.logger.Debug("Presence connection lost", "error", err, "retry_in", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > m.BackoffMax {
			backoff = m.BackoffMax
		}
	}
}

// session runs one connection until a ping fails. It reports whether the dial succeeded.
func (m *WSConnectivity) session(ctx context.Context) (bool, error) {
	opts := &websocket.DialOptions{}
	if m.Token != nil {
		token, err := m.Token(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to get auth token: %w", err)
		}
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + token}}
	}

	dialCtx, cancel := context.WithTimeout(ctx, m.PingTimeout)
	conn, _, err := websocket.Dial(dialCtx, m.URL, opts)
	cancel()
	if err != nil {
		return false, fmt.Errorf("presence dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Control frames (pongs) are only processed while something reads.
	readCtx := conn.CloseRead(ctx)
	m.Signal.Set(true)

	ticker := time.NewTicker(m.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-readCtx.Done():
			return true, readCtx.Err()
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(readCtx, m.PingTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return true, fmt.Errorf("presence ping: %w", err)
			}
		}
	}
}
