// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package carestore

import (
	"net/http"

	"nhooyr.io/websocket"
)

// HandlePresence holds a websocket open for as long as the client stays
// connected. Clients treat a live connection with answered pings as online.
func (h *HTTPHandlers) HandlePresence(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, CodeUnauthenticated, "authentication required")
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Debug("Presence upgrade failed", "error", err, "user_id", p.UserID)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	h.logger.Debug("Presence connected", "user_id", p.UserID, "device_id", p.DeviceID)
	// Reading answers pings; the returned context ends when the peer goes away.
	ctx := conn.CloseRead(r.Context())
	<-ctx.Done()
	h.logger.Debug("Presence disconnected", "user_id", p.UserID, "device_id", p.DeviceID)
}
