package server

import (
	"context"
	"encoding/json"
	log "log/slog"
	"net/http"
	"time"

	ws "github.com/gorilla/websocket"

	"furnivox/internal/metrics"
)

const (
	wsReadLimit  = maxCommandBytes
	wsWriteWait  = 10 * time.Second
	wsIdleExpiry = 5 * time.Minute
)

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		log.Warn("Failed to upgrade", "err", err)
		return
	}
	defer conn.Close()

	metrics.WebsocketSessions.Inc()
	defer metrics.WebsocketSessions.Dec()

	log.Info("Websocket session opened", "remote", r.RemoteAddr)

	conn.SetReadLimit(wsReadLimit)

	// The request context ends once the handler returns; frames are
	// processed with a context that survives the hijack.
	ctx := context.WithoutCancel(r.Context())

	for {
		_ = conn.SetReadDeadline(time.Now().Add(wsIdleExpiry))
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			if wsIsClosed(err) {
				log.Info("Websocket session closed", "remote", r.RemoteAddr)
			} else {
				log.Warn("Failed to read frame", "err", err)
			}
			return
		}
		if kind != ws.TextMessage {
			continue
		}

		log.Debug("Read ws", "msg", string(msg))

		reply := s.frame(ctx, msg)

		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(reply); err != nil {
			log.Warn("Failed to write frame", "err", err)
			return
		}
	}
}

func (s *Server) frame(ctx context.Context, msg []byte) any {
	var req commandRequest
	if err := json.Unmarshal(msg, &req); err != nil || req.Command == nil {
		return map[string]string{"error": "No command provided"}
	}

	action, err := s.opts.Commands.Process(ctx, *req.Command)
	if err != nil {
		_, body := s.processError(*req.Command, err)
		return body
	}
	return action
}

func wsIsClosed(err error) bool {
	return ws.IsCloseError(err,
		ws.CloseNormalClosure,
		ws.CloseGoingAway,
		ws.CloseAbnormalClosure)
}
