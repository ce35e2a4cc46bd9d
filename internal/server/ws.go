package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/omnes-tech/multi-static-call/internal/jsonrpc"
)

// WSHandler serves the same JSON-RPC surface over WebSocket: one request
// message in, one response message out, per frame.
type WSHandler struct {
	handler  *Handler
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewWSHandler creates a WSHandler sharing the HTTP handler's method
// dispatch.
func NewWSHandler(handler *Handler, logger zerolog.Logger) *WSHandler {
	return &WSHandler{
		handler: handler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger.With().Str("component", "ws").Logger(),
	}
}

// ServeHTTP upgrades the connection and runs the message loop.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	h.logger.Debug().Str("remote", remote).Msg("ws client connected")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug().Err(err).Str("remote", remote).Msg("ws read ended")
			}
			return
		}

		resp := h.process(r, data)
		payload, err := resp.Bytes()
		if err != nil {
			h.logger.Error().Err(err).Msg("failed to marshal ws response")
			continue
		}

		conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.Debug().Err(err).Str("remote", remote).Msg("ws write failed")
			return
		}
	}
}

func (h *WSHandler) process(r *http.Request, data []byte) *jsonrpc.Response {
	req, err := jsonrpc.ParseRequest(data)
	if err != nil {
		return jsonrpc.NewErrorResponse(jsonrpc.NewIDNull(), jsonrpc.ErrParse)
	}
	if err := req.Validate(); err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.CodeInvalidRequest, err.Error()))
	}
	return h.handler.Handle(r.Context(), req)
}
