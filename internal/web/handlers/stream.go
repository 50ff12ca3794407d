package handlers

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rouzd/facegate/internal/authsession"
	"github.com/rouzd/facegate/internal/frame"
	"github.com/rouzd/facegate/internal/web/middleware"
)

// maxStreamFrameBytes bounds a single websocket frame payload.
const maxStreamFrameBytes = 8 << 20

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Same origin allowlist as the CORS middleware on the REST API.
	CheckOrigin: middleware.OriginAllowed,
}

// Stream handles GET /api/v1/auth/sessions/{id}/stream. Each incoming
// websocket message is one camera frame: text messages carry base64
// payloads, binary messages carry raw image bytes. Every frame gets a JSON
// progress response and the connection closes once the session reaches a
// terminal state.
func (h *AuthHandler) Stream(w http.ResponseWriter, r *http.Request) {
	sess, err := h.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "unknown session")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxStreamFrameBytes)

	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var raw []byte
		switch msgType {
		case websocket.TextMessage:
			raw, err = frame.DecodeBase64(string(payload))
			if err != nil {
				if werr := conn.WriteJSON(map[string]string{"error": "malformed frame payload"}); werr != nil {
					return
				}
				continue
			}
		case websocket.BinaryMessage:
			raw = payload
		default:
			continue
		}

		resp, apiErr := h.processFrame(r.Context(), sess, raw, r.RemoteAddr)
		if apiErr != nil {
			if werr := conn.WriteJSON(map[string]string{"error": apiErr.message}); werr != nil {
				return
			}
			if apiErr.status >= http.StatusInternalServerError {
				return
			}
			continue
		}

		if err := conn.WriteJSON(resp); err != nil {
			return
		}

		if resp.Status != string(authsession.StatusActive) {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, resp.Status)
			_ = conn.WriteMessage(websocket.CloseMessage, msg)
			return
		}
	}
}
