package app

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"teamhub/api/internal/realtime"
	"teamhub/api/internal/rbac"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Origin is enforced by the CORS layer for the REST API; browsers
	// send the session token explicitly so a cross-site upgrade alone
	// cannot act on anyone's behalf.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// maxSocketMessage caps a single inbound frame at 64 KiB.
const maxSocketMessage = 64 << 10

type chatEnvelope struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

func (s *HTTPServer) handleChatSocket(w http.ResponseWriter, r *http.Request, session Session, projectID int64) {
	if _, _, err := s.service.requireProjectMember(r.Context(), session, projectID, rbac.ActionRead); err != nil {
		writeMappedError(w, err)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error.
		return
	}
	ws.SetReadLimit(maxSocketMessage)

	conn := realtime.NewConn(ws, session.UserID)
	rooms := s.service.ChatRooms()
	rooms.Join(projectID, conn)
	defer func() {
		rooms.Leave(projectID, conn)
		conn.Close()
	}()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var envelope chatEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			_ = conn.SendJSON(map[string]any{"type": "ERROR", "error": "invalid message"})
			continue
		}

		switch envelope.Type {
		case "PING":
			_ = conn.SendJSON(map[string]any{"type": "PONG"})
		case "MESSAGE_SENT":
			if envelope.Content == "" {
				_ = conn.SendJSON(map[string]any{"type": "ERROR", "error": "content is required"})
				continue
			}
			message, err := s.service.store.InsertChatMessage(r.Context(), projectID, session.UserID, envelope.Content)
			if err != nil {
				log.Printf("chat message insert: %v", err)
				_ = conn.SendJSON(map[string]any{"type": "ERROR", "error": "could not save message"})
				continue
			}
			payload := map[string]any{"type": "MESSAGE_SENT", "message": chatMessageResponse(message)}
			// The sender gets the saved message back so the client can
			// reconcile its optimistic copy with the assigned id.
			_ = conn.SendJSON(payload)
			rooms.BroadcastJSON(projectID, payload, conn)
		default:
			_ = conn.SendJSON(map[string]any{"type": "ERROR", "error": "unknown message type"})
		}
	}
}

func (s *HTTPServer) handleVoiceSocket(w http.ResponseWriter, r *http.Request, session Session, projectID int64) {
	if _, _, err := s.service.requireProjectMember(r.Context(), session, projectID, rbac.ActionRead); err != nil {
		writeMappedError(w, err)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	ws.SetReadLimit(maxSocketMessage)

	conn := realtime.NewConn(ws, session.UserID)
	rooms := s.service.VoiceRooms()
	rooms.Join(projectID, conn)

	rooms.BroadcastJSON(projectID, map[string]any{
		"type":     "USER_JOINED",
		"userId":   session.UserID,
		"userName": session.UserName,
	}, conn)

	defer func() {
		rooms.Leave(projectID, conn)
		conn.Close()
		rooms.BroadcastJSON(projectID, map[string]any{
			"type":   "USER_LEFT",
			"userId": session.UserID,
		}, nil)
	}()

	// Voice frames are WebRTC signaling payloads. The server relays
	// every frame to the rest of the room byte for byte; peers learn
	// who is talking from USER_JOINED, not from the frames.
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		rooms.Broadcast(projectID, raw, conn)
	}
}
