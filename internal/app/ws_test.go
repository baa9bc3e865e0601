package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func (ts *testServer) dialSocket(t *testing.T, kind string, projectID int64, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + fmt.Sprintf("/ws/%s/%d?token=%s", kind, projectID, token)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return raw
}

func readEnvelope(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	var decoded map[string]any
	if err := json.Unmarshal(readFrame(t, conn), &decoded); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return decoded
}

// awaitPong round-trips a PING so the caller knows the server side of
// the connection has joined its room.
func awaitPong(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": "PING"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if env := readEnvelope(t, conn); env["type"] != "PONG" {
		t.Fatalf("expected PONG, got %v", env)
	}
}

// setupProjectPair returns an admin token, a member token and a
// project both can reach.
func setupProjectPair(t *testing.T, ts *testServer) (string, string, int64) {
	t.Helper()
	admin := ts.signUpAndSignIn(t, "admin@example.com", "Admin")
	member := ts.signUpAndSignIn(t, "member@example.com", "Member")

	_, body := ts.do(t, http.MethodPost, "/api/workspaces", admin, map[string]any{"name": "Acme"})
	workspaceID := asID(t, body, "id")
	status, body := ts.do(t, http.MethodPost, fmt.Sprintf("/api/workspaces/%d/members", workspaceID), admin, map[string]any{
		"email": "member@example.com", "role": "member",
	})
	if status != http.StatusCreated {
		t.Fatalf("add member: status %d body %v", status, body)
	}
	_, body = ts.do(t, http.MethodPost, fmt.Sprintf("/api/workspaces/%d/projects", workspaceID), admin, map[string]any{"name": "Website"})
	return admin, member, asID(t, body, "id")
}

func TestChatSocketProtocol(t *testing.T) {
	ts := newTestServer(t)
	admin, member, projectID := setupProjectPair(t, ts)

	sender := ts.dialSocket(t, "chat", projectID, admin)
	receiver := ts.dialSocket(t, "chat", projectID, member)
	awaitPong(t, sender)
	awaitPong(t, receiver)

	if err := sender.WriteJSON(map[string]any{"type": "MESSAGE_SENT", "content": "hello room"}); err != nil {
		t.Fatalf("write message: %v", err)
	}

	// The sender gets the saved copy back with its assigned id.
	echo := readEnvelope(t, sender)
	if echo["type"] != "MESSAGE_SENT" {
		t.Fatalf("sender echo = %v", echo)
	}
	message, _ := echo["message"].(map[string]any)
	if message["content"] != "hello room" {
		t.Fatalf("echoed content = %v", message)
	}
	if _, ok := message["id"].(float64); !ok {
		t.Fatalf("echoed message has no id: %v", message)
	}

	broadcast := readEnvelope(t, receiver)
	if broadcast["type"] != "MESSAGE_SENT" {
		t.Fatalf("receiver frame = %v", broadcast)
	}
	if got, _ := broadcast["message"].(map[string]any); got["content"] != "hello room" {
		t.Fatalf("broadcast content = %v", got)
	}

	// Blank content and unknown types come back as ERROR to the
	// sender only.
	_ = sender.WriteJSON(map[string]any{"type": "MESSAGE_SENT", "content": ""})
	if env := readEnvelope(t, sender); env["type"] != "ERROR" {
		t.Fatalf("blank content: expected ERROR, got %v", env)
	}
	_ = sender.WriteJSON(map[string]any{"type": "SHRUG"})
	if env := readEnvelope(t, sender); env["type"] != "ERROR" {
		t.Fatalf("unknown type: expected ERROR, got %v", env)
	}

	// The message survived the socket: it shows up in history.
	status, body := ts.do(t, http.MethodGet, fmt.Sprintf("/api/projects/%d/chat/messages", projectID), member, nil)
	if status != http.StatusOK {
		t.Fatalf("history: status %d", status)
	}
	messages, _ := body["messages"].([]any)
	if len(messages) != 1 {
		t.Fatalf("history has %d messages, want 1", len(messages))
	}
}

func TestChatSocketRequiresMembership(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.signUpAndSignIn(t, "admin@example.com", "Admin")
	outsider := ts.signUpAndSignIn(t, "outsider@example.com", "Outsider")

	_, body := ts.do(t, http.MethodPost, "/api/workspaces", admin, map[string]any{"name": "Acme"})
	workspaceID := asID(t, body, "id")
	_, body = ts.do(t, http.MethodPost, fmt.Sprintf("/api/workspaces/%d/projects", workspaceID), admin, map[string]any{"name": "Website"})
	projectID := asID(t, body, "id")

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + fmt.Sprintf("/ws/chat/%d?token=%s", projectID, outsider)
	if _, _, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Fatal("expected handshake rejection for non-member")
	}
}

func TestVoiceSocketRelaysFramesVerbatim(t *testing.T) {
	ts := newTestServer(t)
	admin, member, projectID := setupProjectPair(t, ts)

	first := ts.dialSocket(t, "voice", projectID, admin)
	second := ts.dialSocket(t, "voice", projectID, member)

	// The join announcement doubles as the sync point: once it lands,
	// the second connection is in the room.
	joined := readEnvelope(t, first)
	if joined["type"] != "USER_JOINED" || joined["userName"] != "Member" {
		t.Fatalf("join announcement = %v", joined)
	}

	// Signaling frames pass through untouched, whatever their JSON
	// shape.
	frame := []byte(`["ice-candidate","cand:1"]`)
	if err := first.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if got := readFrame(t, second); !bytes.Equal(got, frame) {
		t.Fatalf("relayed frame = %q, want %q", got, frame)
	}

	object := []byte(`{"type":"offer","sdp":"v=0"}`)
	if err := second.WriteMessage(websocket.TextMessage, object); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if got := readFrame(t, first); !bytes.Equal(got, object) {
		t.Fatalf("relayed frame = %q, want %q", got, object)
	}

	_ = second.Close()
	left := readEnvelope(t, first)
	if left["type"] != "USER_LEFT" {
		t.Fatalf("leave announcement = %v", left)
	}
}

func TestFileEventsReachProjectRoom(t *testing.T) {
	ts := newTestServer(t)
	admin, member, projectID := setupProjectPair(t, ts)

	listener := ts.dialSocket(t, "chat", projectID, member)
	awaitPong(t, listener)

	upload := func(field, path string, names []string) map[string]any {
		t.Helper()
		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)
		for _, name := range names {
			part, err := writer.CreateFormFile(field, name)
			if err != nil {
				t.Fatalf("form file: %v", err)
			}
			fmt.Fprint(part, "contents of "+name)
		}
		writer.Close()

		req, err := http.NewRequest(http.MethodPost, ts.URL+path, &buf)
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+admin)
		req.Header.Set("Content-Type", writer.FormDataContentType())
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("upload: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			raw, _ := io.ReadAll(resp.Body)
			t.Fatalf("upload: status %d body %s", resp.StatusCode, raw)
		}
		var decoded map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			t.Fatalf("decode upload response: %v", err)
		}
		return decoded
	}

	uploaded := upload("file", fmt.Sprintf("/api/projects/%d/files", projectID), []string{"spec.pdf"})
	event := readEnvelope(t, listener)
	if event["type"] != "FILE_UPLOADED" {
		t.Fatalf("upload event = %v", event)
	}
	data, _ := event["data"].(map[string]any)
	if file, _ := data["file"].(map[string]any); file["filename"] != "spec.pdf" {
		t.Fatalf("upload event data = %v", data)
	}

	upload("files", fmt.Sprintf("/api/projects/%d/files/batch", projectID), []string{"a.txt", "b.txt"})
	event = readEnvelope(t, listener)
	if event["type"] != "FILES_BATCH_UPLOADED" {
		t.Fatalf("batch event = %v", event)
	}
	if batch, _ := event["data"].([]any); len(batch) != 2 {
		t.Fatalf("batch event lists %d files, want 2", len(batch))
	}

	fileID := asID(t, uploaded["file"].(map[string]any), "id")
	status, _ := ts.do(t, http.MethodDelete, fmt.Sprintf("/api/files/%d", fileID), admin, nil)
	if status != http.StatusOK {
		t.Fatalf("delete: status %d", status)
	}
	event = readEnvelope(t, listener)
	if event["type"] != "FILE_DELETED" {
		t.Fatalf("delete event = %v", event)
	}
	if data, _ := event["data"].(map[string]any); asID(t, data, "id") != fileID {
		t.Fatalf("delete event data = %v", event["data"])
	}
}
