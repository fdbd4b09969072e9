package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/corkboardhq/corkboard/backend/internal/board"
	"github.com/corkboardhq/corkboard/backend/internal/store"
	"github.com/corkboardhq/corkboard/backend/internal/transport"
	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.Store, *transport.MemoryRelay) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&store.ObjectRecord{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	boardStore, err := store.New(store.Config{
		Database:   db,
		IDProvider: board.NewDurableIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}

	relay := transport.NewMemoryRelay(nil)
	handler, err := NewHTTPHandler(Dependencies{Relay: relay, Store: boardStore})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server, boardStore, relay
}

func dialChannel(t *testing.T, server *httptest.Server, boardID, kind string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") +
		fmt.Sprintf("/boards/%s/channels/%s", boardID, kind)
	socket, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = socket.Close() })
	return socket
}

func TestHealthEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t)

	response, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("unexpected request error: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", response.StatusCode)
	}
}

func TestListObjectsReturnsZIndexOrder(t *testing.T) {
	server, boardStore, _ := newTestServer(t)
	boardID := board.BoardID("board-1")

	for _, zIndex := range []int{7, -5, 2} {
		object := board.BoardObject{
			BoardID:   boardID,
			Type:      board.TypeStickyNote,
			Width:     160,
			Height:    90,
			ZIndex:    zIndex,
			Payload:   board.StickyNotePayload{Text: fmt.Sprintf("z%d", zIndex), Color: "#ffd54f"},
			CreatedBy: board.UserID("user-1"),
		}
		if _, err := boardStore.Insert(context.Background(), object); err != nil {
			t.Fatalf("unexpected insert error: %v", err)
		}
	}

	response, err := http.Get(server.URL + "/boards/board-1/objects")
	if err != nil {
		t.Fatalf("unexpected request error: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", response.StatusCode)
	}

	var payload struct {
		Objects []board.WireObject `json:"objects"`
	}
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if len(payload.Objects) != 3 {
		t.Fatalf("expected 3 objects, got %d", len(payload.Objects))
	}
	got := []int{payload.Objects[0].ZIndex, payload.Objects[1].ZIndex, payload.Objects[2].ZIndex}
	if got[0] != -5 || got[1] != 2 || got[2] != 7 {
		t.Fatalf("expected ascending z order, got %v", got)
	}
}

func TestListObjectsRejectsBlankBoardID(t *testing.T) {
	server, _, _ := newTestServer(t)

	response, err := http.Get(server.URL + "/boards/%20/objects")
	if err != nil {
		t.Fatalf("unexpected request error: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", response.StatusCode)
	}
}

func TestChannelRejectsUnknownKind(t *testing.T) {
	server, _, _ := newTestServer(t)

	response, err := http.Get(server.URL + "/boards/board-1/channels/telemetry")
	if err != nil {
		t.Fatalf("unexpected request error: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", response.StatusCode)
	}
}

func TestChannelBridgesFramesBetweenSockets(t *testing.T) {
	server, _, _ := newTestServer(t)

	sender := dialChannel(t, server, "board-1", "objects")
	receiver := dialChannel(t, server, "board-1", "objects")
	bystander := dialChannel(t, server, "board-2", "objects")

	frame := []byte(`{"type":"deleted","payload":{"id":"note-1"}}`)
	if err := sender.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}

	_ = receiver.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, received, err := receiver.ReadMessage()
	if err != nil {
		t.Fatalf("peer never received the frame: %v", err)
	}
	if string(received) != string(frame) {
		t.Fatalf("frame mutated in transit: %s", received)
	}

	// The publisher must not hear its own frame and other boards stay isolated.
	_ = sender.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, _, err := sender.ReadMessage(); err == nil {
		t.Fatalf("sender received its own frame")
	}
	_ = bystander.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, _, err := bystander.ReadMessage(); err == nil {
		t.Fatalf("frame leaked across boards")
	}
}

func TestSocketDropPublishesImplicitLeave(t *testing.T) {
	server, _, relay := newTestServer(t)

	observer, err := relay.OpenChannel(board.BoardID("board-1"), transport.KindPresence)
	if err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	t.Cleanup(func() { _ = observer.Close() })
	frames := make(chan []byte, 8)
	cancel := observer.Subscribe(func(frame []byte) { frames <- frame })
	t.Cleanup(cancel)

	socket := dialChannel(t, server, "board-1", "presence")
	entry := board.PresenceEvent{Entry: board.PresenceEntry{
		UserID:   board.UserID("user-a"),
		UserName: "Ada",
		JoinedAt: time.Now().UTC(),
	}}
	track, err := board.EncodeEvent(board.EventTrack, entry)
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}
	if err := socket.WriteMessage(websocket.TextMessage, track); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}

	readEvent := func() board.EventType {
		t.Helper()
		select {
		case frame := <-frames:
			envelope, err := board.DecodeEvent(frame)
			if err != nil {
				t.Fatalf("unexpected decode error: %v", err)
			}
			return envelope.Type
		case <-time.After(2 * time.Second):
			t.Fatal("no frame arrived")
			return ""
		}
	}

	if eventType := readEvent(); eventType != board.EventTrack {
		t.Fatalf("expected track first, got %s", eventType)
	}

	// Dropping the socket without a leave frame makes the relay announce the
	// departure on the client's behalf.
	_ = socket.Close()
	if eventType := readEvent(); eventType != board.EventLeave {
		t.Fatalf("expected implicit leave, got %s", eventType)
	}
}
