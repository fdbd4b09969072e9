package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/corkboardhq/corkboard/backend/internal/board"
	"github.com/corkboardhq/corkboard/backend/internal/session"
	"github.com/corkboardhq/corkboard/backend/internal/store"
	"github.com/corkboardhq/corkboard/backend/internal/transport"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newBoardStore(t *testing.T) *store.Store {
	t.Helper()
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
	return boardStore
}

func newBoardSession(t *testing.T, relay transport.Relay, boardStore *store.Store, userID string) *session.Session {
	t.Helper()
	boardSession, err := session.New(session.Config{
		BoardID: board.BoardID("board-1"),
		UserID:  board.UserID(userID),
		Relay:   relay,
		Gateway: boardStore,
	})
	if err != nil {
		t.Fatalf("failed to build session: %v", err)
	}
	t.Cleanup(func() { _ = boardSession.Close() })
	return boardSession
}

func waitUntil(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

// Exercises the full optimistic path end to end: two live sessions over the
// relay backed by one durable store, then a third participant joining cold.
func TestTwoSessionsConvergeThroughStoreAndRelay(t *testing.T) {
	boardStore := newBoardStore(t)
	relay := transport.NewMemoryRelay(nil)
	alice := newBoardSession(t, relay, boardStore, "alice")
	bob := newBoardSession(t, relay, boardStore, "bob")

	created, err := alice.Create(context.Background(), board.BoardObject{
		Type:    board.TypeStickyNote,
		X:       120,
		Y:       80,
		Width:   160,
		Height:  90,
		ZIndex:  1,
		Payload: board.StickyNotePayload{Text: "ship it", Color: "#ffd54f"},
	})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if !created.ID.Temporary() {
		t.Fatalf("expected a temporary id before persistence, got %s", created.ID)
	}

	// Bob renders the optimistic object before the row exists.
	waitUntil(t, func() bool { return len(bob.Objects()) == 1 })

	alice.Flush()
	durable := alice.Objects()[0]
	if durable.ID.Temporary() {
		t.Fatalf("creator never reconciled to the durable id: %s", durable.ID)
	}
	waitUntil(t, func() bool {
		objects := bob.Objects()
		return len(objects) == 1 && objects[0].ID == durable.ID
	})

	// Bob mutates by the durable id; Alice converges.
	text := "ship it today"
	if err := bob.Update(context.Background(), durable.ID, board.ObjectPatch{
		Payload: board.PayloadPatch{Text: &text},
	}); err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	bob.Flush()
	waitUntil(t, func() bool {
		object, ok := alice.Object(durable.ID)
		if !ok {
			return false
		}
		note, ok := object.Payload.(board.StickyNotePayload)
		return ok && note.Text == text
	})

	// A cold joiner sees the exact durable state.
	carol := newBoardSession(t, relay, boardStore, "carol")
	if err := carol.Load(context.Background()); err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	objects := carol.Objects()
	if len(objects) != 1 || objects[0].ID != durable.ID {
		t.Fatalf("cold load diverged: %+v", objects)
	}
	note, ok := objects[0].Payload.(board.StickyNotePayload)
	if !ok || note.Text != text {
		t.Fatalf("durable payload diverged: %+v", objects[0].Payload)
	}
}

func TestDeletePropagatesAndClearsDurableState(t *testing.T) {
	boardStore := newBoardStore(t)
	relay := transport.NewMemoryRelay(nil)
	alice := newBoardSession(t, relay, boardStore, "alice")
	bob := newBoardSession(t, relay, boardStore, "bob")

	if _, err := alice.Create(context.Background(), board.BoardObject{
		Type:    board.TypeRectangle,
		Width:   200,
		Height:  120,
		ZIndex:  2,
		Payload: board.RectanglePayload{Fill: "#e3f2fd", Stroke: "#1565c0", StrokeWidth: 2},
	}); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	alice.Flush()
	durableID := alice.Objects()[0].ID
	waitUntil(t, func() bool {
		objects := bob.Objects()
		return len(objects) == 1 && objects[0].ID == durableID
	})

	if err := bob.Delete(context.Background(), durableID); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	bob.Flush()

	waitUntil(t, func() bool { return len(alice.Objects()) == 0 })
	rows, err := boardStore.LoadAll(context.Background(), board.BoardID("board-1"))
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("durable row survived the delete: %+v", rows)
	}
}

func TestColdLoadOrderMatchesCreationZOrder(t *testing.T) {
	boardStore := newBoardStore(t)
	relay := transport.NewMemoryRelay(nil)
	alice := newBoardSession(t, relay, boardStore, "alice")

	for _, zIndex := range []int{5, -2, 0, 9} {
		_, err := alice.Create(context.Background(), board.BoardObject{
			Type:    board.TypeStickyNote,
			Width:   160,
			Height:  90,
			ZIndex:  zIndex,
			Payload: board.StickyNotePayload{Text: fmt.Sprintf("z%d", zIndex), Color: "#ffd54f"},
		})
		if err != nil {
			t.Fatalf("unexpected create error: %v", err)
		}
	}
	alice.Flush()

	carol := newBoardSession(t, relay, boardStore, "carol")
	if err := carol.Load(context.Background()); err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	objects := carol.Objects()
	if len(objects) != 4 {
		t.Fatalf("expected 4 objects, got %d", len(objects))
	}
	for index := 1; index < len(objects); index++ {
		if objects[index-1].ZIndex > objects[index].ZIndex {
			t.Fatalf("cold load not in ascending z order: %d before %d",
				objects[index-1].ZIndex, objects[index].ZIndex)
		}
	}
}
