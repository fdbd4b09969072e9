package database

import (
	"fmt"
	"testing"

	"github.com/corkboardhq/corkboard/backend/internal/board"
	"github.com/corkboardhq/corkboard/backend/internal/store"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func memoryDSN(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	if _, err := OpenSQLite("", nil); err == nil {
		t.Fatalf("expected an error for an empty path")
	}
}

func TestFrameZIndexMigrationDemotesFrames(t *testing.T) {
	dsn := memoryDSN(t)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&store.ObjectRecord{}, &migrationRecord{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	seed := []store.ObjectRecord{
		{ID: "frame-1", BoardID: "board-1", Type: board.TypeFrame.String(), ZIndex: 3, Data: datatypes.JSON(`{"title":"Sprint","fill":"#eee"}`), CreatedBy: "user-1"},
		{ID: "frame-2", BoardID: "board-1", Type: board.TypeFrame.String(), ZIndex: -4, Data: datatypes.JSON(`{"title":"Icebox","fill":"#eee"}`), CreatedBy: "user-1"},
		{ID: "note-1", BoardID: "board-1", Type: board.TypeStickyNote.String(), ZIndex: 3, Data: datatypes.JSON(`{"text":"hi","color":"#ffd54f"}`), CreatedBy: "user-1"},
	}
	for index := range seed {
		if err := db.Create(&seed[index]).Error; err != nil {
			t.Fatalf("failed to seed row: %v", err)
		}
	}

	if err := applyMigrations(db, nil); err != nil {
		t.Fatalf("unexpected migration error: %v", err)
	}

	zIndexOf := func(id string) int {
		t.Helper()
		var record store.ObjectRecord
		if err := db.Where("id = ?", id).Take(&record).Error; err != nil {
			t.Fatalf("failed to read row %s: %v", id, err)
		}
		return record.ZIndex
	}

	if zIndexOf("frame-1") != -1 {
		t.Fatalf("frame above content was not demoted: z=%d", zIndexOf("frame-1"))
	}
	if zIndexOf("frame-2") != -4 {
		t.Fatalf("frame already below content must keep its z: z=%d", zIndexOf("frame-2"))
	}
	if zIndexOf("note-1") != 3 {
		t.Fatalf("non-frame rows must be untouched: z=%d", zIndexOf("note-1"))
	}
}

func TestMigrationsApplyOnce(t *testing.T) {
	dsn := memoryDSN(t)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&store.ObjectRecord{}, &migrationRecord{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	if err := applyMigrations(db, nil); err != nil {
		t.Fatalf("unexpected migration error: %v", err)
	}

	var ledger []migrationRecord
	if err := db.Find(&ledger).Error; err != nil {
		t.Fatalf("failed to read ledger: %v", err)
	}
	if len(ledger) != 1 || ledger[0].Name != migrationLowerFrameZIndex {
		t.Fatalf("unexpected ledger content: %+v", ledger)
	}

	// A frame written after the first run must survive a re-run untouched.
	late := store.ObjectRecord{ID: "frame-3", BoardID: "board-1", Type: board.TypeFrame.String(), ZIndex: 5, Data: datatypes.JSON(`{"title":"New","fill":"#eee"}`), CreatedBy: "user-1"}
	if err := db.Create(&late).Error; err != nil {
		t.Fatalf("failed to seed row: %v", err)
	}
	if err := applyMigrations(db, nil); err != nil {
		t.Fatalf("unexpected migration error: %v", err)
	}

	var record store.ObjectRecord
	if err := db.Where("id = ?", "frame-3").Take(&record).Error; err != nil {
		t.Fatalf("failed to read row: %v", err)
	}
	if record.ZIndex != 5 {
		t.Fatalf("already-applied migration ran again: z=%d", record.ZIndex)
	}
}
