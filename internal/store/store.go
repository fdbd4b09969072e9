// Package store is the persistence gateway for board objects: a full load at
// board-open time plus row-level insert, partial update, and delete. Every
// failure is reported loudly so the caller can roll back its optimistic state.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/corkboardhq/corkboard/backend/internal/board"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()

	// ErrObjectNotFound indicates that no durable row exists for the identifier.
	ErrObjectNotFound = errors.New("store: object not found")
	// ErrTemporaryID indicates an attempt to persist against a client-minted id.
	ErrTemporaryID = errors.New("store: temporary id has no durable row")
)

const (
	opStoreNew       = "store.new"
	opLoadAll        = "store.load_all"
	opInsert         = "store.insert"
	opUpdateFields   = "store.update_fields"
	opDeleteByID     = "store.delete_by_id"
	orderZIndexAsc   = "z_index ASC, created_at ASC"
	queryBoardID     = "board_id = ?"
	queryObjectID    = "id = ?"
	reasonQuery      = "query_failed"
	reasonDecode     = "decode_failed"
	reasonEncode     = "encode_failed"
	reasonInsert     = "insert_failed"
	reasonUpdate     = "update_failed"
	reasonDelete     = "delete_failed"
	reasonNotFound   = "not_found"
	reasonTempID     = "temporary_id"
	reasonNewID      = "id_generation_failed"
	reasonEmptyPatch = "empty_patch"
)

// StoreError wraps a failed store operation with a stable code.
type StoreError struct {
	code string
	err  error
}

func (e *StoreError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *StoreError) Unwrap() error {
	return e.err
}

// Code returns the operation.reason code for the failure.
func (e *StoreError) Code() string {
	return e.code
}

func newStoreError(operation, reason string, cause error) error {
	return &StoreError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// Config describes the dependencies a Store requires.
type Config struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider board.IDProvider
	Logger     *zap.Logger
}

// Store persists board objects through GORM.
type Store struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider board.IDProvider
	logger     *zap.Logger
}

// New constructs a Store.
func New(cfg Config) (*Store, error) {
	if cfg.Database == nil {
		return nil, newStoreError(opStoreNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newStoreError(opStoreNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Store{db: cfg.Database, clock: clock, idProvider: cfg.IDProvider, logger: logger}, nil
}

// LoadAll returns every object on the board ordered by ascending z_index.
// This is the sole re-synchronization mechanism after a reconnect or refresh.
func (s *Store) LoadAll(ctx context.Context, boardID board.BoardID) ([]board.BoardObject, error) {
	var records []ObjectRecord
	if err := s.db.WithContext(ctx).
		Where(queryBoardID, boardID.String()).
		Order(orderZIndexAsc).
		Find(&records).Error; err != nil {
		s.logError(opLoadAll, reasonQuery, err, zap.String("board_id", boardID.String()))
		return nil, newStoreError(opLoadAll, reasonQuery, err)
	}
	objects := make([]board.BoardObject, 0, len(records))
	for _, record := range records {
		object, err := objectFromRecord(record)
		if err != nil {
			s.logError(opLoadAll, reasonDecode, err, zap.String("object_id", record.ID))
			return nil, newStoreError(opLoadAll, reasonDecode, err)
		}
		objects = append(objects, object)
	}
	return objects, nil
}

// Insert persists a freshly created object, assigning the durable identifier
// and server timestamps, and returns the stored row.
func (s *Store) Insert(ctx context.Context, object board.BoardObject) (board.BoardObject, error) {
	durableID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opInsert, reasonNewID, err)
		return board.BoardObject{}, newStoreError(opInsert, reasonNewID, err)
	}
	now := s.clock().UTC()
	object.ID = durableID
	object.CreatedAt = now
	object.UpdatedAt = now

	record, err := recordFromObject(object)
	if err != nil {
		s.logError(opInsert, reasonEncode, err, zap.String("object_id", durableID.String()))
		return board.BoardObject{}, newStoreError(opInsert, reasonEncode, err)
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		s.logError(opInsert, reasonInsert, err, zap.String("object_id", durableID.String()))
		return board.BoardObject{}, newStoreError(opInsert, reasonInsert, err)
	}
	return object, nil
}

// UpdateFields persists only the columns present in the patch. The full row
// is never rewritten, so fields untouched by the caller can not be clobbered
// by a stale in-memory copy.
func (s *Store) UpdateFields(ctx context.Context, objectID board.ObjectID, patch board.ObjectPatch) error {
	if objectID.Temporary() {
		return newStoreError(opUpdateFields, reasonTempID, ErrTemporaryID)
	}
	if patch.IsZero() {
		return newStoreError(opUpdateFields, reasonEmptyPatch, nil)
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		columns := map[string]any{"updated_at": s.clock().UTC()}
		if patch.X != nil {
			columns["x"] = *patch.X
		}
		if patch.Y != nil {
			columns["y"] = *patch.Y
		}
		if patch.Width != nil {
			columns["width"] = *patch.Width
		}
		if patch.Height != nil {
			columns["height"] = *patch.Height
		}
		if patch.Rotation != nil {
			columns["rotation"] = *patch.Rotation
		}
		if patch.ZIndex != nil {
			columns["z_index"] = *patch.ZIndex
		}

		if !patch.Payload.IsZero() {
			var existing ObjectRecord
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where(queryObjectID, objectID.String()).
				Take(&existing).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return newStoreError(opUpdateFields, reasonNotFound, ErrObjectNotFound)
			}
			if err != nil {
				return newStoreError(opUpdateFields, reasonQuery, err)
			}
			objectType, err := board.ParseObjectType(existing.Type)
			if err != nil {
				return newStoreError(opUpdateFields, reasonDecode, err)
			}
			payload, err := board.DecodePayload(objectType, []byte(existing.Data))
			if err != nil {
				return newStoreError(opUpdateFields, reasonDecode, err)
			}
			merged, err := board.EncodePayload(payload.ApplyPatch(patch.Payload))
			if err != nil {
				return newStoreError(opUpdateFields, reasonEncode, err)
			}
			columns["data"] = datatypes.JSON(merged)
		}

		result := tx.Model(&ObjectRecord{}).
			Where(queryObjectID, objectID.String()).
			Updates(columns)
		if result.Error != nil {
			return newStoreError(opUpdateFields, reasonUpdate, result.Error)
		}
		if result.RowsAffected == 0 {
			return newStoreError(opUpdateFields, reasonNotFound, ErrObjectNotFound)
		}
		return nil
	})

	if txErr != nil {
		s.logError(opUpdateFields, reasonUpdate, txErr, zap.String("object_id", objectID.String()))
		return txErr
	}
	return nil
}

// DeleteByID removes the durable row. Deleting an already-absent row is not
// an error; the caller's local removal is already final either way.
func (s *Store) DeleteByID(ctx context.Context, objectID board.ObjectID) error {
	if objectID.Temporary() {
		return newStoreError(opDeleteByID, reasonTempID, ErrTemporaryID)
	}
	if err := s.db.WithContext(ctx).
		Where(queryObjectID, objectID.String()).
		Delete(&ObjectRecord{}).Error; err != nil {
		s.logError(opDeleteByID, reasonDelete, err, zap.String("object_id", objectID.String()))
		return newStoreError(opDeleteByID, reasonDelete, err)
	}
	return nil
}

func (s *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("board store error", attrs...)
}
