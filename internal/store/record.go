package store

import (
	"time"

	"github.com/corkboardhq/corkboard/backend/internal/board"
	"gorm.io/datatypes"
)

// ObjectRecord is the durable row backing one board object.
type ObjectRecord struct {
	ID        string         `gorm:"column:id;primaryKey;size:190;not null"`
	BoardID   string         `gorm:"column:board_id;size:190;not null;index:idx_objects_board_z,priority:1"`
	Type      string         `gorm:"column:type;size:32;not null"`
	X         float64        `gorm:"column:x;not null;default:0"`
	Y         float64        `gorm:"column:y;not null;default:0"`
	Width     float64        `gorm:"column:width;not null;default:0"`
	Height    float64        `gorm:"column:height;not null;default:0"`
	Rotation  float64        `gorm:"column:rotation;not null;default:0"`
	ZIndex    int            `gorm:"column:z_index;not null;default:0;index:idx_objects_board_z,priority:2"`
	Data      datatypes.JSON `gorm:"column:data"`
	CreatedBy string         `gorm:"column:created_by;size:190;not null"`
	CreatedAt time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt time.Time      `gorm:"column:updated_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (ObjectRecord) TableName() string {
	return "board_objects"
}

func recordFromObject(object board.BoardObject) (ObjectRecord, error) {
	data, err := board.EncodePayload(object.Payload)
	if err != nil {
		return ObjectRecord{}, err
	}
	return ObjectRecord{
		ID:        object.ID.String(),
		BoardID:   object.BoardID.String(),
		Type:      object.Type.String(),
		X:         object.X,
		Y:         object.Y,
		Width:     object.Width,
		Height:    object.Height,
		Rotation:  object.Rotation,
		ZIndex:    object.ZIndex,
		Data:      datatypes.JSON(data),
		CreatedBy: object.CreatedBy.String(),
		CreatedAt: object.CreatedAt.UTC(),
		UpdatedAt: object.UpdatedAt.UTC(),
	}, nil
}

func objectFromRecord(record ObjectRecord) (board.BoardObject, error) {
	objectID, err := board.NewObjectID(record.ID)
	if err != nil {
		return board.BoardObject{}, err
	}
	boardID, err := board.NewBoardID(record.BoardID)
	if err != nil {
		return board.BoardObject{}, err
	}
	objectType, err := board.ParseObjectType(record.Type)
	if err != nil {
		return board.BoardObject{}, err
	}
	payload, err := board.DecodePayload(objectType, []byte(record.Data))
	if err != nil {
		return board.BoardObject{}, err
	}
	createdBy, err := board.NewUserID(record.CreatedBy)
	if err != nil {
		return board.BoardObject{}, err
	}
	return board.BoardObject{
		ID:        objectID,
		BoardID:   boardID,
		Type:      objectType,
		X:         record.X,
		Y:         record.Y,
		Width:     record.Width,
		Height:    record.Height,
		Rotation:  record.Rotation,
		ZIndex:    record.ZIndex,
		Payload:   payload,
		CreatedBy: createdBy,
		CreatedAt: record.CreatedAt.UTC(),
		UpdatedAt: record.UpdatedAt.UTC(),
	}, nil
}
