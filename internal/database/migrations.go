package database

import (
	"errors"
	"time"

	"github.com/corkboardhq/corkboard/backend/internal/board"
	"github.com/corkboardhq/corkboard/backend/internal/store"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationLowerFrameZIndex = "2026-06-18_lower_frame_z_index"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationLowerFrameZIndex, apply: lowerFrameZIndex},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// lowerFrameZIndex pushes frames written before paint-order enforcement below
// regular content; frames render behind by convention.
func lowerFrameZIndex(db *gorm.DB) error {
	return db.Model(&store.ObjectRecord{}).
		Where("type = ? AND z_index >= 0", board.TypeFrame.String()).
		Update("z_index", -1).Error
}
